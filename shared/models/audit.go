package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	ActionRecordCreated = "record.created"
	ActionRecordUpdated = "record.updated"
	ActionRecordDeleted = "record.deleted"
	ActionTenantSwitch  = "tenant.acting_as"
	ActionTenantRelease = "tenant.released"
	ActionLogin         = "session.login"
	ActionLogout        = "session.logout"
	ActionCompanyCreate = "company.created"
	ActionCompanyUpdate = "company.updated"
	ActionAccessChange  = "company.access_changed"
)

// Payload is a free-form jsonb document
type Payload map[string]interface{}

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Payload) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// AuditEvent records one state change made on behalf of an identity
type AuditEvent struct {
	ID         uuid.UUID `json:"id" gorm:"column:id;type:uuid;primary_key"`
	CompanyID  uuid.UUID `json:"empresa_id" gorm:"column:empresa_id;type:uuid;index"`
	ActorID    string    `json:"actor_id" gorm:"column:actor_id;type:varchar(255);index"`
	Action     string    `json:"action" gorm:"column:action;type:varchar(50);not null"`
	Entity     string    `json:"entity,omitempty" gorm:"column:entity;type:varchar(50)"`
	RecordID   *int64    `json:"record_id,omitempty" gorm:"column:record_id"`
	Payload    Payload   `json:"payload,omitempty" gorm:"column:payload;type:jsonb"`
	OccurredAt time.Time `json:"occurred_at" gorm:"column:occurred_at;index"`
}

func (AuditEvent) TableName() string {
	return "eventos_auditoria"
}
