package models

import (
	"time"

	"github.com/google/uuid"
)

// Column names shared by every tenant-owned table
const (
	ColumnID        = "id"
	ColumnTenant    = "empresa_id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// ImmutableColumns are assigned by the store or stamped by the controller and
// never accepted from callers
var ImmutableColumns = []string{ColumnID, ColumnTenant, ColumnCreatedAt, ColumnUpdatedAt}

// TenantRecord is embedded in every tenant-owned row
type TenantRecord struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	CompanyID uuid.UUID `json:"empresa_id" gorm:"column:empresa_id;type:uuid;not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (r TenantRecord) RecordID() int64 {
	return r.ID
}

func (r *TenantRecord) SetRecordID(id int64) {
	r.ID = id
}

func (r TenantRecord) TenantRef() uuid.UUID {
	return r.CompanyID
}

func (r *TenantRecord) SetTenantRef(id uuid.UUID) {
	r.CompanyID = id
}

// Touch sets the store-managed timestamps; CreatedAt is only set once
func (r *TenantRecord) Touch(now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

// Record is implemented by pointers to every tenant-owned row type
type Record interface {
	RecordID() int64
	TenantRef() uuid.UUID
	SetTenantRef(uuid.UUID)
	TableName() string
}

// RecordPtr constrains P to be *T implementing Record
type RecordPtr[T any] interface {
	*T
	Record
}
