package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Feature areas a company can be granted access to
const (
	FeatureProblems        = "problems"
	FeatureCustomerSegment = "customer_segments"
	FeatureTargetAudience  = "target_audiences"
	FeatureChannels        = "channels"
	FeatureFinance         = "finance"
	FeatureMetrics         = "metrics"
	FeatureTasks           = "tasks"
	FeatureCompetitors     = "competitors"
	FeatureBenefits        = "benefits"
	FeatureFeatures        = "features"
)

// AllFeatures lists every feature area in menu order
var AllFeatures = []string{
	FeatureProblems,
	FeatureCustomerSegment,
	FeatureTargetAudience,
	FeatureChannels,
	FeatureFinance,
	FeatureMetrics,
	FeatureTasks,
	FeatureCompetitors,
	FeatureBenefits,
	FeatureFeatures,
}

// AccessFlags holds one boolean capability per feature area
type AccessFlags map[string]bool

// DefaultAccessFlags enables every feature area
func DefaultAccessFlags() AccessFlags {
	flags := make(AccessFlags, len(AllFeatures))
	for _, f := range AllFeatures {
		flags[f] = true
	}
	return flags
}

// Allows reports whether the feature is enabled. Missing keys are disabled.
func (f AccessFlags) Allows(feature string) bool {
	return f[feature]
}

// IsKnownFeature reports whether name is one of AllFeatures
func IsKnownFeature(name string) bool {
	for _, f := range AllFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer for the jsonb column
func (f AccessFlags) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the jsonb column
func (f *AccessFlags) Scan(src interface{}) error {
	return scanJSON(src, f)
}

// Company is the tenant owning every record
type Company struct {
	ID          uuid.UUID   `json:"id" gorm:"column:id;type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string      `json:"nome" gorm:"column:nome;not null"`
	IsActive    bool        `json:"ativo" gorm:"column:ativo;not null"`
	AccessFlags AccessFlags `json:"acessos" gorm:"column:acessos;type:jsonb;default:'{}'"`
	CreatedAt   time.Time   `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for the Company model
func (Company) TableName() string {
	return "empresas"
}

// scanJSON decodes a jsonb column value into dest
func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
