package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

// SchemaVersion is the version written by Encode
const SchemaVersion = 2

var ErrUnsupportedVersion = errors.New("unsupported session schema version")

// Record is the persisted form of a session
type Record struct {
	Version     int                `json:"version"`
	SessionID   string             `json:"session_id"`
	Identity    *Identity          `json:"identity"`
	ActingAs    *uuid.UUID         `json:"acting_as,omitempty"`
	AccessFlags models.AccessFlags `json:"access_flags,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	LastUsedAt  time.Time          `json:"last_used_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// IsExpired reports whether the record is past its expiry
func (r Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Snapshot returns the identity state held by the record
func (r Record) Snapshot() Snapshot {
	var snap Snapshot
	if r.Identity != nil {
		id := *r.Identity
		snap.Identity = &id
	}
	if r.ActingAs != nil {
		t := *r.ActingAs
		snap.ActingAs = &t
	}
	return snap
}

// Apply copies a session's state into the record
func (r *Record) Apply(snap Snapshot) {
	r.Identity = nil
	r.ActingAs = nil
	if snap.Identity != nil {
		id := *snap.Identity
		r.Identity = &id
	}
	if snap.ActingAs != nil {
		t := *snap.ActingAs
		r.ActingAs = &t
	}
}

// Encode serializes r at the current schema version
func Encode(r Record) ([]byte, error) {
	r.Version = SchemaVersion
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return b, nil
}

// legacyRecordV1 is the flat shape written before the acting-as override
// existed. A missing version field means version 1.
type legacyRecordV1 struct {
	SessionID string `json:"session_id"`
	User      *struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		Name      string `json:"nome"`
		Avatar    string `json:"avatar"`
		CompanyID string `json:"empresa_id"`
		IsMaster  bool   `json:"is_master"`
	} `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Decode parses a persisted session, migrating older shapes forward
func Decode(data []byte) (Record, error) {
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	switch {
	case head.Version <= 1:
		return migrateV1(data)
	case head.Version == SchemaVersion:
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return Record{}, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return r, nil
	default:
		return Record{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, head.Version)
	}
}

func migrateV1(data []byte) (Record, error) {
	var legacy legacyRecordV1
	if err := json.Unmarshal(data, &legacy); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal v1 session: %w", err)
	}

	r := Record{
		Version:    SchemaVersion,
		SessionID:  legacy.SessionID,
		CreatedAt:  legacy.CreatedAt,
		LastUsedAt: legacy.CreatedAt,
		ExpiresAt:  legacy.ExpiresAt,
	}
	if legacy.User == nil {
		return r, nil
	}

	tenant := uuid.Nil
	if legacy.User.CompanyID != "" {
		parsed, err := uuid.Parse(legacy.User.CompanyID)
		if err != nil {
			return Record{}, fmt.Errorf("invalid empresa_id in v1 session: %w", err)
		}
		tenant = parsed
	}

	r.Identity = &Identity{
		ID:          legacy.User.ID,
		Email:       legacy.User.Email,
		DisplayName: legacy.User.Name,
		AvatarURL:   legacy.User.Avatar,
		TenantID:    tenant,
		IsMaster:    legacy.User.IsMaster,
	}
	return r, nil
}
