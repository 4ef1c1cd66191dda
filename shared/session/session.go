// Package session holds the authenticated identity of one client session and
// the company it is currently working on.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
)

// Identity is the authenticated actor
type Identity struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	TenantID    uuid.UUID `json:"tenant_id"`
	IsMaster    bool      `json:"is_master"`
}

// Snapshot is the observable state of a Session
type Snapshot struct {
	Identity *Identity
	ActingAs *uuid.UUID
}

// EffectiveTenant is the acting-as company when set, otherwise the home company
func (s Snapshot) EffectiveTenant() (uuid.UUID, bool) {
	if s.Identity == nil {
		return uuid.Nil, false
	}
	if s.ActingAs != nil {
		return *s.ActingAs, true
	}
	return s.Identity.TenantID, true
}

// Equal compares identity and override by value
func (s Snapshot) Equal(o Snapshot) bool {
	if (s.Identity == nil) != (o.Identity == nil) {
		return false
	}
	if s.Identity != nil && *s.Identity != *o.Identity {
		return false
	}
	if (s.ActingAs == nil) != (o.ActingAs == nil) {
		return false
	}
	return s.ActingAs == nil || *s.ActingAs == *o.ActingAs
}

// Observer is called after every change with the state before and after it
type Observer func(prev, next Snapshot)

// Session is the identity context of one client session. The zero value is an
// empty, unauthenticated session.
type Session struct {
	mu           sync.Mutex
	identity     *Identity
	actingAs     *uuid.UUID
	observers    map[int]Observer
	nextObserver int
}

// New creates a session holding identity, which may be nil
func New(identity *Identity) *Session {
	s := &Session{}
	if identity != nil {
		id := *identity
		s.identity = &id
	}
	return s
}

// Subscribe registers fn for change notifications and returns a func that
// removes it
func (s *Session) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observers == nil {
		s.observers = make(map[int]Observer)
	}
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// SetIdentity replaces the held identity. Logging in as someone else or
// logging out drops any acting-as override.
func (s *Session) SetIdentity(identity *Identity) {
	s.update(func() {
		if identity == nil {
			s.identity = nil
			s.actingAs = nil
			return
		}
		id := *identity
		if s.identity == nil || s.identity.ID != id.ID || !id.IsMaster {
			s.actingAs = nil
		}
		s.identity = &id
	})
}

// Restore replaces the whole state, as loaded from persistence
func (s *Session) Restore(snap Snapshot) {
	s.update(func() {
		s.identity = nil
		s.actingAs = nil
		if snap.Identity == nil {
			return
		}
		id := *snap.Identity
		s.identity = &id
		if snap.ActingAs != nil && id.IsMaster {
			tenant := *snap.ActingAs
			s.actingAs = &tenant
		}
	})
}

// Identity returns a copy of the held identity
func (s *Session) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// TenantRef returns the company reads and writes are scoped to
func (s *Session) TenantRef() (uuid.UUID, error) {
	tenant, ok := s.Snapshot().EffectiveTenant()
	if !ok {
		return uuid.Nil, apperrors.NotAuthenticated("")
	}
	return tenant, nil
}

// HomeTenant returns the identity's own company, ignoring any override
func (s *Session) HomeTenant() (uuid.UUID, error) {
	id, ok := s.Identity()
	if !ok {
		return uuid.Nil, apperrors.NotAuthenticated("")
	}
	return id.TenantID, nil
}

// ActingAs returns the override company, if one is in effect
func (s *Session) ActingAs() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actingAs == nil {
		return uuid.Nil, false
	}
	return *s.actingAs, true
}

// SwitchTenant makes a master identity act as tenantID. Switching to the home
// company clears the override.
func (s *Session) SwitchTenant(tenantID uuid.UUID) error {
	id, ok := s.Identity()
	if !ok {
		return apperrors.NotAuthenticated("switch company")
	}
	if !id.IsMaster {
		return apperrors.Forbidden("switch company")
	}

	s.update(func() {
		if tenantID == id.TenantID {
			s.actingAs = nil
			return
		}
		t := tenantID
		s.actingAs = &t
	})
	return nil
}

// ClearActingTenant returns to the home company
func (s *Session) ClearActingTenant() {
	s.update(func() {
		s.actingAs = nil
	})
}

func (s *Session) snapshotLocked() Snapshot {
	var snap Snapshot
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	if s.actingAs != nil {
		t := *s.actingAs
		snap.ActingAs = &t
	}
	return snap
}

// update applies fn under the lock and notifies observers afterwards
func (s *Session) update(fn func()) {
	s.mu.Lock()
	prev := s.snapshotLocked()
	fn()
	next := s.snapshotLocked()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	if prev.Equal(next) {
		return
	}
	for _, o := range observers {
		o(prev, next)
	}
}
