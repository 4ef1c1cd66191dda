// Package collection implements the tenant-scoped read-modify-write contract
// every record type of the dashboard shares: load a company's rows into a
// local cache, and mediate create/update/remove against the store.
package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/events"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

// State of a controller's cache
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateError         State = "error"
)

var (
	errMissing   = errors.New("required")
	errImmutable = errors.New("cannot be changed")
	errEmpty     = errors.New("nothing to update")
)

// Definition describes one record type
type Definition[T any] struct {
	// Name labels the type in user-facing messages, e.g. "customer segment"
	Name string
	// Required columns must be present and non-blank on create and may not
	// be blanked by an update
	Required []string
	// Default, when set, enables the lazy-default-row policy: a load that
	// finds no rows creates one from Default
	Default func() T
	// Base, when set, returns the row submitted fields are decoded onto, so
	// omitted columns take its values
	Base func() T
	// Prepare fills defaults on a new row before validation
	Prepare func(row *T)
	// Validate runs on the decoded row before any write
	Validate func(row T) error
}

// Option configures a Controller
type Option func(*options)

type options struct {
	publisher events.Publisher
	logger    *logrus.Entry
}

// WithPublisher sends an audit event after every successful mutation
func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithLogger sets the base log entry
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Controller owns the local cache of one record type for one session. At
// most one store operation is in flight at a time; a second one fails with a
// Busy error instead of queueing.
type Controller[T any, P models.RecordPtr[T]] struct {
	def   Definition[T]
	table store.Table[T]
	sess  *session.Session
	cols  *store.Columns[T]
	pub   events.Publisher
	log   *logrus.Entry

	mu    sync.Mutex
	state State
	cache []T
	busy  bool
	gen   uint64

	unsubscribe func()
}

// New creates a controller and subscribes it to sess: whenever the effective
// company changes the cache is dropped.
func New[T any, P models.RecordPtr[T]](def Definition[T], table store.Table[T], sess *session.Session, opts ...Option) *Controller[T, P] {
	o := options{
		publisher: events.NopPublisher{},
		logger:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	c := &Controller[T, P]{
		def:   def,
		table: table,
		sess:  sess,
		cols:  store.MustColumnsOf[T](),
		pub:   o.publisher,
		log:   o.logger.WithField("entity", P(&zero).TableName()),
		state: StateUninitialized,
	}

	c.unsubscribe = sess.Subscribe(func(prev, next session.Snapshot) {
		p, pok := prev.EffectiveTenant()
		n, nok := next.EffectiveTenant()
		if pok != nok || p != n {
			c.Reset()
		}
	})
	return c
}

// Close detaches the controller from its session and drops the cache
func (c *Controller[T, P]) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.Reset()
}

// Reset drops the cache. Operations still in flight complete against the
// store but their results are discarded.
func (c *Controller[T, P]) Reset() {
	c.mu.Lock()
	c.gen++
	c.cache = nil
	c.state = StateUninitialized
	c.mu.Unlock()
}

// State returns the cache state
func (c *Controller[T, P]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether an operation is in flight
func (c *Controller[T, P]) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Items returns a copy of the cache
func (c *Controller[T, P]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.cache))
	copy(out, c.cache)
	return out
}

// Get returns the cached row with id
func (c *Controller[T, P]) Get(id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		var zero T
		return zero, false
	}
	return c.cache[i], true
}

// Filter applies preds to the cache. It never touches the store.
func (c *Controller[T, P]) Filter(preds ...Predicate) ([]T, error) {
	out, err := Apply(c.Items(), c.cols, preds)
	if err != nil {
		var col *UnknownColumnError
		if errors.As(err, &col) {
			return nil, apperrors.Validation("filter "+c.def.Name, col.Column, err)
		}
		return nil, apperrors.Validation("filter "+c.def.Name, "", err)
	}
	return out, nil
}

// Load replaces the cache with every row of the current company. An empty
// result triggers the lazy-default-row policy when the definition has one.
func (c *Controller[T, P]) Load(ctx context.Context) error {
	action := "load " + c.def.Name
	tenant, err := c.sess.TenantRef()
	if err != nil {
		c.setState(StateError)
		return apperrors.NotAuthenticated(action)
	}

	gen, err := c.begin(action)
	if err != nil {
		return err
	}
	defer c.end()

	c.transition(gen, StateLoading)

	rows, err := c.fetch(ctx, tenant, action)
	if err != nil {
		c.transition(gen, StateError)
		return err
	}

	if len(rows) == 0 && c.def.Default != nil {
		created, err := c.createDefault(ctx, tenant, action)
		if err != nil {
			c.commit(gen, action, func() {
				c.cache = nil
				c.state = StateError
			})
			return err
		}
		rows = []T{created}
	}

	return c.commit(gen, action, func() {
		c.cache = rows
		c.state = StateReady
	})
}

// Create validates fields, stamps the current company and inserts the row.
// The echoed row is appended and the cache is then re-fetched.
func (c *Controller[T, P]) Create(ctx context.Context, fields map[string]interface{}) (T, error) {
	var zero T
	action := "create " + c.def.Name
	tenant, err := c.sess.TenantRef()
	if err != nil {
		return zero, apperrors.NotAuthenticated(action)
	}

	fields = withoutImmutable(fields)
	if err := c.checkRequired(action, fields, true); err != nil {
		return zero, err
	}
	var base T
	if c.def.Base != nil {
		base = c.def.Base()
	}
	row, err := store.ApplyPatch(base, fields)
	if err != nil {
		return zero, fieldValidation(action, err)
	}
	if c.def.Prepare != nil {
		c.def.Prepare(&row)
	}
	if err := c.validate(action, row); err != nil {
		return zero, err
	}
	P(&row).SetTenantRef(tenant)

	gen, err := c.begin(action)
	if err != nil {
		return zero, err
	}
	defer c.end()

	created, err := c.table.Insert(ctx, row)
	if err != nil {
		c.log.WithFields(logrus.Fields{"empresa_id": tenant, "error": err}).Warn("Insert failed")
		return zero, apperrors.Write(action, err)
	}

	if err := c.commit(gen, action, func() {
		c.cache = append(c.cache, created)
	}); err != nil {
		return created, err
	}

	c.resync(ctx, gen, tenant, action)
	c.publish(tenant, models.ActionRecordCreated, P(&created).RecordID(), fields)
	return created, nil
}

// Update overwrites the patch columns of the cached row with id, mirrors the
// change locally and re-fetches.
func (c *Controller[T, P]) Update(ctx context.Context, id int64, patch map[string]interface{}) (T, error) {
	var zero T
	action := "update " + c.def.Name
	tenant, err := c.sess.TenantRef()
	if err != nil {
		return zero, apperrors.NotAuthenticated(action)
	}

	if len(patch) == 0 {
		return zero, apperrors.Validation(action, "", errEmpty)
	}
	for _, col := range models.ImmutableColumns {
		if _, ok := patch[col]; ok {
			return zero, apperrors.Validation(action, col, errImmutable)
		}
	}
	if err := c.checkRequired(action, patch, false); err != nil {
		return zero, err
	}

	current, ok := c.Get(id)
	if !ok {
		return zero, apperrors.NotFound(action)
	}
	patched, err := store.ApplyPatch(current, patch)
	if err != nil {
		return zero, fieldValidation(action, err)
	}
	if err := c.validate(action, patched); err != nil {
		return zero, err
	}

	gen, err := c.begin(action)
	if err != nil {
		return zero, err
	}
	defer c.end()

	filter := store.Filter{models.ColumnID: id, models.ColumnTenant: tenant}
	if err := c.table.Update(ctx, patch, filter); err != nil {
		c.log.WithFields(logrus.Fields{"empresa_id": tenant, "id": id, "error": err}).Warn("Update failed")
		if store.IsNoRows(err) {
			return zero, apperrors.NotFound(action)
		}
		return zero, apperrors.Write(action, err)
	}

	if err := c.commit(gen, action, func() {
		if i := c.indexLocked(id); i >= 0 {
			c.cache[i] = patched
		}
	}); err != nil {
		return patched, err
	}

	c.resync(ctx, gen, tenant, action)
	c.publish(tenant, models.ActionRecordUpdated, id, patch)

	if fresh, ok := c.Get(id); ok {
		return fresh, nil
	}
	return patched, nil
}

// Remove deletes the cached row with id, drops it locally and re-fetches.
// There is no undo.
func (c *Controller[T, P]) Remove(ctx context.Context, id int64) error {
	action := "delete " + c.def.Name
	tenant, err := c.sess.TenantRef()
	if err != nil {
		return apperrors.NotAuthenticated(action)
	}

	if _, ok := c.Get(id); !ok {
		return apperrors.NotFound(action)
	}

	gen, err := c.begin(action)
	if err != nil {
		return err
	}
	defer c.end()

	filter := store.Filter{models.ColumnID: id, models.ColumnTenant: tenant}
	if err := c.table.Delete(ctx, filter); err != nil && !store.IsNoRows(err) {
		c.log.WithFields(logrus.Fields{"empresa_id": tenant, "id": id, "error": err}).Warn("Delete failed")
		return apperrors.Write(action, err)
	}

	if err := c.commit(gen, action, func() {
		if i := c.indexLocked(id); i >= 0 {
			c.cache = append(c.cache[:i:i], c.cache[i+1:]...)
		}
	}); err != nil {
		return err
	}

	c.resync(ctx, gen, tenant, action)
	c.publish(tenant, models.ActionRecordDeleted, id, nil)
	return nil
}

// fetch selects the company's rows. "No rows" is an empty result. Rows of any
// other company are dropped.
func (c *Controller[T, P]) fetch(ctx context.Context, tenant uuid.UUID, action string) ([]T, error) {
	rows, err := c.table.Select(ctx, store.Filter{models.ColumnTenant: tenant})
	if store.IsNoRows(err) {
		return []T{}, nil
	}
	if err != nil {
		c.log.WithFields(logrus.Fields{"empresa_id": tenant, "error": err}).Warn("Select failed")
		return nil, apperrors.Read(action, err)
	}

	out := make([]T, 0, len(rows))
	for i := range rows {
		if P(&rows[i]).TenantRef() != tenant {
			c.log.WithFields(logrus.Fields{
				"empresa_id": tenant,
				"id":         P(&rows[i]).RecordID(),
			}).Error("Store returned a row of another company; dropped")
			continue
		}
		out = append(out, rows[i])
	}
	return out, nil
}

// createDefault inserts the default row once; a failure is not retried
func (c *Controller[T, P]) createDefault(ctx context.Context, tenant uuid.UUID, action string) (T, error) {
	row := c.def.Default()
	P(&row).SetTenantRef(tenant)

	created, err := c.table.Insert(ctx, row)
	if err != nil {
		c.log.WithFields(logrus.Fields{"empresa_id": tenant, "error": err}).Warn("Default row insert failed")
		var zero T
		return zero, apperrors.Write(action, err)
	}

	c.log.WithField("empresa_id", tenant).Info("Created default row")
	c.publish(tenant, models.ActionRecordCreated, P(&created).RecordID(), map[string]interface{}{"default": true})
	return created, nil
}

// resync re-fetches after a successful write. When the re-fetch fails the
// locally applied change is kept.
func (c *Controller[T, P]) resync(ctx context.Context, gen uint64, tenant uuid.UUID, action string) {
	rows, err := c.fetch(ctx, tenant, action)
	if err != nil {
		c.log.WithField("empresa_id", tenant).Warn("Re-fetch after write failed; keeping local copy")
		return
	}
	_ = c.commit(gen, action, func() {
		c.cache = rows
		c.state = StateReady
	})
}

func (c *Controller[T, P]) begin(action string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 0, apperrors.Busy(action)
	}
	c.busy = true
	return c.gen, nil
}

func (c *Controller[T, P]) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// commit applies fn only if no Reset happened since gen was taken
func (c *Controller[T, P]) commit(gen uint64, action string, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return apperrors.Stale(action)
	}
	fn()
	return nil
}

func (c *Controller[T, P]) transition(gen uint64, state State) {
	c.mu.Lock()
	if gen == c.gen {
		c.state = state
	}
	c.mu.Unlock()
}

func (c *Controller[T, P]) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller[T, P]) indexLocked(id int64) int {
	for i := range c.cache {
		if P(&c.cache[i]).RecordID() == id {
			return i
		}
	}
	return -1
}

func (c *Controller[T, P]) checkRequired(action string, fields map[string]interface{}, creating bool) error {
	for _, col := range c.def.Required {
		v, present := fields[col]
		if !present {
			if creating {
				return apperrors.Validation(action, col, errMissing)
			}
			continue
		}
		if isBlank(v) {
			return apperrors.Validation(action, col, errMissing)
		}
	}
	return nil
}

func (c *Controller[T, P]) validate(action string, row T) error {
	if c.def.Validate == nil {
		return nil
	}
	if err := c.def.Validate(row); err != nil {
		var fe *store.FieldError
		if errors.As(err, &fe) {
			return apperrors.Validation(action, fe.Column, err)
		}
		return apperrors.Validation(action, "", err)
	}
	return nil
}

func (c *Controller[T, P]) publish(tenant uuid.UUID, act string, id int64, fields map[string]interface{}) {
	actor := ""
	if identity, ok := c.sess.Identity(); ok {
		actor = identity.ID
	}

	var zero T
	event := events.NewEvent(tenant, actor, act)
	event.Entity = P(&zero).TableName()
	event.RecordID = &id
	if len(fields) > 0 {
		columns := make([]string, 0, len(fields))
		for k := range fields {
			columns = append(columns, k)
		}
		event.Payload = models.Payload{"columns": columns}
	}

	if err := c.pub.Publish(event); err != nil {
		c.log.WithFields(logrus.Fields{"action": act, "error": err}).Warn("Audit event dropped")
	}
}

func withoutImmutable(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, col := range models.ImmutableColumns {
		delete(out, col)
	}
	return out
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func fieldValidation(action string, err error) error {
	var fe *store.FieldError
	if errors.As(err, &fe) {
		return apperrors.Validation(action, fe.Column, err)
	}
	return apperrors.Validation(action, "", fmt.Errorf("invalid fields: %w", err))
}
