package collection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/events"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

var (
	acme   = uuid.MustParse("0b1c4a56-6a2e-4d7e-9a55-3f1f0c2b9a01")
	globex = uuid.MustParse("7d2f9e10-1c3b-4b8a-8f44-2a6c5d0e7b02")
)

var segmentDef = Definition[models.CustomerSegment]{
	Name:     "customer segment",
	Required: []string{"nome", "tipo_cliente"},
}

var problemDef = Definition[models.Problem]{
	Name:    "problem",
	Default: func() models.Problem { return models.Problem{} },
}

func memberOf(tenant uuid.UUID) *session.Session {
	return session.New(&session.Identity{ID: "user-1", Email: "ana@acme.test", TenantID: tenant})
}

func masterOf(tenant uuid.UUID) *session.Session {
	return session.New(&session.Identity{ID: "master-1", Email: "root@acme.test", TenantID: tenant, IsMaster: true})
}

func segment(id int64, tenant uuid.UUID, name, area string) models.CustomerSegment {
	s := models.CustomerSegment{Name: name, ClientType: models.ClientTypeB2B, Area: area}
	s.ID = id
	s.CompanyID = tenant
	return s
}

func names(rows []models.CustomerSegment) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

// leakyTable ignores the tenant filter on Select
type leakyTable struct {
	*store.MemoryTable[models.CustomerSegment]
}

func (t leakyTable) Select(ctx context.Context, _ store.Filter) ([]models.CustomerSegment, error) {
	return t.MemoryTable.Rows(), nil
}

// gatedTable blocks Insert until release is closed
type gatedTable struct {
	*store.MemoryTable[models.CustomerSegment]
	entered chan struct{}
	release chan struct{}
}

func (t gatedTable) Insert(ctx context.Context, row models.CustomerSegment) (models.CustomerSegment, error) {
	close(t.entered)
	<-t.release
	return t.MemoryTable.Insert(ctx, row)
}

func TestLoadReturnsOnlyOwnTenantRows(t *testing.T) {
	table := store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, globex, "Globex internal", "Ops"),
		segment(3, acme, "Startups", "Sales"),
	)

	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, StateReady, c.State())
	assert.ElementsMatch(t, []string{"Enterprises", "Startups"}, names(c.Items()))
}

func TestLoadDropsForeignRowsFromStore(t *testing.T) {
	table := leakyTable{store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, globex, "Globex internal", "Ops"),
	)}

	c := New(segmentDef, store.Table[models.CustomerSegment](table), masterOf(acme))
	require.NoError(t, c.Load(context.Background()))

	for _, row := range c.Items() {
		assert.Equal(t, acme, row.CompanyID)
	}
	assert.Len(t, c.Items(), 1)
}

func TestLoadWithoutIdentityMakesNoStoreCalls(t *testing.T) {
	table := store.NewMemoryTable[models.CustomerSegment]()
	c := New(segmentDef, table, session.New(nil))

	err := c.Load(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))

	_, err = c.Create(context.Background(), map[string]interface{}{"nome": "x", "tipo_cliente": "B2B"})
	assert.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))

	assert.Equal(t, 0, table.Calls(store.OpSelect))
	assert.Equal(t, 0, table.Calls(store.OpInsert))
}

func TestLoadReadFailureKeepsCache(t *testing.T) {
	table := store.NewMemoryTable(segment(1, acme, "Enterprises", "Sales"))
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	table.FailNext(store.OpSelect, errors.New("connection reset by peer"))
	err := c.Load(context.Background())

	assert.True(t, errors.Is(err, apperrors.ErrRead))
	assert.Equal(t, StateError, c.State())
	assert.Len(t, c.Items(), 1)
	assert.NotContains(t, apperrors.UserMessage(err), "connection reset")
}

func TestCreateThenLoadAddsOneRow(t *testing.T) {
	table := store.NewMemoryTable(segment(1, acme, "Enterprises", "Sales"))
	pub := &events.MemoryPublisher{}
	c := New(segmentDef, table, memberOf(acme), WithPublisher(pub))
	require.NoError(t, c.Load(context.Background()))
	before := len(c.Items())

	created, err := c.Create(context.Background(), map[string]interface{}{
		"nome":            "Clinics",
		"tipo_cliente":    "B2C",
		"area":            "Health",
		"descricao":       "  small clinics  ",
		"tamanho_mercado": "12k",
	})
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background()))

	assert.Len(t, c.Items(), before+1)
	assert.NotZero(t, created.ID)
	assert.Equal(t, acme, created.CompanyID)

	got, ok := c.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "Clinics", got.Name)
	assert.Equal(t, "B2C", got.ClientType)
	assert.Equal(t, "  small clinics  ", got.Description)
	assert.Equal(t, "12k", got.MarketSize)

	evs := pub.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, models.ActionRecordCreated, evs[0].Action)
	assert.Equal(t, acme, evs[0].CompanyID)
}

func TestCreateIgnoresCallerTenantAndID(t *testing.T) {
	table := store.NewMemoryTable[models.CustomerSegment]()
	c := New(segmentDef, table, memberOf(acme))

	created, err := c.Create(context.Background(), map[string]interface{}{
		"id":           999,
		"empresa_id":   globex.String(),
		"nome":         "Clinics",
		"tipo_cliente": "B2C",
	})
	require.NoError(t, err)
	assert.Equal(t, acme, created.CompanyID)
	assert.NotEqual(t, int64(999), created.ID)
}

func TestCreateValidation(t *testing.T) {
	table := store.NewMemoryTable[models.CustomerSegment]()
	c := New(segmentDef, table, memberOf(acme))

	tests := []struct {
		name   string
		fields map[string]interface{}
		field  string
	}{
		{"missing name", map[string]interface{}{"tipo_cliente": "B2B"}, "nome"},
		{"blank name", map[string]interface{}{"nome": "   ", "tipo_cliente": "B2B"}, "nome"},
		{"unknown column", map[string]interface{}{"nome": "x", "tipo_cliente": "B2B", "bogus": 1}, "bogus"},
		{"wrong type", map[string]interface{}{"nome": 12, "tipo_cliente": "B2B"}, "nome"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Create(context.Background(), tt.fields)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))

			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
	assert.Equal(t, 0, table.Calls(store.OpInsert))
}

func TestCreateWriteFailureLeavesCacheUnchanged(t *testing.T) {
	table := store.NewMemoryTable(segment(1, acme, "Enterprises", "Sales"))
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	table.FailNext(store.OpInsert, errors.New("duplicate key value violates unique constraint"))
	_, err := c.Create(context.Background(), map[string]interface{}{"nome": "x", "tipo_cliente": "B2B"})

	assert.True(t, errors.Is(err, apperrors.ErrWrite))
	assert.Len(t, c.Items(), 1)
	assert.False(t, c.Busy())
}

func TestUpdateChangesOnlyPatchedFields(t *testing.T) {
	other := segment(7, acme, "Startups", "Marketing")
	table := store.NewMemoryTable(segment(42, acme, "Old", "Sales"), other)
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))
	beforeOther, _ := c.Get(7)

	updated, err := c.Update(context.Background(), 42, map[string]interface{}{"nome": "Renamed"})
	require.NoError(t, err)

	assert.Equal(t, int64(42), updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "Sales", updated.Area)
	assert.Len(t, c.Items(), 2)

	afterOther, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, beforeOther, afterOther)
}

func TestUpdateRejectsBadPatches(t *testing.T) {
	table := store.NewMemoryTable(segment(42, acme, "Old", "Sales"))
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Update(context.Background(), 42, map[string]interface{}{})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = c.Update(context.Background(), 42, map[string]interface{}{"empresa_id": globex.String()})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = c.Update(context.Background(), 42, map[string]interface{}{"nome": ""})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = c.Update(context.Background(), 404, map[string]interface{}{"nome": "x"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	assert.Equal(t, 0, table.Calls(store.OpUpdate))
}

func TestUpdateOfRowDeletedElsewhereIsNotFound(t *testing.T) {
	table := store.NewMemoryTable(segment(42, acme, "Old", "Sales"))
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, table.Delete(context.Background(), store.Filter{"id": int64(42)}))

	_, err := c.Update(context.Background(), 42, map[string]interface{}{"nome": "x"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRemoveDropsRow(t *testing.T) {
	table := store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, acme, "Startups", "Sales"),
	)
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.Remove(context.Background(), 1))
	assert.Len(t, c.Items(), 1)
	_, ok := c.Get(1)
	assert.False(t, ok)

	require.NoError(t, c.Load(context.Background()))
	_, ok = c.Get(1)
	assert.False(t, ok)
	assert.Len(t, c.Items(), 1)
}

func TestRemoveCannotReachAnotherTenant(t *testing.T) {
	table := store.NewMemoryTable(segment(1, globex, "Globex internal", "Ops"))
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	err := c.Remove(context.Background(), 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Len(t, table.Rows(), 1)
}

func TestFilterScenario(t *testing.T) {
	table := store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, acme, "Startups", "Sales"),
	)
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))
	selects := table.Calls(store.OpSelect)

	got, err := c.Filter(Contains{Col: "nome", Substr: "ent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Enterprises"}, names(got))
	assert.Equal(t, selects, table.Calls(store.OpSelect))
}

func TestFilterIsIdempotentAndOrderIndependent(t *testing.T) {
	table := store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, acme, "Enterprise Health", "Health"),
		segment(3, acme, "Startups", "Sales"),
	)
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	a := Contains{Col: "nome", Substr: "enter"}
	b := Equals{Col: "area", Value: "sales"}

	first, err := c.Filter(a, b)
	require.NoError(t, err)
	again, err := c.Filter(a, b)
	require.NoError(t, err)
	swapped, err := c.Filter(b, a)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, first, swapped)
	assert.Equal(t, []string{"Enterprises"}, names(first))

	_, err = c.Filter(Contains{Col: "nope", Substr: "x"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestLazyDefaultRowInsertedOnce(t *testing.T) {
	table := store.NewMemoryTable[models.Problem]()
	table.ReportEmptyAsNoRows(true)
	c := New(problemDef, table, memberOf(acme))

	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, 1, table.Calls(store.OpInsert))
	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, acme, items[0].CompanyID)
	assert.Empty(t, items[0].Statement)
	assert.Empty(t, items[0].Causes)
	assert.NotZero(t, items[0].ID)
}

func TestLazyDefaultRowFailureDoesNotLoop(t *testing.T) {
	table := store.NewMemoryTable[models.Problem]()
	table.FailNext(store.OpInsert, errors.New("permission denied for table problemas"))
	c := New(problemDef, table, memberOf(acme))

	err := c.Load(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrWrite))
	assert.Equal(t, StateError, c.State())
	assert.Empty(t, c.Items())
	assert.Equal(t, 1, table.Calls(store.OpInsert))
}

func TestSecondOperationWhileBusy(t *testing.T) {
	gated := gatedTable{
		MemoryTable: store.NewMemoryTable[models.CustomerSegment](),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	c := New(segmentDef, store.Table[models.CustomerSegment](gated), memberOf(acme))

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Create(context.Background(), map[string]interface{}{"nome": "a", "tipo_cliente": "B2B"})
	}()

	<-gated.entered
	assert.True(t, c.Busy())
	_, err := c.Create(context.Background(), map[string]interface{}{"nome": "b", "tipo_cliente": "B2B"})
	assert.True(t, errors.Is(err, apperrors.ErrBusy))

	close(gated.release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.False(t, c.Busy())
	assert.Len(t, gated.Rows(), 1)
}

func TestTenantSwitchDiscardsInFlightResult(t *testing.T) {
	gated := gatedTable{
		MemoryTable: store.NewMemoryTable[models.CustomerSegment](),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	sess := masterOf(acme)
	c := New(segmentDef, store.Table[models.CustomerSegment](gated), sess)

	var wg sync.WaitGroup
	var createErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, createErr = c.Create(context.Background(), map[string]interface{}{"nome": "a", "tipo_cliente": "B2B"})
	}()

	<-gated.entered
	require.NoError(t, sess.SwitchTenant(globex))
	close(gated.release)
	wg.Wait()

	assert.True(t, errors.Is(createErr, apperrors.ErrStale))
	assert.Empty(t, c.Items())
	assert.Equal(t, StateUninitialized, c.State())
}

func TestMasterSeesOwnTenantUntilSwitch(t *testing.T) {
	table := store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, globex, "Globex internal", "Ops"),
	)
	sess := masterOf(acme)
	c := New(segmentDef, table, sess)
	defer c.Close()

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"Enterprises"}, names(c.Items()))

	require.NoError(t, sess.SwitchTenant(globex))
	assert.Equal(t, StateUninitialized, c.State())
	assert.Empty(t, c.Items())

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"Globex internal"}, names(c.Items()))

	sess.ClearActingTenant()
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"Enterprises"}, names(c.Items()))
}

func TestValidateHookRejectsRow(t *testing.T) {
	def := segmentDef
	def.Validate = func(row models.CustomerSegment) error {
		if row.ClientType != models.ClientTypeB2B && row.ClientType != models.ClientTypeB2C {
			return &store.FieldError{Column: "tipo_cliente", Err: errors.New("must be B2B or B2C")}
		}
		return nil
	}
	table := store.NewMemoryTable[models.CustomerSegment]()
	c := New(def, table, memberOf(acme))

	_, err := c.Create(context.Background(), map[string]interface{}{"nome": "x", "tipo_cliente": "B2G"})
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Equal(t, "tipo_cliente", appErr.Field)
}

func TestUpdateWriteFailureLeavesCacheUnchanged(t *testing.T) {
	table := store.NewMemoryTable(segment(42, acme, "Old", "Sales"))
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))
	before := c.Items()

	table.FailNext(store.OpUpdate, errors.New("could not serialize access due to concurrent update"))
	_, err := c.Update(context.Background(), 42, map[string]interface{}{"nome": "Renamed"})

	assert.Equal(t, apperrors.KindWrite, apperrors.KindOf(err))
	assert.Equal(t, before, c.Items())
	assert.Equal(t, StateReady, c.State())
	assert.False(t, c.Busy())
	assert.Equal(t, "Old", table.Rows()[0].Name)
}

func TestRemoveWriteFailureLeavesCacheUnchanged(t *testing.T) {
	table := store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, acme, "Startups", "Sales"),
	)
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))
	before := c.Items()

	table.FailNext(store.OpDelete, errors.New("update or delete violates foreign key constraint"))
	err := c.Remove(context.Background(), 1)

	assert.Equal(t, apperrors.KindWrite, apperrors.KindOf(err))
	assert.Equal(t, before, c.Items())
	assert.Equal(t, StateReady, c.State())
	assert.False(t, c.Busy())
	assert.Len(t, table.Rows(), 2)
}

func TestRefetchFailureAfterWriteKeepsLocalChange(t *testing.T) {
	table := store.NewMemoryTable(
		segment(1, acme, "Enterprises", "Sales"),
		segment(2, acme, "Startups", "Sales"),
	)
	c := New(segmentDef, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))
	ctx := context.Background()

	table.FailNext(store.OpSelect, errors.New("connection reset by peer"))
	updated, err := c.Update(ctx, 1, map[string]interface{}{"nome": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, []string{"Renamed", "Startups"}, names(c.Items()))
	assert.Equal(t, StateReady, c.State())

	table.FailNext(store.OpSelect, errors.New("connection reset by peer"))
	require.NoError(t, c.Remove(ctx, 2))
	assert.Equal(t, []string{"Renamed"}, names(c.Items()))
	assert.Equal(t, StateReady, c.State())

	table.FailNext(store.OpSelect, errors.New("connection reset by peer"))
	created, err := c.Create(ctx, map[string]interface{}{"nome": "Students", "tipo_cliente": "B2C"})
	require.NoError(t, err)
	assert.Equal(t, "Students", created.Name)
	assert.Equal(t, []string{"Renamed", "Students"}, names(c.Items()))
	assert.Equal(t, StateReady, c.State())
	assert.False(t, c.Busy())
}

func TestBaseRowFillsOmittedColumns(t *testing.T) {
	def := segmentDef
	def.Base = func() models.CustomerSegment { return models.CustomerSegment{Area: "Sales"} }
	table := store.NewMemoryTable[models.CustomerSegment]()
	c := New(def, table, memberOf(acme))
	require.NoError(t, c.Load(context.Background()))

	created, err := c.Create(context.Background(), map[string]interface{}{"nome": "Retail", "tipo_cliente": "B2C"})
	require.NoError(t, err)
	assert.Equal(t, "Sales", created.Area)

	created, err = c.Create(context.Background(), map[string]interface{}{"nome": "Online", "tipo_cliente": "B2C", "area": "Support"})
	require.NoError(t, err)
	assert.Equal(t, "Support", created.Area)
}
