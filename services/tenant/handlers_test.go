package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-planning-dashboard/shared/events"
	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

var (
	acmeID   = uuid.MustParse("0b1c4a56-6a2e-4d7e-9a55-3f1f0c2b9a01")
	globexID = uuid.MustParse("7d2f9e10-1c3b-4b8a-8f44-2a6c5d0e7b02")
)

type fakeLoader map[string]session.Record

func (f fakeLoader) Load(_ context.Context, token string) (session.Record, error) {
	r, ok := f[token]
	if !ok {
		return session.Record{}, session.ErrSessionNotFound
	}
	return r, nil
}

type tenantFixture struct {
	router    *gin.Engine
	companies *store.MemoryTable[models.Company]
	publisher *events.MemoryPublisher
}

func newTenantFixture(t *testing.T) *tenantFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	companies := store.NewMemoryTable(
		models.Company{ID: acmeID, Name: "Acme", IsActive: true, AccessFlags: models.DefaultAccessFlags()},
		models.Company{ID: globexID, Name: "Globex", IsActive: true, AccessFlags: models.AccessFlags{models.FeatureTasks: true}},
	)
	pub := &events.MemoryPublisher{}
	h := &tenantHandler{
		companies: companies,
		publisher: pub,
		now:       func() time.Time { return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC) },
		log:       logrus.NewEntry(logrus.New()),
	}

	loader := fakeLoader{
		"master": {
			Identity:  &session.Identity{ID: "sub-root", TenantID: acmeID, IsMaster: true},
			ExpiresAt: time.Now().Add(time.Hour),
		},
		"member": {
			Identity:    &session.Identity{ID: "sub-ana", TenantID: acmeID},
			AccessFlags: models.DefaultAccessFlags(),
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
	am := middleware.NewAuthMiddleware(loader, "planboard_session")

	return &tenantFixture{
		router:    setupRouter(h, am, nil),
		companies: companies,
		publisher: pub,
	}
}

func (f *tenantFixture) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out), string(env.Data))
}

func TestCompaniesRequireMaster(t *testing.T) {
	f := newTenantFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.request(http.MethodGet, "/companies", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.request(http.MethodGet, "/companies", "member", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.request(http.MethodPost, "/companies", "member", CreateCompanyRequest{Name: "Sneaky"}).Code)
	assert.Equal(t, 0, f.companies.Calls(store.OpInsert))
}

func TestListAndGetCompanies(t *testing.T) {
	f := newTenantFixture(t)

	var list []models.Company
	w := f.request(http.MethodGet, "/companies", "master", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dataOf(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme", list[0].Name)
	assert.Equal(t, "Globex", list[1].Name)

	var company models.Company
	w = f.request(http.MethodGet, "/companies/"+globexID.String(), "master", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dataOf(t, w, &company)
	assert.True(t, company.AccessFlags.Allows(models.FeatureTasks))
	assert.False(t, company.AccessFlags.Allows(models.FeatureFinance))

	assert.Equal(t, http.StatusBadRequest, f.request(http.MethodGet, "/companies/not-a-uuid", "master", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.request(http.MethodGet, "/companies/"+uuid.NewString(), "master", nil).Code)
}

func TestCreateCompany(t *testing.T) {
	f := newTenantFixture(t)

	w := f.request(http.MethodPost, "/companies", "master", CreateCompanyRequest{Name: "  Initech "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Company
	dataOf(t, w, &created)
	assert.Equal(t, "Initech", created.Name)
	assert.True(t, created.IsActive)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, models.DefaultAccessFlags(), created.AccessFlags)

	evts := f.publisher.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, models.ActionCompanyCreate, evts[0].Action)
	assert.Equal(t, created.ID, evts[0].CompanyID)
	assert.Equal(t, "sub-root", evts[0].ActorID)

	tests := []struct {
		name string
		body interface{}
	}{
		{"duplicate name", CreateCompanyRequest{Name: "acme"}},
		{"blank name", CreateCompanyRequest{Name: "   "}},
		{"unknown feature", CreateCompanyRequest{Name: "Hooli", AccessFlags: models.AccessFlags{"payroll": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.request(http.MethodPost, "/companies", "master", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Len(t, f.companies.Rows(), 3)
}

func TestUpdateCompany(t *testing.T) {
	f := newTenantFixture(t)
	path := "/companies/" + globexID.String()

	inactive := false
	w := f.request(http.MethodPut, path, "master", UpdateCompanyRequest{IsActive: &inactive})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Company
	dataOf(t, w, &updated)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Globex", updated.Name)

	taken := "ACME"
	w = f.request(http.MethodPut, path, "master", UpdateCompanyRequest{Name: &taken})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	same := "globex"
	w = f.request(http.MethodPut, path, "master", UpdateCompanyRequest{Name: &same})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.request(http.MethodPut, path, "master", UpdateCompanyRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetAccessFlags(t *testing.T) {
	f := newTenantFixture(t)
	path := "/companies/" + globexID.String() + "/access-flags"

	w := f.request(http.MethodPut, path, "master", models.AccessFlags{models.FeatureFinance: true, models.FeatureMetrics: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Company
	dataOf(t, w, &updated)
	assert.True(t, updated.AccessFlags.Allows(models.FeatureFinance))
	assert.False(t, updated.AccessFlags.Allows(models.FeatureTasks))

	w = f.request(http.MethodPut, path, "master", map[string]bool{"payroll": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	evts := f.publisher.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, models.ActionAccessChange, evts[0].Action)
}

func TestStoreFailures(t *testing.T) {
	f := newTenantFixture(t)

	f.companies.FailNext(store.OpSelect, errors.New("connection reset"))
	w := f.request(http.MethodGet, "/companies", "master", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	f.companies.FailNext(store.OpInsert, errors.New("disk full"))
	w = f.request(http.MethodPost, "/companies", "master", CreateCompanyRequest{Name: "Umbrella"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, f.publisher.Events())
}
