package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

type fakeLoader map[string]session.Record

func (f fakeLoader) Load(_ context.Context, token string) (session.Record, error) {
	r, ok := f[token]
	if !ok {
		return session.Record{}, session.ErrSessionNotFound
	}
	return r, nil
}

var (
	homeTenant  = uuid.MustParse("0b1c4a56-6a2e-4d7e-9a55-3f1f0c2b9a01")
	otherTenant = uuid.MustParse("7d2f9e10-1c3b-4b8a-8f44-2a6c5d0e7b02")
)

func testLoader() fakeLoader {
	member := session.Record{
		Identity:    &session.Identity{ID: "user-1", Email: "ana@acme.test", TenantID: homeTenant},
		AccessFlags: models.AccessFlags{models.FeatureTasks: true},
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	master := session.Record{
		Identity:  &session.Identity{ID: "root", Email: "root@acme.test", TenantID: homeTenant, IsMaster: true},
		ActingAs:  &otherTenant,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return fakeLoader{"member-token": member, "master-token": master}
}

func setupRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	ok := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": c.GetString(KeyTenantID)})
	}

	r.GET("/tasks", am.RequireAuth(), am.RequireFeature(models.FeatureTasks), ok)
	r.GET("/finance", am.RequireAuth(), am.RequireFeature(models.FeatureFinance), ok)
	r.GET("/admin", am.RequireAuth(), am.RequireMaster(), ok)
	return r
}

func do(r *gin.Engine, path string, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestRequireAuth(t *testing.T) {
	r := setupRouter(NewAuthMiddleware(testLoader(), "planboard_session"))

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"unknown token", bearer("nope"), http.StatusUnauthorized},
		{"bearer token", bearer("member-token"), http.StatusOK},
		{"cookie token", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "planboard_session", Value: "member-token"})
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, "/tasks", tt.setup)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRequireFeature(t *testing.T) {
	r := setupRouter(NewAuthMiddleware(testLoader(), ""))

	assert.Equal(t, http.StatusOK, do(r, "/tasks", bearer("member-token")).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/finance", bearer("member-token")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/finance", bearer("master-token")).Code)
}

func TestRequireMaster(t *testing.T) {
	r := setupRouter(NewAuthMiddleware(testLoader(), ""))

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", bearer("member-token")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/admin", bearer("master-token")).Code)
}

func TestEffectiveTenantInContext(t *testing.T) {
	r := setupRouter(NewAuthMiddleware(testLoader(), ""))

	w := do(r, "/tasks", bearer("master-token"))
	assert.Contains(t, w.Body.String(), otherTenant.String())

	w = do(r, "/tasks", bearer("member-token"))
	assert.Contains(t, w.Body.String(), homeTenant.String())
}

func TestAccessFlagsFollowCompany(t *testing.T) {
	companies := store.NewMemoryTable(models.Company{
		ID:          homeTenant,
		Name:        "Acme",
		IsActive:    true,
		AccessFlags: models.AccessFlags{models.FeatureTasks: true},
	})
	am := NewAuthMiddleware(testLoader(), "").WithCompanies(NewCompanyCache(companies, 16, 0))
	r := setupRouter(am)
	ctx := context.Background()

	assert.Equal(t, http.StatusOK, do(r, "/tasks", bearer("member-token")).Code)

	err := companies.Update(ctx, map[string]interface{}{"acessos": models.AccessFlags{models.FeatureFinance: true}}, store.Filter{"id": homeTenant})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, "/tasks", bearer("member-token")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/finance", bearer("member-token")).Code)

	err = companies.Update(ctx, map[string]interface{}{"ativo": false}, store.Filter{"id": homeTenant})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/finance", bearer("member-token")).Code)

	// Masters are not bound to their company's flags
	assert.Equal(t, http.StatusOK, do(r, "/admin", bearer("master-token")).Code)
}

func TestCompanyLookupFailsClosed(t *testing.T) {
	companies := store.NewMemoryTable[models.Company]()
	r := setupRouter(NewAuthMiddleware(testLoader(), "").WithCompanies(NewCompanyCache(companies, 16, 0)))

	assert.Equal(t, http.StatusUnauthorized, do(r, "/tasks", bearer("member-token")).Code)

	companies.Seed(models.Company{ID: homeTenant, IsActive: true, AccessFlags: models.DefaultAccessFlags()})
	companies.FailNext(store.OpSelect, errors.New("connection reset"))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/tasks", bearer("member-token")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/tasks", bearer("member-token")).Code)
}

func TestCompanyCacheKeepsRowsForTTL(t *testing.T) {
	companies := store.NewMemoryTable(models.Company{ID: homeTenant, Name: "Acme", IsActive: true})
	cc := NewCompanyCache(companies, 16, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		company, err := cc.Company(ctx, homeTenant)
		require.NoError(t, err)
		assert.Equal(t, "Acme", company.Name)
	}
	assert.Equal(t, 1, companies.Calls(store.OpSelect))

	_, err := cc.Company(ctx, otherTenant)
	assert.ErrorIs(t, err, ErrCompanyNotFound)
}
