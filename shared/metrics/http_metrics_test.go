package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m := NewHTTPMetrics("planning")
	m.Register(r)
	r.GET("/api/tasks/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/tasks/:id",service="planning",status="404"} 1`)
	assert.Contains(t, body, `http_status_category_total{category="4xx",method="GET",path="/api/tasks/:id",service="planning"} 1`)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewHTTPMetrics("auth")
		NewHTTPMetrics("auth")
	})
}
