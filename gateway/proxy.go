package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// Identity headers set on proxied requests. Client-supplied values are dropped.
const (
	HeaderUserID   = "X-User-ID"
	HeaderEmail    = "X-User-Email"
	HeaderTenantID = "X-Tenant-ID"
	HeaderIsMaster = "X-Is-Master"
)

var identityHeaders = []string{HeaderUserID, HeaderEmail, HeaderTenantID, HeaderIsMaster}

// hop-by-hop headers are not forwarded
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Content-Length":    true,
}

// errUpstream marks 5xx answers so they count against the breaker
var errUpstream = errors.New("upstream error")

// ServiceClient handles HTTP communication with one backend
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
}

// NewServiceClient creates a new service client
func NewServiceClient(name, baseURL string) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breaker: utils.NewCircuitBreaker(5, 30*time.Second),
	}
}

// ProxyRequest forwards the request to the backend with the caller's identity
func (sc *ServiceClient) ProxyRequest(c *gin.Context) {
	targetURL := sc.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	var body []byte
	if c.Request.Body != nil {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.BadRequestResponse(c, "Failed to read request body")
			return
		}
		body = b
	}

	var (
		status  int
		header  http.Header
		payload []byte
	)
	err := sc.breaker.Execute(c.Request.Context(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, c.Request.Method, targetURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		copyHeaders(req.Header, c.Request.Header)
		setIdentity(req.Header, c)

		resp, err := sc.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		status, header = resp.StatusCode, resp.Header
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s answered %d", errUpstream, sc.name, status)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errUpstream) {
		logrus.WithFields(logrus.Fields{
			"service": sc.name,
			"path":    c.Request.URL.Path,
			"error":   err,
		}).Warn("Proxy request failed")
		if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
			utils.ServiceUnavailableResponse(c, "Service temporarily unavailable")
			return
		}
		utils.ErrorResponse(c, http.StatusBadGateway, "Failed to communicate with service")
		return
	}

	for key, values := range header {
		if hopHeaders[key] {
			continue
		}
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}
	c.Data(status, header.Get("Content-Type"), payload)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[key] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	for _, h := range identityHeaders {
		dst.Del(h)
	}
}

// setIdentity adds the headers of the session attached by LoadSession
func setIdentity(h http.Header, c *gin.Context) {
	if _, ok := middleware.GetSessionRecord(c); !ok {
		return
	}
	h.Set(HeaderUserID, c.GetString(middleware.KeyUserID))
	h.Set(HeaderEmail, c.GetString(middleware.KeyEmail))
	h.Set(HeaderTenantID, c.GetString(middleware.KeyTenantID))
	h.Set(HeaderIsMaster, strconv.FormatBool(c.GetBool(middleware.KeyIsMaster)))
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return nil
}

// ServiceClients holds the backend of every routed prefix
type ServiceClients struct {
	Auth     *ServiceClient
	Planning *ServiceClient
	Tenant   *ServiceClient
	Audit    *ServiceClient
	Frontend *ServiceClient
}

func (scs *ServiceClients) backends() []*ServiceClient {
	return []*ServiceClient{scs.Auth, scs.Planning, scs.Tenant, scs.Audit}
}

// GetServiceStatus returns the health and breaker state of every backend
func (scs *ServiceClients) GetServiceStatus(ctx context.Context) map[string]interface{} {
	status := make(map[string]interface{})
	for _, sc := range scs.backends() {
		entry := map[string]interface{}{
			"healthy": true,
			"breaker": string(sc.breaker.GetState()),
		}
		if err := sc.HealthCheck(ctx); err != nil {
			entry["healthy"] = false
			entry["error"] = err.Error()
		}
		status[sc.name] = entry
	}
	return status
}
