package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// Context keys set by RequireAuth and LoadSession
const (
	KeyToken       = "session_token"
	KeyRecord      = "session_record"
	KeyUserID      = "user_id"
	KeyEmail       = "email"
	KeyTenantID    = "tenant_id"
	KeyIsMaster    = "is_master"
	KeyAccessFlags = "access_flags"
)

// SessionLoader resolves an access token into its session record
type SessionLoader interface {
	Load(ctx context.Context, token string) (session.Record, error)
}

// AuthMiddleware authenticates requests against the session store
type AuthMiddleware struct {
	sessions   SessionLoader
	companies  CompanySource
	cookieName string
}

// NewAuthMiddleware creates a new authentication middleware. Tokens are read
// from the Authorization header, falling back to cookieName.
func NewAuthMiddleware(sessions SessionLoader, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, cookieName: cookieName}
}

// WithCompanies makes every request of a non-master re-read its company.
// Access flags then come from the company instead of the login snapshot, and
// sessions of a deactivated company stop authenticating.
func (am *AuthMiddleware) WithCompanies(companies CompanySource) *AuthMiddleware {
	am.companies = companies
	return am
}

// RequireAuth rejects requests without a live session
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.authenticate(c) {
			utils.AppErrorResponse(c, apperrors.NotAuthenticated(""))
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoadSession attaches the session when one exists and never rejects
func (am *AuthMiddleware) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		am.authenticate(c)
		c.Next()
	}
}

func (am *AuthMiddleware) authenticate(c *gin.Context) bool {
	token := ExtractToken(c, am.cookieName)
	if token == "" {
		return false
	}

	record, err := am.sessions.Load(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, session.ErrSessionExpired) {
			logrus.WithError(err).Warn("Session lookup failed")
		}
		return false
	}
	if record.Identity == nil {
		return false
	}

	flags := record.AccessFlags
	if am.companies != nil && !record.Identity.IsMaster {
		company, err := am.companies.Company(c.Request.Context(), record.Identity.TenantID)
		if err != nil {
			if !errors.Is(err, ErrCompanyNotFound) {
				logrus.WithError(err).Warn("Company lookup failed")
			}
			return false
		}
		if !company.IsActive {
			return false
		}
		flags = company.AccessFlags
	}

	tenant, _ := record.Snapshot().EffectiveTenant()

	c.Set(KeyToken, token)
	c.Set(KeyRecord, record)
	c.Set(KeyUserID, record.Identity.ID)
	c.Set(KeyEmail, record.Identity.Email)
	c.Set(KeyTenantID, tenant.String())
	c.Set(KeyIsMaster, record.Identity.IsMaster)
	c.Set(KeyAccessFlags, flags)
	return true
}

// RequireMaster allows only master identities. Must run after RequireAuth.
func (am *AuthMiddleware) RequireMaster() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(KeyIsMaster) {
			utils.AppErrorResponse(c, apperrors.Forbidden(""))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireFeature allows masters, and others whose company has feature enabled
func (am *AuthMiddleware) RequireFeature(feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(KeyIsMaster) {
			c.Next()
			return
		}

		flags, _ := c.Get(KeyAccessFlags)
		af, _ := flags.(models.AccessFlags)
		if !af.Allows(feature) {
			utils.AppErrorResponse(c, apperrors.Forbidden(""))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ExtractToken reads a bearer token from the Authorization header or, when
// absent, from the named cookie
func ExtractToken(c *gin.Context, cookieName string) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if authHeader != "" {
		return authHeader
	}

	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil {
			return cookie
		}
	}
	return ""
}

// GetSessionRecord returns the record attached by RequireAuth
func GetSessionRecord(c *gin.Context) (session.Record, bool) {
	v, ok := c.Get(KeyRecord)
	if !ok {
		return session.Record{}, false
	}
	r, ok := v.(session.Record)
	return r, ok
}

// GetToken returns the access token of the request
func GetToken(c *gin.Context) string {
	return c.GetString(KeyToken)
}
