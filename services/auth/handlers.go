package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/events"
	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// SessionStore persists session records keyed by access token
type SessionStore interface {
	Create(ctx context.Context, token string, identity session.Identity, flags models.AccessFlags, ttl time.Duration) (session.Record, error)
	Save(ctx context.Context, token string, r session.Record) error
	Delete(ctx context.Context, token string) error
}

// LoginRequest represents the login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ActingTenantRequest selects the company a master works on
type ActingTenantRequest struct {
	CompanyID string `json:"empresa_id" binding:"required"`
}

// SessionView is the session as returned to clients
type SessionView struct {
	SessionID       string             `json:"session_id"`
	User            *session.Identity  `json:"user"`
	ActingAs        *uuid.UUID         `json:"acting_as,omitempty"`
	EffectiveTenant uuid.UUID          `json:"empresa_id"`
	AccessFlags     models.AccessFlags `json:"access_flags"`
	ExpiresAt       time.Time          `json:"expires_at"`
}

type authHandler struct {
	auth       Authenticator
	sessions   SessionStore
	users      store.Table[models.User]
	companies  store.Table[models.Company]
	publisher  events.Publisher
	sessionTTL time.Duration
	cookieName string
	now        func() time.Time
	log        *logrus.Entry
}

func viewOf(r session.Record) SessionView {
	tenant, _ := r.Snapshot().EffectiveTenant()
	return SessionView{
		SessionID:       r.SessionID,
		User:            r.Identity,
		ActingAs:        r.ActingAs,
		EffectiveTenant: tenant,
		AccessFlags:     r.AccessFlags,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (h *authHandler) findCompany(ctx context.Context, id uuid.UUID) (models.Company, bool, error) {
	rows, err := h.companies.Select(ctx, store.Filter{"id": id})
	if err != nil && !store.IsNoRows(err) {
		return models.Company{}, false, err
	}
	if len(rows) == 0 {
		return models.Company{}, false, nil
	}
	return rows[0], true, nil
}

// handleLogin checks credentials, resolves the user's company and opens a session
func (h *authHandler) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		ctx := c.Request.Context()

		login, err := h.auth.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidCredentials):
				utils.UnauthorizedResponse(c, "Invalid credentials")
			case errors.Is(err, utils.ErrCircuitOpen), errors.Is(err, utils.ErrTooManyRequests):
				utils.ServiceUnavailableResponse(c, "Authentication service temporarily unavailable")
			default:
				h.log.WithError(err).Error("Login failed")
				utils.ServiceUnavailableResponse(c, "Authentication service temporarily unavailable")
			}
			return
		}

		users, err := h.users.Select(ctx, store.Filter{"cognito_id": login.Subject})
		if err != nil && !store.IsNoRows(err) {
			utils.AppErrorResponse(c, apperrors.Read("log in", err))
			return
		}
		if len(users) == 0 {
			h.log.WithField("cognito_id", login.Subject).Warn("Authenticated user has no profile")
			utils.ForbiddenResponse(c, "Your account is not linked to a company")
			return
		}
		user := users[0]

		company, found, err := h.findCompany(ctx, user.CompanyID)
		if err != nil {
			utils.AppErrorResponse(c, apperrors.Read("log in", err))
			return
		}
		if !found || (!company.IsActive && !user.IsMaster) {
			utils.ForbiddenResponse(c, "Your company is not active")
			return
		}

		identity := session.Identity{
			ID:          user.CognitoID,
			Email:       firstNonEmpty(user.Email, login.Email),
			DisplayName: firstNonEmpty(user.Name, login.Name),
			AvatarURL:   firstNonEmpty(user.AvatarURL, login.Picture),
			TenantID:    user.CompanyID,
			IsMaster:    user.IsMaster,
		}

		ttl := h.sessionTTL
		if login.ExpiresIn > 0 {
			if tokenTTL := time.Duration(login.ExpiresIn) * time.Second; tokenTTL < ttl {
				ttl = tokenTTL
			}
		}

		record, err := h.sessions.Create(ctx, login.AccessToken, identity, company.AccessFlags, ttl)
		if err != nil {
			h.log.WithError(err).Error("Failed to create session")
			utils.InternalServerErrorResponse(c, "Failed to create session")
			return
		}

		now := h.now()
		patch := map[string]interface{}{"last_login_at": now}
		if err := h.users.Update(ctx, patch, store.Filter{"cognito_id": user.CognitoID}); err != nil {
			h.log.WithError(err).Warn("Failed to record last login")
		}

		h.publish(identity.TenantID, identity.ID, models.ActionLogin, nil)

		if h.cookieName != "" {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(h.cookieName, login.AccessToken, int(ttl.Seconds()), "/", "", false, true)
		}

		utils.OKResponse(c, "Login successful", gin.H{
			"access_token": login.AccessToken,
			"token_type":   "Bearer",
			"expires_in":   int64(ttl.Seconds()),
			"session":      viewOf(record),
		})
	}
}

func (h *authHandler) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, _ := middleware.GetSessionRecord(c)
		if err := h.sessions.Delete(c.Request.Context(), middleware.GetToken(c)); err != nil {
			h.log.WithError(err).Error("Failed to revoke session")
			utils.InternalServerErrorResponse(c, "Failed to log out")
			return
		}

		if record.Identity != nil {
			h.publish(record.Identity.TenantID, record.Identity.ID, models.ActionLogout, nil)
		}
		if h.cookieName != "" {
			c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
		}
		utils.OKResponse(c, "Logged out", nil)
	}
}

func (h *authHandler) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := middleware.GetSessionRecord(c)
		if !ok {
			utils.AppErrorResponse(c, apperrors.NotAuthenticated(""))
			return
		}
		utils.OKResponse(c, "", viewOf(record))
	}
}

// handleSwitchTenant makes a master act as another company
func (h *authHandler) handleSwitchTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ActingTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "empresa_id is required")
			return
		}
		target, err := uuid.Parse(req.CompanyID)
		if err != nil {
			utils.AppErrorResponse(c, apperrors.Validation("switch company", "empresa_id", err))
			return
		}

		record, ok := middleware.GetSessionRecord(c)
		if !ok {
			utils.AppErrorResponse(c, apperrors.NotAuthenticated("switch company"))
			return
		}
		sess := session.New(nil)
		sess.Restore(record.Snapshot())

		// Non-masters are rejected before the company lookup
		if id, _ := sess.Identity(); !id.IsMaster {
			utils.AppErrorResponse(c, apperrors.Forbidden("switch company"))
			return
		}

		_, found, err := h.findCompany(c.Request.Context(), target)
		if err != nil {
			utils.AppErrorResponse(c, apperrors.Read("switch company", err))
			return
		}
		if !found {
			utils.AppErrorResponse(c, apperrors.NotFound("switch company"))
			return
		}

		if err := sess.SwitchTenant(target); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		h.persist(c, record, sess, models.ActionTenantSwitch, "Now acting as company")
	}
}

func (h *authHandler) handleClearTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := middleware.GetSessionRecord(c)
		if !ok {
			utils.AppErrorResponse(c, apperrors.NotAuthenticated("switch company"))
			return
		}
		sess := session.New(nil)
		sess.Restore(record.Snapshot())
		sess.ClearActingTenant()
		h.persist(c, record, sess, models.ActionTenantRelease, "Back to home company")
	}
}

func (h *authHandler) persist(c *gin.Context, record session.Record, sess *session.Session, action, message string) {
	record.Apply(sess.Snapshot())
	record.LastUsedAt = h.now()
	if err := h.sessions.Save(c.Request.Context(), middleware.GetToken(c), record); err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			utils.AppErrorResponse(c, apperrors.NotAuthenticated("switch company"))
			return
		}
		utils.AppErrorResponse(c, apperrors.Write("switch company", err))
		return
	}

	tenant, _ := record.Snapshot().EffectiveTenant()
	h.publish(tenant, record.Identity.ID, action, models.Payload{"home_empresa_id": record.Identity.TenantID.String()})
	utils.OKResponse(c, message, viewOf(record))
}

func (h *authHandler) publish(tenant uuid.UUID, actor, action string, payload models.Payload) {
	event := events.NewEvent(tenant, actor, action)
	event.Entity = "session"
	event.Payload = payload
	if err := h.publisher.Publish(event); err != nil {
		h.log.WithFields(logrus.Fields{"action": action, "error": err}).Warn("Audit event dropped")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
