package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/events"
	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// CreateCompanyRequest represents the create company request
type CreateCompanyRequest struct {
	Name        string             `json:"nome" binding:"required"`
	AccessFlags models.AccessFlags `json:"acessos"`
}

// UpdateCompanyRequest represents the update company request
type UpdateCompanyRequest struct {
	Name     *string `json:"nome"`
	IsActive *bool   `json:"ativo"`
}

type tenantHandler struct {
	companies store.Table[models.Company]
	publisher events.Publisher
	now       func() time.Time
	log       *logrus.Entry
}

func (h *tenantHandler) find(ctx context.Context, id uuid.UUID) (models.Company, bool, error) {
	rows, err := h.companies.Select(ctx, store.Filter{"id": id})
	if err != nil && !store.IsNoRows(err) {
		return models.Company{}, false, err
	}
	if len(rows) == 0 {
		return models.Company{}, false, nil
	}
	return rows[0], true, nil
}

// nameTaken reports whether another company already uses name
func (h *tenantHandler) nameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error) {
	rows, err := h.companies.Select(ctx, store.Filter{})
	if err != nil && !store.IsNoRows(err) {
		return false, err
	}
	for _, c := range rows {
		if c.ID != except && strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return true, nil
		}
	}
	return false, nil
}

// lookup resolves the :id param, answering the request itself on failure
func (h *tenantHandler) lookup(c *gin.Context, action string) (models.Company, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.AppErrorResponse(c, apperrors.Validation(action, "id", err))
		return models.Company{}, false
	}
	company, found, err := h.find(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, apperrors.Read(action, err))
		return models.Company{}, false
	}
	if !found {
		utils.AppErrorResponse(c, apperrors.NotFound(action))
		return models.Company{}, false
	}
	return company, true
}

func validateFlags(flags models.AccessFlags) error {
	for name := range flags {
		if !models.IsKnownFeature(name) {
			return fmt.Errorf("unknown feature %q", name)
		}
	}
	return nil
}

// handleGetCompanies lists every company by name
func (h *tenantHandler) handleGetCompanies() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := h.companies.Select(c.Request.Context(), store.Filter{})
		if err != nil && !store.IsNoRows(err) {
			utils.AppErrorResponse(c, apperrors.Read("load companies", err))
			return
		}
		if rows == nil {
			rows = []models.Company{}
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
		})
		utils.OKResponse(c, "", rows)
	}
}

// handleCreateCompany registers a company. Flags default to every feature.
func (h *tenantHandler) handleCreateCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		action := "create company"
		var req CreateCompanyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, "nome", err))
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			utils.AppErrorResponse(c, apperrors.Validation(action, "nome", fmt.Errorf("name is required")))
			return
		}
		flags := req.AccessFlags
		if flags == nil {
			flags = models.DefaultAccessFlags()
		}
		if err := validateFlags(flags); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, "acessos", err))
			return
		}

		ctx := c.Request.Context()
		taken, err := h.nameTaken(ctx, name, uuid.Nil)
		if err != nil {
			utils.AppErrorResponse(c, apperrors.Read(action, err))
			return
		}
		if taken {
			utils.AppErrorResponse(c, apperrors.Validation(action, "nome", fmt.Errorf("company %q already exists", name)))
			return
		}

		now := h.now()
		company, err := h.companies.Insert(ctx, models.Company{
			ID:          uuid.New(),
			Name:        name,
			IsActive:    true,
			AccessFlags: flags,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			utils.AppErrorResponse(c, apperrors.Write(action, err))
			return
		}

		h.publish(c, company.ID, models.ActionCompanyCreate, models.Payload{"nome": company.Name})
		utils.CreatedResponse(c, "Company created successfully", company)
	}
}

func (h *tenantHandler) handleGetCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		company, ok := h.lookup(c, "load company")
		if !ok {
			return
		}
		utils.OKResponse(c, "", company)
	}
}

// handleUpdateCompany renames or (de)activates a company
func (h *tenantHandler) handleUpdateCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		action := "update company"
		company, ok := h.lookup(c, action)
		if !ok {
			return
		}

		var req UpdateCompanyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, "", err))
			return
		}

		ctx := c.Request.Context()
		patch := map[string]interface{}{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				utils.AppErrorResponse(c, apperrors.Validation(action, "nome", fmt.Errorf("name is required")))
				return
			}
			taken, err := h.nameTaken(ctx, name, company.ID)
			if err != nil {
				utils.AppErrorResponse(c, apperrors.Read(action, err))
				return
			}
			if taken {
				utils.AppErrorResponse(c, apperrors.Validation(action, "nome", fmt.Errorf("company %q already exists", name)))
				return
			}
			patch["nome"] = name
		}
		if req.IsActive != nil {
			patch["ativo"] = *req.IsActive
		}
		if len(patch) == 0 {
			utils.AppErrorResponse(c, apperrors.Validation(action, "", fmt.Errorf("nothing to update")))
			return
		}

		h.save(c, action, company.ID, patch, models.ActionCompanyUpdate)
	}
}

// handleSetAccessFlags replaces the company's feature flags. Features left out
// are disabled.
func (h *tenantHandler) handleSetAccessFlags() gin.HandlerFunc {
	return func(c *gin.Context) {
		action := "update access flags"
		company, ok := h.lookup(c, action)
		if !ok {
			return
		}

		var flags models.AccessFlags
		if err := c.ShouldBindJSON(&flags); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, "acessos", err))
			return
		}
		if err := validateFlags(flags); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, "acessos", err))
			return
		}
		if flags == nil {
			flags = models.AccessFlags{}
		}

		h.save(c, action, company.ID, map[string]interface{}{"acessos": flags}, models.ActionAccessChange)
	}
}

// save writes patch, reads the company back and answers with it
func (h *tenantHandler) save(c *gin.Context, action string, id uuid.UUID, patch map[string]interface{}, auditAction string) {
	ctx := c.Request.Context()
	patch["updated_at"] = h.now()
	if err := h.companies.Update(ctx, patch, store.Filter{"id": id}); err != nil {
		if store.IsNoRows(err) {
			utils.AppErrorResponse(c, apperrors.NotFound(action))
			return
		}
		utils.AppErrorResponse(c, apperrors.Write(action, err))
		return
	}

	company, found, err := h.find(ctx, id)
	if err != nil || !found {
		h.log.WithFields(logrus.Fields{"empresa_id": id, "error": err}).Warn("Re-fetch after update failed")
		utils.OKResponse(c, "Company updated successfully", nil)
		return
	}

	columns := make([]string, 0, len(patch))
	for k := range patch {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	h.publish(c, id, auditAction, models.Payload{"columns": columns})
	utils.OKResponse(c, "Company updated successfully", company)
}

func (h *tenantHandler) publish(c *gin.Context, company uuid.UUID, action string, payload models.Payload) {
	event := events.NewEvent(company, c.GetString(middleware.KeyUserID), action)
	event.Entity = models.Company{}.TableName()
	event.Payload = payload
	if err := h.publisher.Publish(event); err != nil {
		h.log.WithFields(logrus.Fields{"action": action, "error": err}).Warn("Audit event dropped")
	}
}
