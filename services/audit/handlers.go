package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// handleListEvents returns the newest events, optionally for one company
func handleListEvents(events store.Table[models.AuditEvent]) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := "load audit events"
		filter := store.Filter{}
		if raw := c.Query("empresa_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				utils.AppErrorResponse(c, apperrors.Validation(action, "empresa_id", err))
				return
			}
			filter[models.ColumnTenant] = id
		}

		limit := defaultLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxLimit {
				utils.AppErrorResponse(c, apperrors.Validation(action, "limit", fmt.Errorf("limit must be between 1 and %d", maxLimit)))
				return
			}
			limit = n
		}

		rows, err := events.Select(c.Request.Context(), filter)
		if err != nil && !store.IsNoRows(err) {
			utils.AppErrorResponse(c, apperrors.Read(action, err))
			return
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].OccurredAt.After(rows[j].OccurredAt)
		})
		if len(rows) > limit {
			rows = rows[:limit]
		}
		if rows == nil {
			rows = []models.AuditEvent{}
		}
		utils.OKResponse(c, "", rows)
	}
}
