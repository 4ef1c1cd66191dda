package main

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// StatusRequest moves a task to another board column
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func mountTasks(g *gin.RouterGroup, e *entity[models.Task, *models.Task], now func() time.Time) {
	g.GET("/board", func(c *gin.Context) {
		ctl := controllerFor(workspaceOf(c), e)
		rows, ok := filtered(c, ctl, "load tasks")
		if !ok {
			return
		}
		utils.OKResponse(c, "", models.GroupByStatus(rows))
	})

	// GET /calendar?month=2024-03; defaults to the current month
	g.GET("/calendar", func(c *gin.Context) {
		month := c.DefaultQuery("month", now().Format("2006-01"))
		first, err := time.Parse("2006-01", month)
		if err != nil {
			utils.AppErrorResponse(c, apperrors.Validation("load calendar", "month", fmt.Errorf("expected YYYY-MM: %w", err)))
			return
		}

		ctl := controllerFor(workspaceOf(c), e)
		if err := ensureLoaded(c.Request.Context(), ctl, false); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "", gin.H{
			"month": month,
			"days":  models.CalendarMonth(ctl.Items(), first.Year(), first.Month()),
		})
	})

	g.PATCH("/:id/status", func(c *gin.Context) {
		action := "move task"
		id, ok := parseID(c, action)
		if !ok {
			return
		}
		var req StatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, "status", err))
			return
		}
		if !models.IsValidTaskStatus(req.Status) {
			utils.AppErrorResponse(c, apperrors.Validation(action, "status", fmt.Errorf("unknown status %q", req.Status)))
			return
		}

		ctl := controllerFor(workspaceOf(c), e)
		if err := ensureLoaded(c.Request.Context(), ctl, false); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		updated, err := ctl.Update(c.Request.Context(), id, map[string]interface{}{"status": req.Status})
		if err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Saved", updated)
	})
}
