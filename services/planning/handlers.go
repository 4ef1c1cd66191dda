package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/collection"
	"github.com/pavitra93/go-planning-dashboard/shared/export"
	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

const keyWorkspace = "workspace"

// requireWorkspace attaches the caller's workspace. Must run after RequireAuth.
func requireWorkspace(w *workspaces) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := middleware.GetSessionRecord(c)
		if !ok {
			utils.AppErrorResponse(c, apperrors.NotAuthenticated(""))
			c.Abort()
			return
		}
		c.Set(keyWorkspace, w.acquire(record))
		c.Next()
	}
}

func workspaceOf(c *gin.Context) *workspace {
	return c.MustGet(keyWorkspace).(*workspace)
}

// ensureLoaded loads the cache unless it is already ready. force reloads.
func ensureLoaded[T any, P models.RecordPtr[T]](ctx context.Context, ctl *collection.Controller[T, P], force bool) error {
	if !force && ctl.State() == collection.StateReady {
		return nil
	}
	return ctl.Load(ctx)
}

func parseID(c *gin.Context, action string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.AppErrorResponse(c, apperrors.Validation(action, "id", fmt.Errorf("invalid id %q", c.Param("id"))))
		return 0, false
	}
	return id, true
}

func bindFields(c *gin.Context, action string) (map[string]interface{}, bool) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		utils.AppErrorResponse(c, apperrors.Validation(action, "", err))
		return nil, false
	}
	return fields, true
}

// filtered loads when needed and applies the request's query predicates
func filtered[T any, P models.RecordPtr[T]](c *gin.Context, ctl *collection.Controller[T, P], action string) ([]T, bool) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	if err := ensureLoaded(c.Request.Context(), ctl, refresh); err != nil {
		utils.AppErrorResponse(c, err)
		return nil, false
	}

	preds, err := collection.ParsePredicates(c.Request.URL.Query())
	if err != nil {
		utils.AppErrorResponse(c, apperrors.Validation(action, "", err))
		return nil, false
	}
	rows, err := ctl.Filter(preds...)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return nil, false
	}
	return rows, true
}

// mountEntity registers the CRUD, filter and export routes of e under
// /<slug> and returns the group for entity-specific routes
func mountEntity[T any, P models.RecordPtr[T]](api *gin.RouterGroup, am *middleware.AuthMiddleware, e *entity[T, P]) *gin.RouterGroup {
	g := api.Group("/"+e.slug, am.RequireFeature(e.feature))
	cols := store.MustColumnsOf[T]()

	g.GET("", func(c *gin.Context) {
		ctl := controllerFor(workspaceOf(c), e)
		rows, ok := filtered(c, ctl, "load "+e.def.Name)
		if !ok {
			return
		}
		utils.OKResponse(c, "", rows)
	})

	g.GET("/export.csv", func(c *gin.Context) {
		ctl := controllerFor(workspaceOf(c), e)
		rows, ok := filtered(c, ctl, "export "+e.def.Name)
		if !ok {
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.slug+".csv"))
		if err := export.CSV(c.Writer, cols, rows, models.ColumnTenant); err != nil {
			_ = c.Error(err)
		}
	})

	g.GET("/:id", func(c *gin.Context) {
		action := "load " + e.def.Name
		id, ok := parseID(c, action)
		if !ok {
			return
		}
		ctl := controllerFor(workspaceOf(c), e)
		if err := ensureLoaded(c.Request.Context(), ctl, false); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		row, found := ctl.Get(id)
		if !found {
			utils.AppErrorResponse(c, apperrors.NotFound(action))
			return
		}
		utils.OKResponse(c, "", row)
	})

	g.POST("", func(c *gin.Context) {
		fields, ok := bindFields(c, "create "+e.def.Name)
		if !ok {
			return
		}
		ctl := controllerFor(workspaceOf(c), e)
		created, err := ctl.Create(c.Request.Context(), fields)
		if err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.CreatedResponse(c, "Saved", created)
	})

	g.PUT("/:id", func(c *gin.Context) {
		action := "update " + e.def.Name
		id, ok := parseID(c, action)
		if !ok {
			return
		}
		patch, ok := bindFields(c, action)
		if !ok {
			return
		}
		ctl := controllerFor(workspaceOf(c), e)
		if err := ensureLoaded(c.Request.Context(), ctl, false); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		updated, err := ctl.Update(c.Request.Context(), id, patch)
		if err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Saved", updated)
	})

	g.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c, "delete "+e.def.Name)
		if !ok {
			return
		}
		ctl := controllerFor(workspaceOf(c), e)
		if err := ensureLoaded(c.Request.Context(), ctl, false); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		if err := ctl.Remove(c.Request.Context(), id); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Deleted", nil)
	})

	return g
}
