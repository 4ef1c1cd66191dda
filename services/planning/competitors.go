package main

import (
	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-planning-dashboard/shared/apperrors"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// NameRequest names a criterion or competitor
type NameRequest struct {
	Name string `json:"nome" binding:"required"`
}

// ScoreRequest sets one cell of the matrix
type ScoreRequest struct {
	Competitor string `json:"concorrente" binding:"required"`
	Criterion  string `json:"criterio" binding:"required"`
	Score      *int   `json:"nota" binding:"required"`
}

type matrixEdit func(m *models.CompetitorMatrix) error

func mountCompetitors(g *gin.RouterGroup, e *entity[models.CompetitorMatrix, *models.CompetitorMatrix]) {
	// edit applies fn to a copy of the cached matrix and saves the nested lists
	edit := func(c *gin.Context, action, field string, fn matrixEdit) {
		id, ok := parseID(c, action)
		if !ok {
			return
		}
		ctl := controllerFor(workspaceOf(c), e)
		if err := ensureLoaded(c.Request.Context(), ctl, false); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		current, found := ctl.Get(id)
		if !found {
			utils.AppErrorResponse(c, apperrors.NotFound(action))
			return
		}

		m := current.Clone()
		if err := fn(&m); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, field, err))
			return
		}
		updated, err := ctl.Update(c.Request.Context(), id, m.Patch())
		if err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Saved", updated)
	}

	bindName := func(c *gin.Context, action string) (string, bool) {
		var req NameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation(action, "nome", err))
			return "", false
		}
		return req.Name, true
	}

	g.POST("/:id/criteria", func(c *gin.Context) {
		name, ok := bindName(c, "add criterion")
		if !ok {
			return
		}
		edit(c, "add criterion", "criterios", func(m *models.CompetitorMatrix) error {
			return m.AddCriterion(name)
		})
	})

	g.DELETE("/:id/criteria/:name", func(c *gin.Context) {
		edit(c, "remove criterion", "criterios", func(m *models.CompetitorMatrix) error {
			return m.RemoveCriterion(c.Param("name"))
		})
	})

	g.POST("/:id/competitors", func(c *gin.Context) {
		name, ok := bindName(c, "add competitor")
		if !ok {
			return
		}
		edit(c, "add competitor", "concorrentes", func(m *models.CompetitorMatrix) error {
			return m.AddCompetitor(name)
		})
	})

	g.DELETE("/:id/competitors/:name", func(c *gin.Context) {
		edit(c, "remove competitor", "concorrentes", func(m *models.CompetitorMatrix) error {
			return m.RemoveCompetitor(c.Param("name"))
		})
	})

	g.PUT("/:id/scores", func(c *gin.Context) {
		var req ScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.AppErrorResponse(c, apperrors.Validation("set score", "nota", err))
			return
		}
		edit(c, "set score", "nota", func(m *models.CompetitorMatrix) error {
			return m.SetScore(req.Competitor, req.Criterion, *req.Score)
		})
	})

	g.GET("/:id/ranking", func(c *gin.Context) {
		action := "load ranking"
		id, ok := parseID(c, action)
		if !ok {
			return
		}
		ctl := controllerFor(workspaceOf(c), e)
		if err := ensureLoaded(c.Request.Context(), ctl, false); err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		m, found := ctl.Get(id)
		if !found {
			utils.AppErrorResponse(c, apperrors.NotFound(action))
			return
		}
		utils.OKResponse(c, "", m.Ranking())
	})
}
