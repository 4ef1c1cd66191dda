package main

import (
	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

func mountFinance(g *gin.RouterGroup, e *entity[models.FinancialEntry, *models.FinancialEntry]) {
	// GET /summary honours the same filters as the listing
	g.GET("/summary", func(c *gin.Context) {
		ctl := controllerFor(workspaceOf(c), e)
		rows, ok := filtered(c, ctl, "summarize financial entries")
		if !ok {
			return
		}
		utils.OKResponse(c, "", models.Summarize(rows))
	})
}
