package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-planning-dashboard/shared/config"
	"github.com/pavitra93/go-planning-dashboard/shared/events"
	"github.com/pavitra93/go-planning-dashboard/shared/metrics"
	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

func setupRouter(ws *workspaces, t *tables, am *middleware.AuthMiddleware, m *metrics.HTTPMetrics, now func() time.Time) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		m.Register(router)
	}

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Planning service is healthy", nil)
	})

	api := router.Group("/api", am.RequireAuth(), requireWorkspace(ws))
	{
		mountEntity(api, am, &entity[models.Problem, *models.Problem]{
			slug: "problems", feature: models.FeatureProblems, def: problemDef, table: t.problems,
		})
		mountEntity(api, am, &entity[models.CustomerSegment, *models.CustomerSegment]{
			slug: "customer-segments", feature: models.FeatureCustomerSegment, def: segmentDef, table: t.segments,
		})
		mountEntity(api, am, &entity[models.TargetAudience, *models.TargetAudience]{
			slug: "target-audiences", feature: models.FeatureTargetAudience, def: audienceDef, table: t.audiences,
		})
		mountEntity(api, am, &entity[models.Channel, *models.Channel]{
			slug: "channels", feature: models.FeatureChannels, def: channelDef, table: t.channels,
		})
		finance := &entity[models.FinancialEntry, *models.FinancialEntry]{
			slug: "financial-entries", feature: models.FeatureFinance, def: financeDef, table: t.finance,
		}
		mountFinance(mountEntity(api, am, finance), finance)
		mountEntity(api, am, &entity[models.Metric, *models.Metric]{
			slug: "metrics", feature: models.FeatureMetrics, def: metricDef, table: t.metrics,
		})
		tasks := &entity[models.Task, *models.Task]{
			slug: "tasks", feature: models.FeatureTasks, def: taskDef, table: t.tasks,
		}
		mountTasks(mountEntity(api, am, tasks), tasks, now)
		competitors := &entity[models.CompetitorMatrix, *models.CompetitorMatrix]{
			slug: "competitor-matrices", feature: models.FeatureCompetitors, def: competitorDef, table: t.competitors,
		}
		mountCompetitors(mountEntity(api, am, competitors), competitors)
		mountEntity(api, am, &entity[models.Benefit, *models.Benefit]{
			slug: "benefits", feature: models.FeatureBenefits, def: benefitDef, table: t.benefits,
		})
		mountEntity(api, am, &entity[models.Feature, *models.Feature]{
			slug: "features", feature: models.FeatureFeatures, def: featureDef, table: t.features,
		})
	}
	return router
}

func main() {
	cfg := config.LoadAppConfig("8002")

	redisClient, err := utils.NewRedisClient(context.Background(), cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	var db *gorm.DB
	if !cfg.UsesMemoryStore() {
		db, err = config.ConnectDatabase()
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		if err := config.Migrate(db, config.PlanningModels()...); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
	} else {
		logrus.Warn("Using in-memory store; data is lost on restart")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaEnabled {
		kp := events.NewKafkaPublisher(cfg.KafkaBroker, cfg.AuditTopic, cfg.AuditWorkers, cfg.AuditBuffer)
		defer kp.Close()
		publisher = kp
	}

	m := metrics.NewHTTPMetrics("planning")
	ws := newWorkspaces(cfg.WorkspaceSize, cfg.WorkspaceIdle, publisher, m)
	defer ws.purge()

	am := middleware.NewAuthMiddleware(session.NewRedisStore(redisClient), cfg.SessionCookie)
	if db != nil {
		am.WithCompanies(middleware.NewCompanyCache(store.MustOpen[models.Company](db), 1024, cfg.CompanyTTL))
	}
	router := setupRouter(ws, openTables(db), am, m, time.Now)

	logrus.Infof("Planning service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start planning service:", err)
	}
}
