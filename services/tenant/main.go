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

func setupRouter(h *tenantHandler, am *middleware.AuthMiddleware, m *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		m.Register(router)
	}

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Tenant service is healthy", nil)
	})

	// Company management is platform administration: masters only
	companies := router.Group("/companies", am.RequireAuth(), am.RequireMaster())
	{
		companies.GET("", h.handleGetCompanies())
		companies.POST("", h.handleCreateCompany())
		companies.GET("/:id", h.handleGetCompany())
		companies.PUT("/:id", h.handleUpdateCompany())
		companies.PUT("/:id/access-flags", h.handleSetAccessFlags())
	}
	return router
}

func main() {
	cfg := config.LoadAppConfig("8003")

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
		if err := config.Migrate(db); err != nil {
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

	h := &tenantHandler{
		companies: store.MustOpen[models.Company](db, store.OrderBy("nome")),
		publisher: publisher,
		now:       time.Now,
		log:       logrus.WithField("service", "tenant"),
	}

	am := middleware.NewAuthMiddleware(session.NewRedisStore(redisClient), cfg.SessionCookie)
	router := setupRouter(h, am, metrics.NewHTTPMetrics("tenant"))

	logrus.Infof("Tenant service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start tenant service:", err)
	}
}
