package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-planning-dashboard/shared/config"
	"github.com/pavitra93/go-planning-dashboard/shared/metrics"
	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

func setupRouter(events store.Table[models.AuditEvent], am *middleware.AuthMiddleware, m *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		m.Register(router)
	}

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Audit service is healthy", nil)
	})
	router.GET("/audit", am.RequireAuth(), am.RequireMaster(), handleListEvents(events))
	return router
}

func main() {
	cfg := config.LoadAppConfig("8004")

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
		if err := config.Migrate(db, &models.AuditEvent{}); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
	} else {
		logrus.Warn("Using in-memory store; data is lost on restart")
	}
	events := store.MustOpen[models.AuditEvent](db, store.OrderBy("occurred_at DESC"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.KafkaEnabled {
		consumer := &auditConsumer{
			reader:  newKafkaReader(cfg.KafkaBroker, cfg.AuditTopic, cfg.AuditGroupID),
			events:  events,
			backoff: time.Second,
			log:     logrus.WithField("component", "audit-consumer"),
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logrus.WithError(err).Error("Audit consumer stopped")
			}
		}()
	} else {
		logrus.Warn("Kafka disabled; audit consumer not started")
	}

	am := middleware.NewAuthMiddleware(session.NewRedisStore(redisClient), cfg.SessionCookie)
	router := setupRouter(events, am, metrics.NewHTTPMetrics("audit"))

	logrus.Infof("Audit service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start audit service:", err)
	}
}
