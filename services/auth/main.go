package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
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

func setupRouter(h *authHandler, am *middleware.AuthMiddleware, m *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		m.Register(router)
	}

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Auth service is healthy", nil)
	})

	auth := router.Group("/auth")
	{
		auth.POST("/login", h.handleLogin())
		auth.POST("/logout", am.RequireAuth(), h.handleLogout())
		auth.GET("/me", am.RequireAuth(), h.handleMe())
		auth.POST("/acting-tenant", am.RequireAuth(), h.handleSwitchTenant())
		auth.DELETE("/acting-tenant", am.RequireAuth(), h.handleClearTenant())
	}
	return router
}

func main() {
	cfg := config.LoadAppConfig("8001")

	redisClient, err := utils.NewRedisClient(context.Background(), cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()
	sessions := session.NewRedisStore(redisClient)

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

	awsSess, err := awssession.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		log.Fatal("Failed to create AWS session:", err)
	}

	authenticator := NewCognitoAuthenticator(
		cognitoidentityprovider.New(awsSess),
		utils.NewJWKSValidator(cfg.AWSRegion, cfg.CognitoUserPoolID),
		utils.NewCircuitBreaker(5, 30*time.Second),
		cfg.CognitoClientID,
		os.Getenv("COGNITO_CLIENT_SECRET"),
	)

	h := &authHandler{
		auth:       authenticator,
		sessions:   sessions,
		users:      store.MustOpen[models.User](db),
		companies:  store.MustOpen[models.Company](db),
		publisher:  publisher,
		sessionTTL: cfg.SessionTTL,
		cookieName: cfg.SessionCookie,
		now:        time.Now,
		log:        logrus.WithField("service", "auth"),
	}

	am := middleware.NewAuthMiddleware(sessions, cfg.SessionCookie).
		WithCompanies(middleware.NewCompanyCache(h.companies, 1024, cfg.CompanyTTL))
	router := setupRouter(h, am, metrics.NewHTTPMetrics("auth"))

	logrus.Infof("Auth service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start auth service:", err)
	}
}
