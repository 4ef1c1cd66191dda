package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/config"
	"github.com/pavitra93/go-planning-dashboard/shared/metrics"
	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// route sends every path under prefix to one backend
type route struct {
	prefix string
	client *ServiceClient
}

type gateway struct {
	routes   []route
	frontend *ServiceClient
}

func newGateway(scs *ServiceClients) *gateway {
	return &gateway{
		routes: []route{
			{"/auth", scs.Auth},
			{"/api", scs.Planning},
			{"/companies", scs.Tenant},
			{"/audit", scs.Audit},
		},
		frontend: scs.Frontend,
	}
}

// dispatch proxies API prefixes to their service and gates everything else
// as a frontend page
func (g *gateway) dispatch(c *gin.Context) {
	p := c.Request.URL.Path
	for _, r := range g.routes {
		if under(p, r.prefix) {
			r.client.ProxyRequest(c)
			return
		}
	}

	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		utils.NotFoundResponse(c, "Not found")
		return
	}
	if redirect, ok := Decide(p, viewerOf(c)); !ok {
		c.Redirect(http.StatusFound, redirect)
		return
	}
	g.frontend.ProxyRequest(c)
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setupRouter(g *gateway, scs *ServiceClients, am *middleware.AuthMiddleware, allowedOrigins []string, m *metrics.HTTPMetrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(allowedOrigins))
	if m != nil {
		m.Register(router)
	}

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})
	router.GET("/status", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		utils.OKResponse(c, "", scs.GetServiceStatus(ctx))
	})

	router.NoRoute(am.LoadSession(), g.dispatch)
	return router
}

func serviceURL(key, fallback string) string {
	return strings.TrimRight(getEnv(key, fallback), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := config.LoadAppConfig("8080")

	redisClient, err := utils.NewRedisClient(context.Background(), cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	scs := &ServiceClients{
		Auth:     NewServiceClient("auth_service", serviceURL("AUTH_SERVICE_URL", "http://localhost:8001")),
		Planning: NewServiceClient("planning_service", serviceURL("PLANNING_SERVICE_URL", "http://localhost:8002")),
		Tenant:   NewServiceClient("tenant_service", serviceURL("TENANT_SERVICE_URL", "http://localhost:8003")),
		Audit:    NewServiceClient("audit_service", serviceURL("AUDIT_SERVICE_URL", "http://localhost:8004")),
		Frontend: NewServiceClient("frontend", strings.TrimRight(cfg.FrontendURL, "/")),
	}

	am := middleware.NewAuthMiddleware(session.NewRedisStore(redisClient), cfg.SessionCookie)
	if !cfg.UsesMemoryStore() {
		db, err := config.ConnectDatabase()
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		am.WithCompanies(middleware.NewCompanyCache(store.MustOpen[models.Company](db), 1024, cfg.CompanyTTL))
	}
	router := setupRouter(newGateway(scs), scs, am, cfg.AllowedOrigins, metrics.NewHTTPMetrics("gateway"))

	logrus.Infof("API Gateway starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}
