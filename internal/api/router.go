package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mesikahq/outbreak-exchange/internal/auth"
	"github.com/mesikahq/outbreak-exchange/internal/config"
	"github.com/mesikahq/outbreak-exchange/internal/metrics"
	"github.com/mesikahq/outbreak-exchange/internal/middleware"
)

type Router struct {
	handler     *Handler
	authService auth.Service
	metrics     *metrics.Metrics
	cfg         config.ServerConfig
}

func NewRouter(handler *Handler, authService auth.Service, m *metrics.Metrics, cfg config.ServerConfig) *Router {
	return &Router{
		handler:     handler,
		authService: authService,
		metrics:     m,
		cfg:         cfg,
	}
}

func (r *Router) SetupRouter(logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.Metrics(r.metrics),
		middleware.AuditContext(),
	)
	if r.cfg.RateLimit > 0 {
		router.Use(middleware.RateLimit(rate.Limit(r.cfg.RateLimit), r.cfg.RateBurst))
	}
	if len(r.cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     r.cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.Use(middleware.Timeout(r.cfg.RequestTimeout))

	router.GET("/healthcheck", r.handler.Healthcheck)
	router.POST("/token", r.handler.Token)
	if r.metrics != nil {
		router.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	requireAuth := middleware.Auth(r.authService)
	router.GET("/test/", requireAuth, r.handler.Whoami)

	reports := router.Group("/api/reports", requireAuth)
	{
		reports.GET("", r.handler.ListReports)
		reports.POST("", r.handler.CreateReport)
		reports.GET("/recent", r.handler.GetMostRecentSubmitted)

		reports.GET("/:id", r.handler.GetReport)
		reports.PUT("/:id", r.handler.UpdateReport)
		reports.DELETE("/:id", r.handler.DeleteReport)
		reports.GET("/:id/history", r.handler.GetHistory)

		reports.POST("/:id/reporter", r.handler.UpsertReporter)
		reports.GET("/:id/reporter", r.handler.GetReporter)
		reports.POST("/:id/patient", r.handler.UpsertPatient)
		reports.GET("/:id/patient", r.handler.GetPatient)
		reports.POST("/:id/disease", r.handler.UpsertDisease)
		reports.GET("/:id/disease", r.handler.GetDisease)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
