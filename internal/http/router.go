package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-tutor/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Mode           string
	ServiceName    string
	AllowedOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware
	SessionHandler *httpH.SessionHandler
	QuotaHandler   *httpH.QuotaHandler
	OutlineHandler *httpH.OutlineHandler
	ExplainHandler *httpH.ExplainHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	if cfg.Log != nil {
		r.Use(httpMW.AttachRequestContext(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Outline
		if cfg.OutlineHandler != nil {
			protected.POST("/files/:id/outline", cfg.OutlineHandler.Import)
			protected.GET("/files/:id/outline", cfg.OutlineHandler.Get)
		}

		// Learning session
		if cfg.SessionHandler != nil {
			protected.POST("/files/:id/session", cfg.SessionHandler.Start)
			protected.GET("/sessions/:id", cfg.SessionHandler.Get)
			protected.GET("/sessions/:id/explanation", cfg.SessionHandler.Explanation)
			protected.POST("/sessions/:id/confirm", cfg.SessionHandler.Confirm)
			protected.GET("/sessions/:id/questions", cfg.SessionHandler.Questions)
			protected.POST("/sessions/:id/answers", cfg.SessionHandler.Answer)
			protected.POST("/sessions/:id/pause", cfg.SessionHandler.Pause)
			protected.POST("/sessions/:id/resume", cfg.SessionHandler.Resume)
		}

		// Quota
		if cfg.QuotaHandler != nil {
			protected.GET("/quota", cfg.QuotaHandler.Status)
		}

		// Auto-explain
		if cfg.ExplainHandler != nil {
			protected.POST("/explain", cfg.ExplainHandler.Explain)
		}
	}

	return r
}
