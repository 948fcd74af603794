package app

import (
	"gorm.io/gorm"

	httpserver "github.com/yungbote/neurobridge-tutor/internal/http"
	httpH "github.com/yungbote/neurobridge-tutor/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

func wireServer(db *gorm.DB, log *logger.Logger, cfg *Config, svc Services) *httpserver.Server {
	log.Info("Wiring HTTP server...")
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:            log,
		Mode:           cfg.HTTP.GinMode,
		ServiceName:    serviceName,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,

		AuthMiddleware: httpMW.NewAuthMiddleware(log, svc.Auth),
		SessionHandler: httpH.NewSessionHandler(svc.Sessions),
		QuotaHandler:   httpH.NewQuotaHandler(svc.Ledger),
		OutlineHandler: httpH.NewOutlineHandler(svc.Outline),
		ExplainHandler: httpH.NewExplainHandler(svc.Explain),
		HealthHandler:  httpH.NewHealthHandler(db),
	})
}
