package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/jobs/quotareset"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services"
)

type Services struct {
	Auth         services.AuthService
	Ledger       services.QuotaLedger
	Quiz         services.QuizEngine
	Sessions     services.SessionOrchestrator
	Outline      services.OutlineService
	Explain      services.ExplainService
	ResetRunner  *quotareset.Runner
	ResetTrigger *quotareset.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	auth := services.NewAuthService(log, cfg.Auth.JWTSecretKey, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)

	ledger := services.NewQuotaLedger(db, log, repos.QuotaAccount, repos.QuotaReservation, repos.QuotaLogEntry, services.LedgerConfig{
		DefaultLimits: cfg.Quota.Limits(),
		CallTimeout:   cfg.LLM.CallTimeout,
	})

	quiz := services.NewQuizEngine(log, repos.Question, ledger, clients.LLM, services.QuizConfig{
		MaxTokens:   cfg.LLM.QuizMaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	sessions := services.NewSessionOrchestrator(db, log, repos.Session, repos.Topic, repos.Progress, quiz, ledger, clients.LLM, clients.Locker, services.SessionConfig{
		LeaseTTL:           cfg.Session.LeaseTTL,
		ExplainMaxTokens:   cfg.LLM.ExplainMaxTokens,
		ExplainTemperature: cfg.LLM.Temperature,
	})

	runner := quotareset.NewRunner(log, ledger, repos.QuotaAccount, quotareset.Config{
		BatchSize:   cfg.Reset.BatchSize,
		Concurrency: cfg.Reset.Concurrency,
		MaxAttempts: cfg.Reset.MaxAttempts,
		RetryDelay:  cfg.Reset.RetryDelay,
		StaleAfter:  cfg.Reset.StaleAfter,
	})

	return Services{
		Auth:     auth,
		Ledger:   ledger,
		Quiz:     quiz,
		Sessions: sessions,
		Outline:  services.NewOutlineService(db, log, repos.Topic),
		Explain: services.NewExplainService(log, ledger, clients.LLM, services.ExplainConfig{
			MaxTokens:   cfg.LLM.AutoExplainMaxTokens,
			Temperature: cfg.LLM.Temperature,
		}),
		ResetRunner:  runner,
		ResetTrigger: quotareset.NewScheduler(log, runner, cfg.Reset.Interval, cfg.Reset.Timeout),
	}
}
