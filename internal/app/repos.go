package app

import (
	"gorm.io/gorm"

	quotarepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/quota"
	tutorrepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type Repos struct {
	QuotaAccount     quotarepo.AccountRepo
	QuotaReservation quotarepo.ReservationRepo
	QuotaLogEntry    quotarepo.LogEntryRepo
	Topic            tutorrepo.TopicRepo
	Session          tutorrepo.SessionRepo
	Progress         tutorrepo.ProgressRepo
	Question         tutorrepo.QuestionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		QuotaAccount:     quotarepo.NewAccountRepo(db, log),
		QuotaReservation: quotarepo.NewReservationRepo(db, log),
		QuotaLogEntry:    quotarepo.NewLogEntryRepo(db, log),
		Topic:            tutorrepo.NewTopicRepo(db, log),
		Session:          tutorrepo.NewSessionRepo(db, log),
		Progress:         tutorrepo.NewProgressRepo(db, log),
		Question:         tutorrepo.NewQuestionRepo(db, log),
	}
}
