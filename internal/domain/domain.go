package domain

import (
	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
)

type QuotaAccount = quota.QuotaAccount
type QuotaReservation = quota.QuotaReservation
type QuotaLogEntry = quota.QuotaLogEntry
type Bucket = quota.Bucket

type Topic = tutor.Topic
type SubTopic = tutor.SubTopic
type LearningSession = tutor.LearningSession
type TopicProgress = tutor.TopicProgress
type TopicTestQuestion = tutor.TopicTestQuestion

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&quota.QuotaAccount{},
		&quota.QuotaReservation{},
		&quota.QuotaLogEntry{},

		&tutor.Topic{},
		&tutor.SubTopic{},
		&tutor.LearningSession{},
		&tutor.TopicProgress{},
		&tutor.TopicTestQuestion{},
	}
}
