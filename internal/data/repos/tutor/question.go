package tutor

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// QuestionRepo has no update or delete: a cached set is immutable once written.
type QuestionRepo interface {
	CreateSet(dbc dbctx.Context, questions []*domain.TopicTestQuestion) error
	ListByTopic(dbc dbctx.Context, topicID uuid.UUID) ([]*domain.TopicTestQuestion, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "TopicTestQuestionRepo")}
}

// CreateSet inserts the whole set in one statement; a concurrent writer hits the
// (topic_id, ordinal) unique index and gets gorm.ErrDuplicatedKey.
func (r *questionRepo) CreateSet(dbc dbctx.Context, questions []*domain.TopicTestQuestion) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(questions) == 0 {
		return nil
	}
	for _, q := range questions {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
	}
	return t.WithContext(dbc.Ctx).Create(&questions).Error
}

func (r *questionRepo) ListByTopic(dbc dbctx.Context, topicID uuid.UUID) ([]*domain.TopicTestQuestion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.TopicTestQuestion
	if topicID == uuid.Nil {
		return rows, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("topic_id = ?", topicID).
		Order("ordinal ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
