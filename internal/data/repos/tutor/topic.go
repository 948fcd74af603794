package tutor

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type TopicRepo interface {
	Create(dbc dbctx.Context, topics []*domain.Topic) ([]*domain.Topic, error)
	ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*domain.Topic, error)
	CountByFile(dbc dbctx.Context, fileID uuid.UUID) (int64, error)
	GetByFileAndIndex(dbc dbctx.Context, fileID uuid.UUID, index int) (*domain.Topic, error)
	SetSubTopicExplanation(dbc dbctx.Context, subTopicID uuid.UUID, text string) (bool, error)
}

type topicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	return &topicRepo{db: db, log: baseLog.With("repo", "TopicRepo")}
}

// Create inserts topics together with their sub-topics.
func (r *topicRepo) Create(dbc dbctx.Context, topics []*domain.Topic) ([]*domain.Topic, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(topics) == 0 {
		return []*domain.Topic{}, nil
	}
	for _, tp := range topics {
		if tp.ID == uuid.Nil {
			tp.ID = uuid.New()
		}
		for _, st := range tp.SubTopics {
			if st.ID == uuid.Nil {
				st.ID = uuid.New()
			}
			st.TopicID = tp.ID
		}
	}
	if err := t.WithContext(dbc.Ctx).Create(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

func (r *topicRepo) ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*domain.Topic, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.Topic
	if fileID == uuid.Nil {
		return rows, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Preload("SubTopics", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("file_id = ?", fileID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *topicRepo) CountByFile(dbc dbctx.Context, fileID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&domain.Topic{}).
		Where("file_id = ?", fileID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *topicRepo) GetByFileAndIndex(dbc dbctx.Context, fileID uuid.UUID, index int) (*domain.Topic, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.Topic
	if err := t.WithContext(dbc.Ctx).
		Preload("SubTopics", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("file_id = ? AND position = ?", fileID, index).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// SetSubTopicExplanation caches the first explanation generated for a sub-topic; later writes lose.
func (r *topicRepo) SetSubTopicExplanation(dbc dbctx.Context, subTopicID uuid.UUID, text string) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.SubTopic{}).
		Where("id = ? AND explanation IS NULL", subTopicID).
		Updates(map[string]interface{}{
			"explanation": text,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
