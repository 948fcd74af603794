package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	tutorrepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type SubTopicInput struct {
	Title   string `json:"title" yaml:"title" binding:"required"`
	Summary string `json:"summary" yaml:"summary"`
}

type TopicInput struct {
	Title     string          `json:"title" yaml:"title" binding:"required"`
	Kind      tutor.TopicKind `json:"kind" yaml:"kind" binding:"required"`
	SubTopics []SubTopicInput `json:"sub_topics" yaml:"sub_topics" binding:"required,min=1,dive"`
}

type outlineDocument struct {
	Topics []TopicInput `yaml:"topics"`
}

// ParseOutlineYAML reads an outline file of the form
//
//	topics:
//	  - title: Cell structure
//	    kind: core
//	    sub_topics:
//	      - title: Membranes
//
// Unknown keys are rejected. Semantic checks are left to ImportOutline.
func ParseOutlineYAML(r io.Reader) ([]TopicInput, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc outlineDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: outline file is empty", errs.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	return doc.Topics, nil
}

// OutlineService stores the topic outline extracted from an uploaded file.
// Extraction itself happens elsewhere; an outline is imported once per file.
type OutlineService interface {
	ImportOutline(ctx context.Context, userID, fileID uuid.UUID, topics []TopicInput) ([]*tutor.Topic, error)
	GetOutline(ctx context.Context, userID, fileID uuid.UUID) ([]*tutor.Topic, error)
}

type outlineService struct {
	db     *gorm.DB
	log    *logger.Logger
	topics tutorrepo.TopicRepo
}

func NewOutlineService(db *gorm.DB, baseLog *logger.Logger, topics tutorrepo.TopicRepo) OutlineService {
	return &outlineService{db: db, log: baseLog.With("service", "OutlineService"), topics: topics}
}

func (s *outlineService) ImportOutline(ctx context.Context, userID, fileID uuid.UUID, input []TopicInput) ([]*tutor.Topic, error) {
	if userID == uuid.Nil || fileID == uuid.Nil {
		return nil, fmt.Errorf("%w: user and file are required", errs.ErrInvalidArgument)
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: outline has no topics", errs.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	rows := make([]*tutor.Topic, 0, len(input))
	for i, in := range input {
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: topic %d has no title", errs.ErrInvalidArgument, i)
		}
		kind := tutor.TopicKind(strings.ToLower(strings.TrimSpace(string(in.Kind))))
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: topic %d has unknown kind %q", errs.ErrInvalidArgument, i, in.Kind)
		}
		if len(in.SubTopics) == 0 {
			return nil, fmt.Errorf("%w: topic %d has no sub-topics", errs.ErrInvalidArgument, i)
		}
		tp := &tutor.Topic{
			FileID:      fileID,
			OwnerUserID: userID,
			Index:       i,
			Title:       title,
			Kind:        kind,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for j, st := range in.SubTopics {
			stTitle := strings.TrimSpace(st.Title)
			if stTitle == "" {
				return nil, fmt.Errorf("%w: topic %d sub-topic %d has no title", errs.ErrInvalidArgument, i, j)
			}
			tp.SubTopics = append(tp.SubTopics, &tutor.SubTopic{
				Index:     j,
				Title:     stTitle,
				Summary:   strings.TrimSpace(st.Summary),
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		rows = append(rows, tp)
	}

	var created []*tutor.Topic
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		n, err := s.topics.CountByFile(dbc, fileID)
		if err != nil {
			return errs.Store(err)
		}
		if n > 0 {
			return errs.Conflict("file %s already has an outline", fileID)
		}
		created, err = s.topics.Create(dbc, rows)
		return errs.Store(err)
	})
	if err != nil {
		if !errs.Classified(err) {
			err = errs.Store(err)
		}
		return nil, err
	}
	s.log.Info("Outline imported", "file_id", fileID, "topics", len(created))
	return created, nil
}

func (s *outlineService) GetOutline(ctx context.Context, userID, fileID uuid.UUID) ([]*tutor.Topic, error) {
	topics, err := s.topics.ListByFile(dbctx.Context{Ctx: ctx}, fileID)
	if err != nil {
		return nil, errs.Store(err)
	}
	if len(topics) == 0 || topics[0].OwnerUserID != userID {
		return nil, errs.NotFound("outline for file")
	}
	return topics, nil
}
