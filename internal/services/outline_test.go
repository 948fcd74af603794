package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	tutorrepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
)

func validOutline() []TopicInput {
	return []TopicInput{
		{Title: "Cells", Kind: "Core", SubTopics: []SubTopicInput{{Title: "Membrane", Summary: "lipid bilayer"}, {Title: "Nucleus"}}},
		{Title: "History", Kind: tutor.TopicKindSupporting, SubTopics: []SubTopicInput{{Title: "Hooke"}}},
	}
}

func TestOutlineService_ImportAndGet(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewOutlineService(gdb, log, tutorrepo.NewTopicRepo(gdb, log))
	user, file := uuid.New(), uuid.New()

	created, err := svc.ImportOutline(context.Background(), user, file, validOutline())
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, tutor.TopicKindCore, created[0].Kind)

	got, err := svc.GetOutline(context.Background(), user, file)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Cells", got[0].Title)
	require.Len(t, got[0].SubTopics, 2)
	assert.Equal(t, "Membrane", got[0].SubTopics[0].Title)
	assert.Equal(t, 1, got[0].SubTopics[1].Index)
	assert.Nil(t, got[0].SubTopics[0].Explanation)

	_, err = svc.ImportOutline(context.Background(), user, file, validOutline())
	assert.ErrorIs(t, err, errs.ErrStateConflict)

	_, err = svc.GetOutline(context.Background(), uuid.New(), file)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestOutlineService_RejectsMalformedOutline(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewOutlineService(gdb, log, tutorrepo.NewTopicRepo(gdb, log))

	tests := []struct {
		name  string
		input []TopicInput
	}{
		{name: "empty", input: nil},
		{name: "unknown kind", input: []TopicInput{{Title: "A", Kind: "bonus", SubTopics: []SubTopicInput{{Title: "x"}}}}},
		{name: "no sub-topics", input: []TopicInput{{Title: "A", Kind: tutor.TopicKindCore}}},
		{name: "blank title", input: []TopicInput{{Title: "  ", Kind: tutor.TopicKindCore, SubTopics: []SubTopicInput{{Title: "x"}}}}},
		{name: "blank sub-topic", input: []TopicInput{{Title: "A", Kind: tutor.TopicKindCore, SubTopics: []SubTopicInput{{Title: ""}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := uuid.New()
			_, err := svc.ImportOutline(context.Background(), uuid.New(), file, tt.input)
			require.ErrorIs(t, err, errs.ErrInvalidArgument)
			n, err := tutorrepo.NewTopicRepo(gdb, log).CountByFile(testutil.Ctx(), file)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestParseOutlineYAML(t *testing.T) {
	topics, err := ParseOutlineYAML(strings.NewReader(`
topics:
  - title: Cells
    kind: core
    sub_topics:
      - title: Membrane
        summary: lipid bilayer
      - title: Nucleus
  - title: History
    kind: supporting
    sub_topics:
      - title: Hooke
`))
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "Cells", topics[0].Title)
	assert.Equal(t, tutor.TopicKind("core"), topics[0].Kind)
	assert.Equal(t, "lipid bilayer", topics[0].SubTopics[0].Summary)
	assert.Len(t, topics[1].SubTopics, 1)

	tests := map[string]string{
		"empty":       "",
		"unknown key": "topics:\n  - title: Cells\n    difficulty: hard\n",
		"not a list":  "topics: Cells\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOutlineYAML(strings.NewReader(body))
			assert.ErrorIs(t, err, errs.ErrInvalidArgument)
		})
	}
}
