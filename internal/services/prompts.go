package services

import (
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/platform/llm"
)

const quizSystemPrompt = `You write short comprehension tests for a study tutor.
Return ONLY JSON matching the schema. Every question must be answerable from the material given.
MULTIPLE_CHOICE questions have exactly 4 distinct options and correct_answer is the full text of one of them.
SHORT_ANSWER questions have an empty options array and a correct_answer of at most a few words.
explanation says briefly why the answer is right.`

const explainSystemPrompt = `You are a patient tutor. Explain the sub-topic for a learner who has just read the source.
Use plain language, one short example, and no more than four paragraphs. Do not quiz the learner.`

const autoExplainSystemPrompt = `You are a patient tutor. The learner highlighted a passage and wants it explained.
Explain it in plain language in at most three short paragraphs, using the context if given.`

func questionSchema(count int) *llm.Schema {
	return &llm.Schema{
		Name:        fmt.Sprintf("topic-test-questions-%d", count),
		Description: "A fixed-size set of test questions for one topic",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"questions": map[string]any{
					"type":     "array",
					"minItems": count,
					"maxItems": count,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"prompt": map[string]any{"type": "string", "minLength": 1},
							"type": map[string]any{
								"type": "string",
								"enum": []any{string(tutor.QuestionMultipleChoice), string(tutor.QuestionShortAnswer)},
							},
							"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"correct_answer": map[string]any{"type": "string", "minLength": 1},
							"explanation":    map[string]any{"type": "string"},
						},
						"required":             []any{"prompt", "type", "options", "correct_answer", "explanation"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []any{"questions"},
			"additionalProperties": false,
		},
	}
}

func quizUserPrompt(topic *tutor.Topic, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic.Title)
	fmt.Fprintf(&b, "Write exactly %d questions. Mix MULTIPLE_CHOICE and SHORT_ANSWER.\n\nMaterial:\n", count)
	for _, st := range topic.SubTopics {
		fmt.Fprintf(&b, "- %s: %s\n", st.Title, strings.TrimSpace(st.Summary))
	}
	return b.String()
}

func explainUserPrompt(topic *tutor.Topic, sub *tutor.SubTopic) string {
	return fmt.Sprintf("Topic: %s\nSub-topic: %s\n\nSummary:\n%s\n", topic.Title, sub.Title, strings.TrimSpace(sub.Summary))
}

func autoExplainUserPrompt(text, context string) string {
	if strings.TrimSpace(context) == "" {
		return fmt.Sprintf("Passage:\n%s\n", text)
	}
	return fmt.Sprintf("Context:\n%s\n\nPassage:\n%s\n", context, text)
}
