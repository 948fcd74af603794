// Package llm is the narrow seam between the tutor services and hosted language models.
// Callers send a Request, optionally with a JSON schema, and receive validated JSON back.
package llm

import (
	"context"
	"encoding/json"
)

type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	ModelID() string
}

type Request struct {
	System   string
	Messages []Message
	// Schema, when set, switches the provider to structured output and the
	// response is validated against it before it is returned.
	Schema      *Schema
	MaxTokens   int
	Temperature float64
	// Purpose tags the call in logs ("explain", "questions", ...).
	Purpose string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// UserPrompt is the common single-turn request shape.
func UserPrompt(system, user string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: user}},
	}
}

type Schema struct {
	// Name must be unique per definition; compiled schemas are cached by it.
	Name        string
	Description string
	Definition  map[string]any
}

type Response struct {
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
