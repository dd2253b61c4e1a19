// Package agent defines the refinement agent: an identity, a prompt
// template selection, a session, and the generator and critic backends
// the reasoning loop drives.
package agent

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/refinery-ai/refinery/internal/chat"
	"github.com/refinery-ai/refinery/internal/config"
	"github.com/refinery-ai/refinery/internal/llm"
	"github.com/refinery-ai/refinery/internal/prompts"
	"github.com/refinery-ai/refinery/internal/trace"
)

const defaultMaxIterations = 3

// Agent is a configured refinement agent. It is immutable after New;
// per-invocation state lives in the History each run creates.
type Agent struct {
	Name      string
	Role      string
	Goal      string
	Backstory string

	PromptType    string
	PromptPattern string
	SessionID     string
	MaxIterations int

	Generator *llm.Backend
	Critic    *llm.Backend

	systemTemplate string
}

// New builds an Agent from configuration and two resolved backends.
// The session ID is a fresh UUIDv7 so traces from the same agent sort
// by creation time.
func New(cfg config.AgentConfig, generator, critic *llm.Backend) (*Agent, error) {
	if generator == nil {
		return nil, fmt.Errorf("agent: generator backend is required")
	}
	if critic == nil {
		return nil, fmt.Errorf("agent: critic backend is required")
	}

	tpl, err := prompts.System(cfg.PromptType, cfg.PromptPattern)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("agent: generate session id: %w", err)
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	promptType := cfg.PromptType
	if promptType == "" {
		promptType = prompts.TypeReAct
	}
	pattern := cfg.PromptPattern
	if pattern == "" {
		pattern = promptType
	}

	return &Agent{
		Name:           cfg.Name,
		Role:           cfg.Role,
		Goal:           cfg.Goal,
		Backstory:      cfg.Backstory,
		PromptType:     promptType,
		PromptPattern:  pattern,
		SessionID:      id.String(),
		MaxIterations:  maxIter,
		Generator:      generator,
		Critic:         critic,
		systemTemplate: tpl,
	}, nil
}

// SystemTemplate returns the prompt template queries are formatted
// into before being appended to the conversation.
func (a *Agent) SystemTemplate() string {
	return a.systemTemplate
}

// Identity renders the agent's persona as a system message body.
func (a *Agent) Identity() string {
	return fmt.Sprintf(
		"You are a %s agent with your task as %s. Your goal is: %s. Backstory: %s",
		a.Name, a.Role, a.Goal, a.Backstory,
	)
}

// NewHistory creates a fresh conversation seeded with the agent's
// identity system message.
func (a *Agent) NewHistory() *chat.History {
	return chat.NewHistory(chat.Message{
		Role:    chat.RoleSystem,
		Content: a.Identity(),
	})
}

// TraceFileName returns the deterministic trace file name for this
// agent's session.
func (a *Agent) TraceFileName() string {
	return trace.FileName(a.PromptType, a.PromptPattern, a.Generator.Model, a.Critic.Model, a.SessionID)
}
