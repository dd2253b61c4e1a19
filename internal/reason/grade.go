package reason

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/refinery-ai/refinery/internal/chat"
	"github.com/refinery-ai/refinery/internal/llm"
	"github.com/refinery-ai/refinery/internal/prompts"
)

const gradeToolName = "evaluate_grade"

// gradeSchemaFormat constrains the critic to a single boolean field
// when the backend supports schema-constrained output.
var gradeSchemaFormat = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"status": map[string]any{
			"type":        "boolean",
			"description": "True if response meets all criteria, False otherwise",
		},
	},
	"required": []string{"status"},
}

// gradeToolDef is the OpenAI-format tool the function-calling strategy
// asks the critic to invoke.
var gradeToolDef = map[string]any{
	"type": "function",
	"function": map[string]any{
		"name":        gradeToolName,
		"description": "Returns a boolean indicating if the response meets all criteria",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type":        "boolean",
					"description": "True if response meets all criteria, False otherwise",
				},
			},
			"required": []string{"status"},
		},
	},
}

// grade asks the critic whether the critiqued response is acceptable.
// The extraction strategy is picked once per call from the critic's
// capability record: structured schema when the critic supports both
// schema output and function calling, then function calling alone,
// then plain-text token parsing. There is no cross-strategy
// fallthrough; a schema backend that emits unparseable JSON grades
// false.
func (l *Loop) grade(ctx context.Context, hist *chat.History, query, generated, critiqued string, epoch int) (bool, error) {
	critic := l.agent.Critic
	prompt := prompts.Grade(query, generated, critiqued)
	if err := hist.AddQuery(l.agent.SystemTemplate(), chat.TextQuery(prompt)); err != nil {
		return false, err
	}

	switch {
	case critic.Caps.SupportsSchema && critic.Caps.SupportsFunctionCalling:
		return l.gradeSchema(ctx, hist, critic, epoch)
	case critic.Caps.SupportsFunctionCalling:
		return l.gradeFunctionCall(ctx, hist, critic, epoch)
	default:
		return l.gradePlainText(ctx, hist, critic, epoch)
	}
}

func (l *Loop) gradeSchema(ctx context.Context, hist *chat.History, critic *llm.Backend, epoch int) (bool, error) {
	content, err := l.invoke(ctx, hist, critic, &llm.ChatOptions{Format: gradeSchemaFormat}, "grade", epoch)
	if err != nil {
		return false, err
	}

	var out struct {
		Status bool `json:"status"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		l.log.Warn("grade schema output unparseable, treating as rejection",
			"epoch", epoch, "error", err)
		return false, nil
	}
	return out.Status, nil
}

func (l *Loop) gradeFunctionCall(ctx context.Context, hist *chat.History, critic *llm.Backend, epoch int) (bool, error) {
	callStart := l.now()
	resp, err := critic.Client.Chat(ctx, critic.Model, toLLM(hist.Messages()),
		&llm.ChatOptions{Tools: []map[string]any{gradeToolDef}})
	if err != nil {
		return false, err
	}
	l.recordCall(ctx, CallRecord{
		SessionID:    l.agent.SessionID,
		Epoch:        epoch,
		Phase:        "grade",
		Provider:     critic.Provider,
		Model:        critic.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Duration:     l.now().Sub(callStart),
	})
	if resp.Message.Content == "" && len(resp.Message.ToolCalls) == 0 {
		return false, ErrEmptyResponse
	}
	hist.Append(chat.Message{Role: chat.RoleAssistant, Content: resp.Message.Content})

	for _, tc := range resp.Message.ToolCalls {
		if tc.Function.Name != gradeToolName {
			continue
		}
		if status, ok := tc.Function.Arguments["status"].(bool); ok {
			return status, nil
		}
	}

	// Models sometimes answer in text despite the tool being offered.
	// The fallback here is looser than the plain-text strategy: any
	// mention of "true" accepts.
	l.log.Debug("grade tool call absent, parsing text", "epoch", epoch)
	return strings.Contains(strings.ToLower(resp.Message.Content), "true"), nil
}

func (l *Loop) gradePlainText(ctx context.Context, hist *chat.History, critic *llm.Backend, epoch int) (bool, error) {
	content, err := l.invoke(ctx, hist, critic, nil, "grade", epoch)
	if err != nil {
		return false, err
	}
	return parseGradeText(content), nil
}

// parseGradeText normalizes a free-text grade. Exact "true" passes;
// otherwise the text must mention true and not false, so hedged output
// like "true or false" grades as rejection.
func parseGradeText(s string) bool {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Trim(norm, ".!\"'")
	if norm == "true" {
		return true
	}
	return strings.Contains(norm, "true") && !strings.Contains(norm, "false")
}
