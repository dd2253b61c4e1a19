package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCount int
		wantName  string // first tool name if wantCount > 0
	}{
		{
			name:      "empty content",
			content:   "",
			wantCount: 0,
		},
		{
			name:      "whitespace only",
			content:   "   \n\t  ",
			wantCount: 0,
		},
		{
			name:      "plain text no JSON",
			content:   "The answer is four.",
			wantCount: 0,
		},
		{
			name:      "grade token is not a tool call",
			content:   "True",
			wantCount: 0,
		},
		{
			name:      "single tool call object",
			content:   `{"name": "evaluate_grade", "arguments": {"status": true}}`,
			wantCount: 1,
			wantName:  "evaluate_grade",
		},
		{
			name:      "single tool call with whitespace",
			content:   `  {"name": "evaluate_grade", "arguments": {"status": false}}  `,
			wantCount: 1,
			wantName:  "evaluate_grade",
		},
		{
			name:      "array of tool calls",
			content:   `[{"name": "evaluate_grade", "arguments": {"status": true}}, {"name": "lookup", "arguments": {}}]`,
			wantCount: 2,
			wantName:  "evaluate_grade",
		},
		{
			name:      "tagged tool call",
			content:   `<tool_call>{"name": "evaluate_grade", "arguments": {"status": true}}</tool_call>`,
			wantCount: 1,
			wantName:  "evaluate_grade",
		},
		{
			name:      "tagged tool call without closing tag",
			content:   `<tool_call>{"name": "evaluate_grade", "arguments": {"status": true}}`,
			wantCount: 1,
			wantName:  "evaluate_grade",
		},
		{
			name:      "tagged with preamble",
			content:   `Let me grade that. <tool_call>{"name": "evaluate_grade", "arguments": {"status": false}}</tool_call>`,
			wantCount: 1,
			wantName:  "evaluate_grade",
		},
		{
			name:      "malformed JSON",
			content:   `{"name": "evaluate_grade", "arguments": {`,
			wantCount: 0,
		},
		{
			name:      "JSON without name field",
			content:   `{"status": true}`,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content)
			if len(got) != tt.wantCount {
				t.Fatalf("got %d tool calls, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].Function.Name != tt.wantName {
				t.Errorf("first tool name = %q, want %q", got[0].Function.Name, tt.wantName)
			}
		})
	}
}

func TestOllamaChat(t *testing.T) {
	var gotReq ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":             "qwen3:4b",
			"created_at":        "2026-03-01T12:00:00Z",
			"message":           map[string]any{"role": "assistant", "content": "Final Answer: 4"},
			"done":              true,
			"prompt_eval_count": 25,
			"eval_count":        12,
		})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL)
	resp, err := c.Chat(context.Background(), "qwen3:4b", []Message{
		{Role: "user", Content: "What is 2+2?"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotReq.Model != "qwen3:4b" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if gotReq.Stream {
		t.Error("request asked for streaming")
	}
	if resp.Message.Content != "Final Answer: 4" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 25 || resp.OutputTokens != 12 {
		t.Errorf("tokens = %d/%d, want 25/12", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaChat_FormatPassthrough(t *testing.T) {
	var gotReq ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": `{"status": true}`},
			"done":    true,
		})
	}))
	defer server.Close()

	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"status": map[string]any{"type": "boolean"}},
	}
	c := NewOllamaClient(server.URL)
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "q"}},
		&ChatOptions{Format: schema})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotReq.Format == nil {
		t.Fatal("format not forwarded to the API")
	}
	if gotReq.Format["type"] != "object" {
		t.Errorf("format = %+v", gotReq.Format)
	}
	if resp.Message.Content != `{"status": true}` {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestOllamaChat_PromotesTextToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"name": "evaluate_grade", "arguments": {"status": true}}`,
			},
			"done": true,
		})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL)
	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "evaluate_grade"}}}
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "q"}},
		&ChatOptions{Tools: tools})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Function.Name != "evaluate_grade" {
		t.Errorf("tool name = %q", resp.Message.ToolCalls[0].Function.Name)
	}
	if resp.Message.Content != "" {
		t.Errorf("content not cleared after promotion: %q", resp.Message.Content)
	}
}

func TestOllamaChat_NoPromotionWithoutTools(t *testing.T) {
	// A JSON-shaped answer to a plain request is an answer, not a tool
	// call. Schema-constrained grading depends on this.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"name": "evaluate_grade", "arguments": {"status": true}}`,
			},
			"done": true,
		})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL)
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "q"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.Message.ToolCalls) != 0 {
		t.Errorf("tool calls = %d, want 0", len(resp.Message.ToolCalls))
	}
	if resp.Message.Content == "" {
		t.Error("content cleared on a request that offered no tools")
	}
}

func TestOllamaChat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL)
	_, err := c.Chat(context.Background(), "missing", []Message{{Role: "user", Content: "q"}}, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestOllamaPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
