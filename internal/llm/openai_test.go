package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func openaiTestResponse(content string, toolCalls []map[string]any) map[string]any {
	msg := map[string]any{"role": "assistant", "content": content}
	if toolCalls != nil {
		msg["tool_calls"] = toolCalls
	}
	return map[string]any{
		"id":      "chatcmpl-123",
		"model":   "gpt-4o-mini",
		"created": 1767225600,
		"choices": []map[string]any{
			{"index": 0, "message": msg, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 8},
	}
}

func TestOpenAIChat(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(openaiTestResponse("True", nil))
	}))
	defer server.Close()

	c := NewOpenAIClient(server.URL, "sk-test", nil)
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{
		{Role: "system", Content: "grade things"},
		{Role: "user", Content: "grade this"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	if _, present := gotBody["response_format"]; present {
		t.Error("response_format sent without a schema option")
	}
	if resp.Message.Content != "True" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 40 || resp.OutputTokens != 8 {
		t.Errorf("tokens = %d/%d, want 40/8", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOpenAIChat_SchemaFormat(t *testing.T) {
	var gotBody struct {
		ResponseFormat *openaiFormat `json:"response_format"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(openaiTestResponse(`{"status": true}`, nil))
	}))
	defer server.Close()

	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"status": map[string]any{"type": "boolean"}},
	}
	c := NewOpenAIClient(server.URL, "sk-test", nil)
	if _, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "q"}},
		&ChatOptions{Format: schema}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotBody.ResponseFormat == nil {
		t.Fatal("response_format missing")
	}
	if gotBody.ResponseFormat.Type != "json_schema" {
		t.Errorf("response_format type = %q, want json_schema", gotBody.ResponseFormat.Type)
	}
	if !gotBody.ResponseFormat.JSONSchema.Strict {
		t.Error("json_schema is not strict")
	}
	if gotBody.ResponseFormat.JSONSchema.Schema["type"] != "object" {
		t.Errorf("schema = %+v", gotBody.ResponseFormat.JSONSchema.Schema)
	}
}

func TestOpenAIChat_DecodesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiTestResponse("", []map[string]any{
			{
				"id":   "call_abc",
				"type": "function",
				"function": map[string]any{
					"name":      "evaluate_grade",
					"arguments": `{"status": true}`, // JSON string on the wire
				},
			},
		}))
	}))
	defer server.Close()

	c := NewOpenAIClient(server.URL, "sk-test", nil)
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "q"}},
		&ChatOptions{Tools: []map[string]any{{"type": "function"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Function.Name != "evaluate_grade" {
		t.Errorf("tool call = %+v", tc)
	}
	if grade, ok := tc.Function.Arguments["status"].(bool); !ok || !grade {
		t.Errorf("arguments = %+v, want grade=true", tc.Function.Arguments)
	}
}

func TestOpenAIChat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	}))
	defer server.Close()

	c := NewOpenAIClient(server.URL, "sk-test", nil)
	if _, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "q"}}, nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					t.Errorf("path = %q, want /models", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := NewOpenAIClient(server.URL, "sk-test", nil)
			err := c.Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Ping err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConvertToOpenAI_ToolArgumentsEncodedAsString(t *testing.T) {
	tc := ToolCall{ID: "call_1"}
	tc.Function.Name = "evaluate_grade"
	tc.Function.Arguments = map[string]any{"status": true}

	got := convertToOpenAI([]Message{
		{Role: "assistant", Content: "", ToolCalls: []ToolCall{tc}},
		{Role: "tool", Content: "ok", ToolCallID: "call_1"},
	})

	if len(got) != 2 {
		t.Fatalf("converted %d messages, want 2", len(got))
	}
	if got[0].ToolCalls[0].Function.Arguments != `{"status":true}` {
		t.Errorf("arguments = %q, want JSON string", got[0].ToolCalls[0].Function.Arguments)
	}
	if got[1].ToolCallID != "call_1" {
		t.Errorf("tool call id = %q", got[1].ToolCallID)
	}
}
