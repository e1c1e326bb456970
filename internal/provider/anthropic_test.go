package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func anthropicTestServer(t *testing.T, respond string, capture *anthropicRequest) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, capture); err != nil {
				t.Errorf("unmarshal request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, respond)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestAnthropicChatTextResponse(t *testing.T) {
	var captured anthropicRequest
	ts := anthropicTestServer(t, `{
		"id": "msg_1",
		"model": "claude-sonnet-4-20250514",
		"content": [{"type": "text", "text": "hello there"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 4}
	}`, &captured)

	p := NewAnthropicProvider(Config{ID: "a1", Endpoint: ts.URL, APIKey: "test-key"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Content != "hello there" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.FinishReason != "end_turn" {
		t.Fatalf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 14 {
		t.Fatalf("total tokens = %d", resp.Usage.TotalTokens)
	}

	// The system message is lifted out of the message list.
	if captured.System != "be brief" {
		t.Fatalf("system = %q", captured.System)
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if captured.MaxTokens != 4096 {
		t.Fatalf("max_tokens = %d, want default 4096", captured.MaxTokens)
	}
}

func TestAnthropicChatToolUse(t *testing.T) {
	var captured anthropicRequest
	ts := anthropicTestServer(t, `{
		"id": "msg_2",
		"model": "claude-sonnet-4-20250514",
		"content": [
			{"type": "text", "text": "checking"},
			{"type": "tool_use", "id": "tu_1", "name": "web_search", "input": {"query": "fusion"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 20, "output_tokens": 12}
	}`, &captured)

	p := NewAnthropicProvider(Config{ID: "a1", Endpoint: ts.URL, APIKey: "test-key"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []Message{
			{Role: "user", Content: "look this up"},
		},
		Tools: []Tool{{
			Type: "function",
			Function: ToolFunction{
				Name:        "web_search",
				Description: "search the web",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.FinishReason != "tool_calls" {
		t.Fatalf("finish reason = %q, want tool_calls", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "tu_1" || tc.Function.Name != "web_search" {
		t.Fatalf("tool call = %+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not JSON: %q", tc.Function.Arguments)
	}
	if args["query"] != "fusion" {
		t.Fatalf("arguments = %v", args)
	}

	if len(captured.Tools) != 1 || captured.Tools[0].Name != "web_search" {
		t.Fatalf("request tools = %+v", captured.Tools)
	}
}

func TestAnthropicConvertToolRoundTripMessages(t *testing.T) {
	p := NewAnthropicProvider(Config{}, zap.NewNop())

	ar := p.convertRequest(&ChatRequest{
		Messages: []Message{
			{Role: "user", Content: "go"},
			{Role: "assistant", Content: "using a tool", ToolCalls: []ToolCall{
				{ID: "tu_1", Type: "function", Function: ToolCallFunction{Name: "echo", Arguments: `{"a":1}`}},
			}},
			{Role: "tool", Content: "tool says hi", ToolCallID: "tu_1"},
		},
	})

	if len(ar.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(ar.Messages))
	}

	// Assistant tool calls become tool_use blocks.
	blocks, ok := ar.Messages[1].Content.([]anthropicContentBlock)
	if !ok {
		t.Fatalf("assistant content type = %T", ar.Messages[1].Content)
	}
	if len(blocks) != 2 || blocks[0].Type != "text" || blocks[1].Type != "tool_use" {
		t.Fatalf("assistant blocks = %+v", blocks)
	}
	if blocks[1].ID != "tu_1" || blocks[1].Name != "echo" {
		t.Fatalf("tool_use block = %+v", blocks[1])
	}

	// Tool results come back as user tool_result blocks.
	if ar.Messages[2].Role != "user" {
		t.Fatalf("tool result role = %s, want user", ar.Messages[2].Role)
	}
	results, ok := ar.Messages[2].Content.([]anthropicContentBlock)
	if !ok || len(results) != 1 || results[0].Type != "tool_result" {
		t.Fatalf("tool result content = %+v", ar.Messages[2].Content)
	}
	if results[0].ToolUseID != "tu_1" || results[0].Content != "tool says hi" {
		t.Fatalf("tool_result block = %+v", results[0])
	}
}

func TestAnthropicChatAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": "rate limited"}`)
	}))
	t.Cleanup(ts.Close)

	p := NewAnthropicProvider(Config{Endpoint: ts.URL, APIKey: "test-key"}, zap.NewNop())
	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on 429")
	}
}
