package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxloop/pkg/provider/llm"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	sys, err := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "be brief"})
	if err != nil || sys.OfSystem == nil {
		t.Errorf("system: OfSystem=%v err=%v", sys.OfSystem, err)
	}
	usr, err := convertMessage(llm.Message{Role: llm.RoleUser, Content: "hello"})
	if err != nil || usr.OfUser == nil {
		t.Errorf("user: OfUser=%v err=%v", usr.OfUser, err)
	}
	asst, err := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "hi"})
	if err != nil || asst.OfAssistant == nil {
		t.Errorf("assistant: OfAssistant=%v err=%v", asst.OfAssistant, err)
	}
	if _, err := convertMessage(llm.Message{Role: "narrator"}); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.UserTurn("You are helpful.", "What is Go?", 300, 0.5))
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil || params.Messages[1].OfUser == nil {
		t.Fatalf("messages = %+v, want system then user", params.Messages)
	}
	if params.MaxTokens.Value != 300 {
		t.Errorf("max tokens = %d, want 300", params.MaxTokens.Value)
	}
	if params.Temperature.Value != 0.5 {
		t.Errorf("temperature = %v, want 0.5", params.Temperature.Value)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty messages")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Go is a programming language."}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 6, "total_tokens": 26}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.UserTurn("You are helpful.", "What is Go?", 300, 0))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Go is a programming language." || resp.FinishReason != "stop" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Usage.TotalTokens != 26 {
		t.Errorf("total tokens = %d, want 26", resp.Usage.TotalTokens)
	}
	if got.Model != "gpt-4o-mini" || got.MaxTokens != 300 || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request = %+v", got)
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "bad model", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, _ := New("sk-test", "nope", WithBaseURL(srv.URL), WithMaxRetries(0))
	_, err := p.Complete(context.Background(), llm.UserTurn("", "hi", 0, 0))
	if err == nil || !strings.Contains(err.Error(), "openai: chat completion") {
		t.Errorf("err = %v, want wrapped chat completion error", err)
	}
}
