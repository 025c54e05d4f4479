package anyllm

import (
	"strings"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/provider/llm"
)

// ── New ───────────────────────────────────────────────────────────────────────

// TestNew_MissingProvider ensures the constructor rejects an empty provider name.
func TestNew_MissingProvider(t *testing.T) {
	_, err := New("", "llama3.2")
	if err == nil {
		t.Fatal("expected error for empty provider name")
	}
}

// TestNew_MissingModel ensures the constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("ollama", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider ensures unknown provider names are rejected with
// a message that lists the supported names.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("not-a-real-provider", "some-model")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("expected error to mention unsupported provider, got: %v", err)
	}
	if !strings.Contains(err.Error(), "ollama") {
		t.Errorf("expected error to list supported providers, got: %v", err)
	}
}

// TestNew_ProviderNameCaseInsensitive checks that provider names are matched
// case-insensitively.
func TestNew_ProviderNameCaseInsensitive(t *testing.T) {
	p, err := New("Ollama", "llama3.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptFirst checks that the system prompt is prepended
// as the first message.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "llama3.2"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You restore punctuation.",
		Messages: []llm.Message{
			{Role: "user", Content: "hello world"},
		},
	})
	if params.Model != "llama3.2" {
		t.Errorf("expected model llama3.2, got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("expected first message role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("expected second message role user, got %q", params.Messages[1].Role)
	}
}

// TestBuildParams_OptionalFields checks that zero temperature and max tokens
// are omitted, and non-zero values are passed through as pointers.
func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "llama3.2"}

	zero := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if zero.Temperature != nil {
		t.Errorf("expected nil temperature for zero value, got %v", *zero.Temperature)
	}
	if zero.MaxTokens != nil {
		t.Errorf("expected nil max tokens for zero value, got %v", *zero.MaxTokens)
	}

	set := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.3,
		MaxTokens:   256,
	})
	if set.Temperature == nil || *set.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", set.Temperature)
	}
	if set.MaxTokens == nil || *set.MaxTokens != 256 {
		t.Errorf("expected max tokens 256, got %v", set.MaxTokens)
	}
}
