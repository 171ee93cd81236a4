package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	aerrors "github.com/jllopis/agentnet/pkg/errors"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Model:    "mock",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", mock.Calls())
	}
}

func TestScriptedMockProvider(t *testing.T) {
	s := NewScriptedMockProvider("one", "two").Script("backup", "b1")
	for _, want := range []string{"one", "two"} {
		resp, err := s.Chat(context.Background(), ChatRequest{Model: "mock"})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		if resp.Content != want {
			t.Errorf("expected %q, got %q", want, resp.Content)
		}
	}
	_, err := s.Chat(context.Background(), ChatRequest{Model: "mock"})
	if !aerrors.HasCode(err, aerrors.CodeGeneration) {
		t.Fatalf("expected GENERATION_ERROR once the script is exhausted, got %v", err)
	}

	if s.Remaining("backup") != 1 {
		t.Fatalf("backup script should be untouched, got %d", s.Remaining("backup"))
	}
	resp, err := s.Chat(context.Background(), ChatRequest{Model: "backup", Messages: []Message{{Role: RoleUser, Content: "two words"}}})
	if err != nil || resp.Content != "b1" {
		t.Fatalf("expected backup reply, got %v, %v", resp, err)
	}
	if resp.Usage.PromptTokens != 2 || resp.Usage.TotalTokens != 3 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if s.Remaining("backup") != 0 || len(s.Requests()) != 4 {
		t.Fatalf("expected 4 recorded calls, got %d", len(s.Requests()))
	}
}

func TestGenerateRequestMessages(t *testing.T) {
	msgs := GenerateRequest{Prompt: "p", SystemPrompt: "s"}.Messages()
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].Content != "p" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs := (GenerateRequest{Prompt: "p"}).Messages(); len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %+v", msgs)
	}
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	if !c.Known("gpt-4o") {
		t.Errorf("gpt-4o should be known")
	}
	if p, _ := c.ProviderFor("claude-3-5-haiku-latest"); p != ProviderAnthropic {
		t.Errorf("expected anthropic, got %q", p)
	}
	if c.Known("gpt-17") {
		t.Errorf("unknown model reported as known")
	}
	extended := c.With("custom", "Ollama")
	if p, ok := extended.ProviderFor("custom"); !ok || p != ProviderOllama {
		t.Errorf("expected custom model on ollama, got %q", p)
	}
	if c.Known("custom") {
		t.Errorf("With must not mutate the original catalog")
	}
}

func TestRouterDispatchesByModel(t *testing.T) {
	var gotModel string
	router := NewRouter(nil).
		Register(ProviderOpenAI, &MockProvider{ChatFunc: func(_ context.Context, req ChatRequest) (*ChatResponse, error) {
			gotModel = req.Model
			return &ChatResponse{Content: "from openai"}, nil
		}}).
		Register(ProviderAnthropic, &FailingMockProvider{})

	resp, err := router.Generate(context.Background(), GenerateRequest{Prompt: "hi", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "from openai" || resp.ModelUsed != "gpt-4o-mini" || gotModel != "gpt-4o-mini" {
		t.Fatalf("unexpected response %+v (model %q)", resp, gotModel)
	}

	_, err = router.Generate(context.Background(), GenerateRequest{Prompt: "hi", Model: "claude-3-5-haiku-latest"})
	if !aerrors.HasCode(err, aerrors.CodeGeneration) {
		t.Fatalf("expected GENERATION_ERROR, got %v", err)
	}
	if ae := aerrors.As(err); !ae.Recoverable {
		t.Fatalf("provider failures should be recoverable")
	}

	_, err = router.Generate(context.Background(), GenerateRequest{Model: "gpt-17"})
	if !aerrors.HasCode(err, aerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for unknown model, got %v", err)
	}

	_, err = router.Generate(context.Background(), GenerateRequest{Model: "llama3.1"})
	if !aerrors.HasCode(err, aerrors.CodeGeneration) {
		t.Fatalf("expected GENERATION_ERROR for unregistered provider, got %v", err)
	}
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Options["num_predict"] != float64(256) {
			t.Errorf("expected num_predict 256, got %v", req.Options["num_predict"])
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:           req.Model,
			Message:         Message{Role: RoleAssistant, Content: `{"ok":true}`},
			PromptEvalCount: 3,
			EvalCount:       4,
		})
	}))
	defer srv.Close()

	resp, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{
		Model:     "llama3.1",
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"ok":true}` || resp.Usage.TotalTokens != 7 || resp.Model != "llama3.1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOllamaProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "llama3.1"})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected status error, got %v", err)
	}
	if ae := aerrors.As(err); ae.Code != aerrors.CodeGeneration || !ae.Recoverable {
		t.Errorf("expected recoverable GENERATION_ERROR for 503, got %v", err)
	}
}

func TestProviderErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		status      int
		recoverable bool
	}{
		{status: 0, recoverable: true},
		{status: http.StatusTooManyRequests, recoverable: true},
		{status: http.StatusBadGateway, recoverable: true},
		{status: http.StatusBadRequest, recoverable: false},
		{status: http.StatusUnauthorized, recoverable: false},
	}
	for _, tc := range cases {
		ae := aerrors.As(ProviderError(ProviderOpenAI, tc.status, cause))
		if ae.Code != aerrors.CodeGeneration || ae.Recoverable != tc.recoverable {
			t.Errorf("status %d: got code=%s recoverable=%v", tc.status, ae.Code, ae.Recoverable)
		}
	}

	if err := ProviderError(ProviderOpenAI, 0, context.Canceled); !errors.Is(err, context.Canceled) || aerrors.CodeOf(err) != aerrors.CodeInternal {
		t.Errorf("context errors should pass through, got %v", err)
	}
	typed := aerrors.New(aerrors.CodeTimeout, "slow", nil)
	if err := ProviderError(ProviderOpenAI, 500, typed); err != error(typed) {
		t.Errorf("typed errors should pass through, got %v", err)
	}
	if ProviderError(ProviderOpenAI, 500, nil) != nil {
		t.Error("nil error should stay nil")
	}
}
