package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkopenai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/provider"
)

const okBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "You had pizza [1].", "refusal": null},
		"finish_reason": "stop",
		"logprobs": null
	}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18}
}`

func newTestProvider(baseURL string) *Provider {
	client := sdkopenai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	cfg := Config{MaxTokens: 256}
	cfg.defaults()
	return &Provider{config: cfg, client: &client}
}

func userRequest(text string) provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: text}},
	}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	var body struct {
		Model               string           `json:"model"`
		MaxCompletionTokens int              `json:"max_completion_tokens"`
		Messages            []map[string]any `json:"messages"`
		Stop                []string         `json:"stop"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	req := userRequest("what did I eat?")
	req.System = "Answer from memory."
	req.MaxTokens = 64
	req.Stop = []string{"\n\n"}

	resp, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "You had pizza [1]." || resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("total tokens = %d, want 18", resp.Usage.TotalTokens)
	}

	if body.Model != defaultModel || body.MaxCompletionTokens != 64 {
		t.Errorf("model/max tokens = %s/%d", body.Model, body.MaxCompletionTokens)
	}
	if len(body.Messages) != 2 || body.Messages[0]["role"] != "system" || body.Messages[1]["role"] != "user" {
		t.Errorf("messages = %v", body.Messages)
	}
	if len(body.Stop) != 1 {
		t.Errorf("stop = %v", body.Stop)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, provider.ErrRateLimit},
		{"server error", http.StatusBadGateway, `{"error":{"message":"bad gateway","type":"server_error"}}`, provider.ErrProviderDown},
		{"context length", http.StatusBadRequest, `{"error":{"message":"This model's maximum context length is 128000 tokens","type":"invalid_request_error","code":"context_length_exceeded"}}`, provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestProvider(srv.URL).Complete(context.Background(), userRequest("hi"))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_AuthIsNotRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).Complete(context.Background(), userRequest("hi"))
	if !errors.Is(err, provider.ErrAuth) || provider.IsRetryable(err) {
		t.Errorf("err = %v, want a non-retryable authentication error", err)
	}
}

func TestComplete_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestProvider(url).Complete(context.Background(), userRequest("hi"))
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/"+defaultModel) {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gpt-4o-mini","object":"model","created":1700000000,"owned_by":"openai"}`))
	}))
	defer srv.Close()

	if err := newTestProvider(srv.URL).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestFromResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		choice string
		want   provider.FinishReason
	}{
		{"length", `{"index":0,"message":{"role":"assistant","content":"cut"},"finish_reason":"length"}`, provider.FinishReasonLength},
		{"filter", `{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"content_filter"}`, provider.FinishReasonFiltering},
		{"refusal", `{"index":0,"message":{"role":"assistant","content":"","refusal":"no"},"finish_reason":"stop"}`, provider.FinishReasonFiltering},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var resp sdkopenai.ChatCompletion
			if err := json.Unmarshal([]byte(`{"choices":[`+tt.choice+`]}`), &resp); err != nil {
				t.Fatal(err)
			}
			if got := fromResponse(&resp).FinishReason; got != tt.want {
				t.Errorf("finish reason = %q, want %q", got, tt.want)
			}
		})
	}

	if got := fromResponse(&sdkopenai.ChatCompletion{}); got.Content != "" || got.FinishReason != provider.FinishReasonStop {
		t.Errorf("empty choices = %+v", got)
	}
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("model: gpt-4.1-mini\nbase_url: http://localhost:11434/v1\nrole: planner\n"), &node); err != nil {
		t.Fatal(err)
	}
	p := &Provider{}
	if err := p.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if p.config.Model != "gpt-4.1-mini" || p.config.MaxTokens != defaultMaxTokens || p.config.Role != provider.RolePlanner {
		t.Errorf("config = %+v", p.config)
	}
	entry := p.ChainEntry()
	if entry.Name != "provider.openai" || entry.Role != provider.RolePlanner || entry.Provider != p {
		t.Errorf("entry = %+v", entry)
	}
}

func TestProvision_KeyFromEnv(t *testing.T) {
	t.Setenv("RECALL_TEST_OPENAI_KEY", "sk-env")

	p := &Provider{config: Config{APIKeyEnv: "RECALL_TEST_OPENAI_KEY"}}
	if err := p.Provision(core.NewAppContext(nil, t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	t.Setenv("RECALL_TEST_OPENAI_KEY", "")
	if err := (&Provider{config: Config{APIKeyEnv: "RECALL_TEST_OPENAI_KEY"}}).Provision(core.NewAppContext(nil, t.TempDir())); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"negative max tokens", Config{MaxTokens: -1}, true},
		{"negative timeout", Config{Timeout: -1}, true},
		{"unknown role", Config{Role: "primary"}, true},
		{"bad fallback_for", Config{FallbackFor: []provider.Role{"fallback"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			cfg.defaults()
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
