package provider_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flemzord/recall/internal/provider"
	"github.com/flemzord/recall/internal/provider/providertest"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	h := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), buf
}

func TestNewChain_Validation(t *testing.T) {
	t.Parallel()

	if _, err := provider.NewChain(nil); !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("empty chain err = %v, want ErrNoProvider", err)
	}
	_, err := provider.NewChain([]provider.ChainEntry{{Name: "broken", Role: provider.RoleComposer}})
	if !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("nil provider err = %v, want ErrNoProvider", err)
	}
	_, err = provider.NewChain([]provider.ChainEntry{{Name: "p", Provider: providertest.Reply("x"), Role: "primary"}})
	if err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestChain_Failover(t *testing.T) {
	t.Parallel()

	down := providertest.Fail(provider.ErrProviderDown)
	ok := providertest.Reply("from p2")
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "p1", Provider: down, Role: provider.RoleComposer},
		{Name: "p2", Provider: ok, Role: provider.RoleComposer},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from p2" {
		t.Errorf("content = %q", resp.Content)
	}

	// p1 is cooling down and is skipped on the next request.
	if _, err := chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if down.CompleteCalls() != 1 {
		t.Errorf("p1 called %d times, want 1", down.CompleteCalls())
	}
}

func TestChain_NonRetryableStops(t *testing.T) {
	t.Parallel()

	p1 := providertest.Fail(provider.ErrContextLength)
	p2 := providertest.Reply("p2")
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "p1", Provider: p1, Role: provider.RolePlanner},
		{Name: "p2", Provider: p2, Role: provider.RolePlanner},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = chain.Complete(context.Background(), provider.RolePlanner, provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrContextLength) {
		t.Fatalf("err = %v, want ErrContextLength", err)
	}
	if p2.CompleteCalls() != 0 {
		t.Error("p2 should not be called after a non-retryable error")
	}
}

func TestChain_AllFail(t *testing.T) {
	t.Parallel()

	logger, logs := testLogger()
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "p1", Provider: providertest.Fail(provider.ErrProviderDown), Role: provider.RoleComposer},
		{Name: "p2", Provider: providertest.Fail(provider.ErrRateLimit), Role: provider.RoleComposer},
	}, provider.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}

	_, err = chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllProviders) || !errors.Is(err, provider.ErrRateLimit) {
		t.Fatalf("err = %v, want ErrAllProviders wrapping the last error", err)
	}
	out := logs.String()
	for _, want := range []string{"failing over", "all providers exhausted", "provider entered cooldown"} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %q:\n%s", want, out)
		}
	}

	// Every candidate is now cooling down.
	_, err = chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllProviders) {
		t.Errorf("second call err = %v, want ErrAllProviders", err)
	}
}

func TestChain_RoleRouting(t *testing.T) {
	t.Parallel()

	planner := providertest.Reply("planner")
	composer := providertest.Reply("composer")
	plannerOnly := providertest.Reply("fallback")
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "fb", Provider: plannerOnly, Role: provider.RoleFallback, FallbackFor: []provider.Role{provider.RolePlanner}},
		{Name: "planner", Provider: planner, Role: provider.RolePlanner},
		{Name: "composer", Provider: composer, Role: provider.RoleComposer},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := chain.Complete(context.Background(), provider.RolePlanner, provider.CompletionRequest{})
	if err != nil || resp.Content != "planner" {
		t.Errorf("planner = %q, %v; direct role entries come first", resp.Content, err)
	}
	resp, err = chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{})
	if err != nil || resp.Content != "composer" {
		t.Errorf("composer = %q, %v", resp.Content, err)
	}
	if plannerOnly.CompleteCalls() != 0 {
		t.Error("fallback should not be used while direct entries succeed")
	}
}

func TestChain_NoProviderForRole(t *testing.T) {
	t.Parallel()

	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "fb", Provider: providertest.Reply("x"), Role: provider.RoleFallback, FallbackFor: []provider.Role{provider.RolePlanner}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if chain.Has(provider.RoleComposer) {
		t.Error("Has(composer) = true")
	}
	if !chain.Has(provider.RolePlanner) {
		t.Error("Has(planner) = false")
	}
	_, err = chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

func TestChain_CanceledContext(t *testing.T) {
	t.Parallel()

	p := providertest.Reply("x")
	chain, err := provider.NewChain([]provider.ChainEntry{{Name: "p", Provider: p, Role: provider.RoleComposer}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := chain.Complete(ctx, provider.RoleComposer, provider.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if p.CompleteCalls() != 0 {
		t.Error("provider called with a canceled context")
	}
}

func TestChain_HealthProbeRevives(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	healthy := false
	p := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			mu.Lock()
			defer mu.Unlock()
			if !healthy {
				return provider.CompletionResponse{}, provider.ErrProviderDown
			}
			return provider.CompletionResponse{Content: "back"}, nil
		},
		HealthCheckFunc: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if !healthy {
				return provider.ErrProviderDown
			}
			return nil
		},
	}
	chain, err := provider.NewChain([]provider.ChainEntry{{
		Name:     "p",
		Provider: p,
		Role:     provider.RoleComposer,
		Health:   provider.HealthConfig{InitialBackoff: time.Millisecond, MaxFailures: 1, CheckInterval: 5 * time.Millisecond},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{}); err == nil {
		t.Fatal("expected failure")
	}
	if got := chain.HealthReport()[0].State; got != "dead" {
		t.Fatalf("state = %s, want dead", got)
	}

	mu.Lock()
	healthy = true
	mu.Unlock()

	chain.Start(context.Background())
	defer chain.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for chain.HealthReport()[0].State != "healthy" {
		if time.Now().After(deadline) {
			t.Fatal("provider was not revived by the health probe")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if p.HealthCalls() == 0 {
		t.Error("health probe never ran")
	}
}

func TestChain_HealthReportAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "claude", Provider: &providertest.MockProvider{Model: "claude-x", CompleteFunc: providertest.Reply("ok").CompleteFunc}, Role: provider.RoleComposer},
	}, provider.WithRegisterer(reg))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := chain.Complete(context.Background(), provider.RoleComposer, provider.CompletionRequest{}); err != nil {
		t.Fatal(err)
	}

	report := chain.HealthReport()
	if len(report) != 1 || report[0].Model != "claude-x" || report[0].State != "healthy" || report[0].Role != provider.RoleComposer {
		t.Errorf("report = %+v", report)
	}
	if n, err := testutil.GatherAndCount(reg, "recall_provider_requests_total"); err != nil || n != 1 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}

	// A second chain on the same registry shares the collector.
	if _, err := provider.NewChain([]provider.ChainEntry{
		{Name: "other", Provider: providertest.Reply("x"), Role: provider.RoleComposer},
	}, provider.WithRegisterer(reg)); err != nil {
		t.Errorf("second registration: %v", err)
	}
}
