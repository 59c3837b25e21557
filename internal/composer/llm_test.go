package composer

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/provider"
)

type completerFunc func(ctx context.Context, role provider.Role, req provider.CompletionRequest) (provider.CompletionResponse, error)

func (f completerFunc) Complete(ctx context.Context, role provider.Role, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	return f(ctx, role, req)
}

func TestLLMGenerator(t *testing.T) {
	t.Parallel()

	g := NewLLMGenerator(completerFunc(func(_ context.Context, role provider.Role, req provider.CompletionRequest) (provider.CompletionResponse, error) {
		if role != provider.RoleComposer {
			t.Errorf("role = %q", role)
		}
		if req.MaxTokens != 300 || req.Messages[0].Content != "the prompt" {
			t.Errorf("req = %+v", req)
		}
		return provider.CompletionResponse{Content: "answer [1]", FinishReason: provider.FinishReasonStop}, nil
	}))
	out, err := g.Generate(context.Background(), "the prompt", Constraints{MaxTokens: 300, Citations: 1})
	if err != nil || out != "answer [1]" {
		t.Errorf("Generate = %q, %v", out, err)
	}
}

func TestLLMGenerator_Errors(t *testing.T) {
	t.Parallel()

	for _, resp := range []struct {
		resp provider.CompletionResponse
		err  error
	}{
		{err: provider.ErrAllProviders},
		{resp: provider.CompletionResponse{FinishReason: provider.FinishReasonFiltering}},
	} {
		g := NewLLMGenerator(completerFunc(func(context.Context, provider.Role, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return resp.resp, resp.err
		}))
		if _, err := g.Generate(context.Background(), "p", Constraints{}); !errors.Is(err, memory.ErrCapabilityUnavailable) {
			t.Errorf("err = %v, want ErrCapabilityUnavailable", err)
		}
	}
}
