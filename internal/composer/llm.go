package composer

import (
	"context"
	"fmt"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/provider"
)

// Completer is the part of provider.Chain the generator needs.
type Completer interface {
	Complete(ctx context.Context, role provider.Role, req provider.CompletionRequest) (provider.CompletionResponse, error)
}

const generatorSystem = `You answer questions using only the numbered memories provided.
Every sentence must cite the memory it comes from with its marker, for
example [1] or [2].
Never cite a number that is not listed. If the memories do not answer the
question, say so briefly and cite the closest memory. Be concise.`

// LLMGenerator writes answers with the provider chain's composer role.
type LLMGenerator struct {
	completer Completer
}

// NewLLMGenerator creates a generator over c.
func NewLLMGenerator(c Completer) *LLMGenerator {
	return &LLMGenerator{completer: c}
}

// Generate implements TextGenerator.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string, c Constraints) (string, error) {
	temp := 0.2
	resp, err := g.completer.Complete(ctx, provider.RoleComposer, provider.CompletionRequest{
		System:      generatorSystem,
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: prompt}},
		MaxTokens:   c.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("composer: generate: %w: %w", memory.ErrCapabilityUnavailable, err)
	}
	if resp.FinishReason == provider.FinishReasonFiltering {
		return "", fmt.Errorf("composer: generate: %w: output filtered", memory.ErrCapabilityUnavailable)
	}
	return resp.Content, nil
}
