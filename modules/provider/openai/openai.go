// Package openai implements the provider.openai module on the OpenAI Chat
// Completions API. Any compatible endpoint works through base_url.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sdkopenai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/provider"
	"github.com/flemzord/recall/internal/security"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ provider.ChainMember   = (*Provider)(nil)
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
)

// Provider is the provider.openai module.
type Provider struct {
	config Config
	logger *slog.Logger
	client *sdkopenai.Client
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.openai: decode config: %w", err)
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger
	p.config.defaults()

	apiKey := p.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(p.config.APIKeyEnv)
	}
	if apiKey == "" {
		return fmt.Errorf("provider.openai: no API key (set api_key or $%s)", p.config.APIKeyEnv)
	}
	if svc, ok := ctx.GetService(security.ServiceRedactor); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiteral(apiKey)
		}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(p.config.Timeout),
	}
	if p.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.config.BaseURL))
	}
	client := sdkopenai.NewClient(opts...)
	p.client = &client
	p.logger.Info("openai provider ready", "model", p.config.Model, "role", p.config.Role)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	if err := p.config.validate(); err != nil {
		return fmt.Errorf("provider.openai: %w", err)
	}
	if p.client == nil {
		return errors.New("provider.openai: client not initialized (Provision not called)")
	}
	return nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// ChainEntry implements provider.ChainMember.
func (p *Provider) ChainEntry() provider.ChainEntry {
	return provider.ChainEntry{
		Name:        string(p.ModuleInfo().ID),
		Provider:    p,
		Role:        p.config.Role,
		Health:      p.config.Health,
		FallbackFor: p.config.FallbackFor,
	}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := p.client.Chat.Completions.New(ctx, toParams(req, &p.config))
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	return fromResponse(resp), nil
}

// HealthCheck implements provider.HealthChecker by retrieving the model,
// which costs no tokens.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.Get(ctx, p.config.Model)
	return mapError(err)
}
