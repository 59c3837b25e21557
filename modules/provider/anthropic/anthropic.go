// Package anthropic implements the provider.anthropic module: completions
// from the Anthropic Messages API for answer generation and question
// classification.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/provider"
	"github.com/flemzord/recall/internal/security"
)

func init() {
	core.RegisterModule(&Anthropic{})
}

// Interface guards.
var (
	_ core.Module            = (*Anthropic)(nil)
	_ core.Configurable      = (*Anthropic)(nil)
	_ core.Provisioner       = (*Anthropic)(nil)
	_ core.Validator         = (*Anthropic)(nil)
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
	_ provider.ChainMember   = (*Anthropic)(nil)
)

// Anthropic is the provider.anthropic module.
type Anthropic struct {
	config Config
	client *sdkanthropic.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return &Anthropic{} },
	}
}

// Configure implements core.Configurable.
func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The key in the config wins over
// the environment variable.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.logger = ctx.Logger
	a.config.defaults()

	apiKey := a.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(a.config.APIKeyEnv)
	}
	if apiKey == "" {
		return fmt.Errorf("provider.anthropic: no API key (set api_key or $%s)", a.config.APIKeyEnv)
	}
	if svc, ok := ctx.GetService(security.ServiceRedactor); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiteral(apiKey)
		}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The chain owns retries and failover.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(a.config.Timeout),
	}
	if a.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.config.BaseURL))
	}
	client := sdkanthropic.NewClient(opts...)
	a.client = &client
	a.logger.Info("anthropic provider ready", "model", a.config.Model, "role", a.config.Role)
	return nil
}

// Validate implements core.Validator.
func (a *Anthropic) Validate() error {
	if err := a.config.validate(); err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}
	if a.client == nil {
		return errors.New("provider.anthropic: client not initialized (Provision not called)")
	}
	return nil
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}

// ChainEntry implements provider.ChainMember.
func (a *Anthropic) ChainEntry() provider.ChainEntry {
	return provider.ChainEntry{
		Name:        string(a.ModuleInfo().ID),
		Provider:    a,
		Role:        a.config.Role,
		Health:      a.config.Health,
		FallbackFor: a.config.FallbackFor,
	}
}

// Complete implements provider.Provider.
func (a *Anthropic) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	msg, err := a.client.Messages.New(ctx, convertRequest(req, &a.config))
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	return convertResponse(msg), nil
}

// HealthCheck implements provider.HealthChecker with a one-token
// completion; the API has no dedicated health endpoint.
func (a *Anthropic) HealthCheck(ctx context.Context) error {
	_, err := a.client.Messages.New(ctx, sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(a.config.Model),
		MaxTokens: 1,
		Messages: []sdkanthropic.MessageParam{
			sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock("ping")),
		},
	})
	return mapError(err)
}
