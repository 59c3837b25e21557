// Package provider defines the LLM backend contract used by the answer
// composer and the query planner, and a health-aware failover chain over
// several backends.
package provider

import "context"

// Provider is a text-completion backend. Concrete implementations live in
// modules (e.g. provider.anthropic) and register themselves as core modules.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is implemented by providers that support an active probe.
// The chain calls it while a provider is cooling down or marked dead.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
