package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkopenai "github.com/openai/openai-go/v3"

	"github.com/flemzord/recall/internal/provider"
)

// mapError maps an SDK error to a provider sentinel. Context errors pass
// through unchanged; transport failures count as the provider being down.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdkopenai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}

	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.RawJSON()
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: openai HTTP %d: %s", provider.ErrAuth, apiErr.StatusCode, msg)
	case apiErr.StatusCode == http.StatusBadRequest && isContextLength(apiErr):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
	case apiErr.StatusCode >= 500:
		return fmt.Errorf("%w: %s", provider.ErrProviderDown, msg)
	default:
		return fmt.Errorf("openai: HTTP %d: %s", apiErr.StatusCode, msg)
	}
}

func isContextLength(apiErr *sdkopenai.Error) bool {
	if apiErr.Code == "context_length_exceeded" {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "context length")
}
