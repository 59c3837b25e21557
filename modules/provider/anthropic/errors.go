package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/recall/internal/provider"
)

// overloaded is Anthropic's non-standard "overloaded" status.
const overloaded = 529

// contextMarkers identify an invalid_request_error caused by prompt size.
var contextMarkers = []string{"prompt is too long", "context length", "too many tokens", "token limit"}

// mapError wraps an SDK error in the provider error the chain acts on.
// Context errors pass through unchanged and transport failures count as
// an outage.
func mapError(err error) error {
	var apiErr *sdkanthropic.Error
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case !errors.As(err, &apiErr):
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}

	if kind := classify(apiErr); kind != nil {
		return fmt.Errorf("%w: anthropic HTTP %d: %s", kind, apiErr.StatusCode, apiErr.Error())
	}
	return fmt.Errorf("anthropic: HTTP %d: %w", apiErr.StatusCode, err)
}

func classify(apiErr *sdkanthropic.Error) error {
	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		return provider.ErrRateLimit
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return provider.ErrAuth
	case code == overloaded, code >= http.StatusInternalServerError:
		return provider.ErrProviderDown
	case code == http.StatusBadRequest && promptTooLong(apiErr.RawJSON()):
		return provider.ErrContextLength
	}
	return nil
}

// promptTooLong inspects the error envelope
// {"type":"error","error":{"type":...,"message":...}}. A body that does not
// parse is matched as plain text.
func promptTooLong(raw string) bool {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	text := raw
	if json.Unmarshal([]byte(raw), &envelope) == nil {
		if envelope.Error.Type != "invalid_request_error" {
			return false
		}
		text = envelope.Error.Message
	}
	text = strings.ToLower(text)
	for _, m := range contextMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
