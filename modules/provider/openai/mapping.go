package openai

import (
	"strings"

	sdkopenai "github.com/openai/openai-go/v3"

	"github.com/flemzord/recall/internal/provider"
)

// toParams maps a completion request onto Chat Completions parameters.
func toParams(req provider.CompletionRequest, cfg *Config) sdkopenai.ChatCompletionNewParams {
	params := sdkopenai.ChatCompletionNewParams{
		Model:               sdkopenai.ChatModel(cfg.Model),
		MaxCompletionTokens: sdkopenai.Int(int64(cfg.MaxTokens)),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdkopenai.Int(int64(req.MaxTokens))
	}
	if s := strings.TrimSpace(req.System); s != "" {
		params.Messages = append(params.Messages, sdkopenai.SystemMessage(s))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleAssistant:
			params.Messages = append(params.Messages, sdkopenai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, sdkopenai.UserMessage(m.Content))
		}
	}
	if req.Temperature != nil {
		params.Temperature = sdkopenai.Float(*req.Temperature)
	}
	if len(req.Stop) > 0 {
		params.Stop = sdkopenai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	return params
}

// fromResponse reads the first choice. A refusal is returned as filtered
// content so the composer falls back to its template.
func fromResponse(resp *sdkopenai.ChatCompletion) provider.CompletionResponse {
	out := provider.CompletionResponse{
		Usage: provider.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: provider.FinishReasonStop,
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = mapFinishReason(choice.FinishReason)
	if choice.Message.Refusal != "" {
		out.FinishReason = provider.FinishReasonFiltering
	}
	return out
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonFiltering
	}
	return provider.FinishReasonStop
}
