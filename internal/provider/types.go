package provider

// Role names the capability a chain entry serves.
type Role string

// Roles used by the memory pipeline.
const (
	// RoleComposer backs answer generation.
	RoleComposer Role = "composer"
	// RolePlanner backs question classification.
	RolePlanner Role = "planner"
	// RoleFallback entries serve any role listed in FallbackFor, or every
	// role when FallbackFor is empty.
	RoleFallback Role = "fallback"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleComposer, RolePlanner, RoleFallback:
		return true
	}
	return false
}

// MessageRole identifies the sender of a message.
type MessageRole string

// Message roles.
const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// FinishReason describes why the model stopped generating.
type FinishReason string

// Finish reasons.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// LLMMessage is one message of a completion request.
type LLMMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest is the input to Provider.Complete.
type CompletionRequest struct {
	// System is the instruction prompt, sent apart from the messages.
	System      string       `json:"system,omitempty"`
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stop        []string     `json:"stop,omitempty"`
}

// CompletionResponse is the output of Provider.Complete.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
