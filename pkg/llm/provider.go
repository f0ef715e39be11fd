// SPDX-License-Identifier: Apache-2.0

// Package llm defines the narrow boundary to the external text-generation
// service. Concrete backends live under providers/.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
//
// Implementations must report failures as *errors.Error values: throttling
// as errors.CodeRateLimit, everything else as errors.CodeUnrecoverable with
// the remote status code when one exists. Provider-internal retries should be
// disabled; retrying is the caller's decision.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Prompt wraps a single finished prompt as a one-message request.
func Prompt(text string, temperature float64, maxTokens int) ChatRequest {
	return ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: text}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
