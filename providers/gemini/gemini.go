// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a completion client for the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	merrors "github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
)

const providerName = "gemini"

// Provider implements llm.Provider for Google Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// New creates a new Gemini provider. The API key is read from GOOGLE_API_KEY
// or GEMINI_API_KEY.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	return newProvider(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI}, opts...)
}

// NewWithAPIKey creates a new Gemini provider with explicit API key.
func NewWithAPIKey(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	return newProvider(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}, opts...)
}

// NewWithConfig creates a provider from a full client configuration, for
// custom endpoints.
func NewWithConfig(ctx context.Context, cfg *genai.ClientConfig, opts ...Option) (*Provider, error) {
	return newProvider(ctx, cfg, opts...)
}

func newProvider(ctx context.Context, cfg *genai.ClientConfig, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, merrors.New(merrors.CodeConfiguration, "failed to create Gemini client", err)
	}
	p := &Provider{
		client: client,
		model:  "gemini-2.0-flash",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	contents, config := buildRequest(req)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, classify(err)
	}
	return convertResponse(resp), nil
}

func buildRequest(req llm.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}

	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{Temperature: &temp}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	return contents, config
}

// classify maps SDK errors onto the medteam taxonomy. The API reports
// quota exhaustion as HTTP 429 (RESOURCE_EXHAUSTED).
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.ServiceError(providerName, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return llm.ServiceError(providerName, apiErrPtr.Code, err)
	}
	return llm.TransportError(providerName, err)
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{}
	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		result.FinishReason = string(candidate.FinishReason)
		if candidate.Content != nil {
			var sb strings.Builder
			for _, part := range candidate.Content.Parts {
				sb.WriteString(part.Text)
			}
			result.Content = sb.String()
		}
	}
	return result
}

var _ llm.Provider = (*Provider)(nil)
