// SPDX-License-Identifier: Apache-2.0

// Package ollama provides a completion client for a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	merrors "github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
)

const (
	providerName = "ollama"

	// DefaultHost is the address Ollama listens on out of the box.
	DefaultHost = "http://localhost:11434"
)

// Provider implements llm.Provider on top of the Ollama chat endpoint.
type Provider struct {
	client *api.Client
	model  string
	host   string
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

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		if hc != nil {
			u, _ := url.Parse(p.host)
			p.client = api.NewClient(u, hc)
		}
	}
}

// New creates a provider for the Ollama server at host. An empty host uses
// DefaultHost.
func New(host string, opts ...Option) (*Provider, error) {
	if host == "" {
		host = DefaultHost
	}
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, merrors.New(merrors.CodeConfiguration, "invalid ollama host "+host, err)
	}
	p := &Provider{
		client: api.NewClient(u, http.DefaultClient),
		model:  "llama3.1",
		host:   host,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Model returns the default model name.
func (p *Provider) Model() string { return p.model }

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}

	var resp api.ChatResponse
	err := p.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	return &llm.ChatResponse{
		Content:      resp.Message.Content,
		FinishReason: resp.DoneReason,
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

func convertMessages(messages []llm.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func classify(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return llm.ServiceError(providerName, statusErr.StatusCode, err)
	}
	var statusErrPtr *api.StatusError
	if errors.As(err, &statusErrPtr) {
		return llm.ServiceError(providerName, statusErrPtr.StatusCode, err)
	}
	return llm.TransportError(providerName, err)
}

var _ llm.Provider = (*Provider)(nil)
