package models

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
)

// Provider names a model vendor.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenAI     Provider = "openai"
	ProviderGrok       Provider = "grok"
	ProviderOpenRouter Provider = "openrouter"
)

const (
	grokBaseURL       = "https://api.x.ai/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Options selects and authenticates a model.
type Options struct {
	Provider Provider
	Model    string
	APIKey   string
	// BaseURL overrides the provider default for OpenAI-compatible endpoints.
	BaseURL string
}

// New builds the model.LLM described by opts.
func New(ctx context.Context, opts Options) (model.LLM, error) {
	switch Provider(strings.ToLower(string(opts.Provider))) {
	case ProviderGemini:
		return NewGeminiModel(ctx, opts.Model, opts.APIKey)
	case ProviderOpenAI:
		return newOpenAICompatible(ProviderOpenAI, opts.Model, opts.APIKey, opts.BaseURL)
	case ProviderGrok:
		return newOpenAICompatible(ProviderGrok, opts.Model, opts.APIKey, orDefault(opts.BaseURL, grokBaseURL))
	case ProviderOpenRouter:
		return newOpenAICompatible(ProviderOpenRouter, opts.Model, opts.APIKey, orDefault(opts.BaseURL, openRouterBaseURL))
	default:
		return nil, fmt.Errorf("unsupported model provider %q", opts.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
