package models

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

// NewGeminiModel creates a Gemini chat model backed by the Gemini API.
func NewGeminiModel(ctx context.Context, modelName, apiKey string) (model.LLM, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	llm, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini model: %w", err)
	}
	return &geminiModel{LLM: llm}, nil
}

// geminiModel folds system turns in the transcript into user turns; the Gemini API only
// accepts user and model roles in contents.
type geminiModel struct {
	model.LLM
}

func (g *geminiModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	if req != nil {
		req.Contents = foldSystemTurns(req.Contents)
	}
	return g.LLM.GenerateContent(ctx, req, stream)
}

func foldSystemTurns(contents []*genai.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		if c == nil || c.Role != "system" {
			out = append(out, c)
			continue
		}
		folded := &genai.Content{Role: string(genai.RoleUser)}
		for _, p := range c.Parts {
			if p == nil || p.Text == "" {
				continue
			}
			folded.Parts = append(folded.Parts, genai.NewPartFromText("(note) "+p.Text))
		}
		out = append(out, folded)
	}
	return out
}
