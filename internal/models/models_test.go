package models

import (
	"context"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func TestBuildOpenAIParamsSystemInstructionFirst(t *testing.T) {
	req := &model.LLMRequest{
		Contents: []*genai.Content{
			genai.NewContentFromText("hi", genai.RoleUser),
			genai.NewContentFromText("hello", genai.RoleModel),
			genai.NewContentFromText("push me", genai.RoleUser),
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("be brief", "system"),
			Temperature:       genai.Ptr[float32](0.5),
		},
	}
	params := buildOpenAIParams(req, "gpt-test")

	if params.Model != "gpt-test" {
		t.Fatalf("expected default model name, got %q", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Fatalf("expected system instruction as first message")
	}
	if params.Messages[1].OfUser == nil || params.Messages[2].OfAssistant == nil || params.Messages[3].OfUser == nil {
		t.Fatalf("unexpected role mapping: %+v", params.Messages)
	}
	if params.ResponseFormat.OfJSONSchema != nil || params.ResponseFormat.OfJSONObject != nil {
		t.Fatalf("did not expect a response format")
	}
}

func TestBuildOpenAIParamsResponseSchema(t *testing.T) {
	lo := 0.0
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"score": {Type: "number", Minimum: &lo},
			"tags":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
		Required: []string{"score"},
	}
	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText("x", genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			ResponseMIMEType:   "application/json",
			ResponseJsonSchema: schema,
		},
	}
	params := buildOpenAIParams(req, "m")
	if params.ResponseFormat.OfJSONSchema == nil {
		t.Fatalf("expected json schema response format")
	}

	converted := convertSchema(schema)
	props, ok := converted["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %T", converted["properties"])
	}
	score := props["score"].(map[string]any)
	if score["type"] != "number" || score["minimum"] != 0.0 {
		t.Fatalf("unexpected score schema %+v", score)
	}
	tags := props["tags"].(map[string]any)
	if items := tags["items"].(map[string]any); items["type"] != "string" {
		t.Fatalf("unexpected items schema %+v", items)
	}
}

func TestBuildOpenAIParamsJSONObjectFallback(t *testing.T) {
	req := &model.LLMRequest{
		Config: &genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	}
	params := buildOpenAIParams(req, "m")
	if params.ResponseFormat.OfJSONObject == nil {
		t.Fatalf("expected json object response format")
	}
}

func TestEnsureUserTurn(t *testing.T) {
	req := &model.LLMRequest{Contents: []*genai.Content{genai.NewContentFromText("done", genai.RoleModel)}}
	ensureUserTurn(req)
	if len(req.Contents) != 2 || req.Contents[1].Role != "user" {
		t.Fatalf("expected trailing user turn, got %+v", req.Contents)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Options{Provider: "mystery", Model: "x", APIKey: "k"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if _, err := New(ctx, Options{Provider: ProviderGrok, Model: "grok-4-fast"}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	llm, err := New(ctx, Options{Provider: ProviderOpenRouter, Model: "meta/llama", APIKey: "k"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if llm.Name() != "meta/llama" {
		t.Fatalf("unexpected model name %q", llm.Name())
	}
}

func TestFoldSystemTurns(t *testing.T) {
	in := []*genai.Content{
		genai.NewContentFromText("hi", genai.RoleUser),
		genai.NewContentFromText("push gently", "system"),
	}
	out := foldSystemTurns(in)
	if len(out) != 2 || out[0] != in[0] {
		t.Fatalf("unexpected contents %+v", out)
	}
	if out[1].Role != "user" || out[1].Parts[0].Text != "(note) push gently" {
		t.Fatalf("expected folded user turn, got %+v", out[1])
	}
}
