package signal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/project-nudge/internal/types"
	"github.com/easeaico/project-nudge/internal/utils"
)

const classifierInstruction = `You classify a single chat message written by a user to their accountability coach.
Return one JSON object and nothing else, with these keys:
- "emotion": the dominant emotion as a lower-case noun (for example joy, sadness, anger, fear, anxiety, guilt, shame, hopelessness, frustration, boredom, motivation, confidence, neutral)
- "intensity": how strongly it is expressed, from 0 to 1
- "topic_tags": short lower-case topics the message is about, such as health, finance, career, relationship, education
- "intent": one of productive, avoidant, recreational, unknown`

func zeroOne() (*float64, *float64) {
	lo, hi := 0.0, 1.0
	return &lo, &hi
}

// SignalSchema is the JSON schema the model output must satisfy.
func SignalSchema() *jsonschema.Schema {
	lo, hi := zeroOne()
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"emotion": {
				Type:        "string",
				Description: "dominant emotion as a lower-case noun",
			},
			"intensity": {
				Type:    "number",
				Minimum: lo,
				Maximum: hi,
			},
			"topic_tags": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
			"intent": {
				Type: "string",
				Enum: []any{
					string(types.IntentProductive),
					string(types.IntentAvoidant),
					string(types.IntentRecreational),
					string(types.IntentUnknown),
				},
			},
		},
		Required: []string{"emotion", "intensity", "topic_tags", "intent"},
	}
}

// LLMExtractor classifies messages with a language model constrained to SignalSchema.
type LLMExtractor struct {
	model model.LLM
}

// NewLLMExtractor returns an LLMExtractor.
func NewLLMExtractor(m model.LLM) *LLMExtractor {
	return &LLMExtractor{model: m}
}

func (e *LLMExtractor) Classify(ctx context.Context, text string) (types.Signal, error) {
	if e == nil || e.model == nil {
		return types.Signal{}, fmt.Errorf("signal extractor not configured")
	}
	if strings.TrimSpace(text) == "" {
		return types.NeutralSignal(), nil
	}

	req := &model.LLMRequest{
		Contents: []*genai.Content{
			genai.NewContentFromText(text, genai.RoleUser),
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction:  genai.NewContentFromText(classifierInstruction, "system"),
			Temperature:        genai.Ptr[float32](0),
			ResponseMIMEType:   "application/json",
			ResponseJsonSchema: SignalSchema(),
		},
	}

	var resp *model.LLMResponse
	var err error
	for r, genErr := range e.model.GenerateContent(ctx, req, false) {
		resp, err = r, genErr
		break
	}
	if err != nil {
		return types.Signal{}, fmt.Errorf("failed to classify message: %w", err)
	}

	return ParseSignal(responseText(resp))
}

// ParseSignal extracts the JSON object from raw model output.
func ParseSignal(raw string) (types.Signal, error) {
	var sig types.Signal
	if err := utils.DecodeJSONObject(raw, &sig); err != nil {
		return types.Signal{}, fmt.Errorf("failed to parse classifier output: %w", err)
	}
	return sig, nil
}

func responseText(resp *model.LLMResponse) string {
	if resp == nil {
		return ""
	}
	return utils.ExtractContentText(resp.Content)
}
