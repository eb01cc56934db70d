// Package agent runs the conversational coach: it decides the turn through the pipeline and, when
// a reply generator is configured, writes the reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/project-nudge/internal/pipeline"
	"github.com/easeaico/project-nudge/internal/prompt"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
	"github.com/easeaico/project-nudge/internal/utils"
)

// ErrNoGenerator is returned by Chat when no reply model is configured.
var ErrNoGenerator = errors.New("reply generator not configured")

// relevantIntensity is the signal intensity at which the sharp persona takes over.
const relevantIntensity = 0.6

// Reply is a decided turn plus the coach's answer.
type Reply struct {
	pipeline.Result
	Reply   string `json:"reply"`
	ReplyID string `json:"reply_id,omitempty"`
}

// Coach generates replies on top of the turn pipeline.
type Coach struct {
	pipeline *pipeline.Pipeline
	model    model.LLM
	builder  *prompt.Builder
}

// NewCoach returns a Coach. llm may be nil, in which case Chat fails with ErrNoGenerator.
func NewCoach(p *pipeline.Pipeline, llm model.LLM, builder *prompt.Builder) (*Coach, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if builder == nil {
		builder = prompt.NewBuilder(0, 0)
	}
	return &Coach{pipeline: p, model: llm, builder: builder}, nil
}

// Enabled reports whether a reply generator is configured.
func (c *Coach) Enabled() bool {
	return c.model != nil
}

// Chat decides the turn and answers it. The de-escalation acknowledgment is returned verbatim
// without calling the generator. When generation fails the nudge text is sent as the reply.
func (c *Coach) Chat(ctx context.Context, userID, message string) (Reply, error) {
	if !c.Enabled() {
		return Reply{}, ErrNoGenerator
	}

	res, err := c.pipeline.Turn(ctx, userID, message)
	if err != nil {
		return Reply{}, err
	}

	var text string
	if res.Outcome.Reason == types.ReasonDeescalated {
		text = res.Outcome.Text
	} else {
		text, err = c.generate(ctx, res)
		if err != nil {
			// Tracking is already committed, so the nudge goes out as the reply.
			c.pipeline.ReportDegradation(pipeline.ComponentGenerator)
			if res.Tactic == nil {
				slog.Warn("reply generation failed", "user_id", res.UserID, "error", err.Error())
				return Reply{}, err
			}
			slog.Warn("reply generation failed, sending nudge", "user_id", res.UserID, "error", err.Error())
			text = *res.Tactic
			res.Degraded = append(res.Degraded, pipeline.ComponentGenerator)
		}
	}

	entry, err := c.pipeline.RecordReply(ctx, res.UserID, res.EntryID, text)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to record reply: %w", err)
	}
	return Reply{Result: res, Reply: text, ReplyID: entry.ID}, nil
}

func (c *Coach) generate(ctx context.Context, res pipeline.Result) (string, error) {
	history, err := c.pipeline.History(ctx, res.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	tr, err := c.pipeline.Traits(ctx, res.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to read traits: %w", err)
	}

	bc := prompt.BuildContext{
		Persona:  SelectPersona(res),
		UserName: tr.String(traits.KeyUserName),
		Mode:     string(res.Mode),
		Memories: res.Context,
		Excuses:  tr.Strings(traits.KeyCommonExcuses),
		History:  history,
	}
	if res.Tactic != nil {
		bc.Nudge = *res.Tactic
	}
	instruction, err := c.builder.Instruction(bc)
	if err != nil {
		return "", err
	}

	req := &model.LLMRequest{
		Contents: c.builder.Transcript(bc),
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(instruction, "system"),
		},
	}

	var resp *model.LLMResponse
	for r, genErr := range c.model.GenerateContent(ctx, req, false) {
		resp, err = r, genErr
		break
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	var text string
	if resp != nil {
		text = strings.TrimSpace(utils.ExtractContentText(resp.Content))
	}
	if text == "" {
		return "", fmt.Errorf("empty reply from %s", c.model.Name())
	}
	slog.Debug("reply generated", "user_id", res.UserID, "persona", bc.Persona, "chars", len(text))
	return text, nil
}

// SelectPersona switches to the sharp persona once the turn raised flags or carries a strong
// emotion.
func SelectPersona(res pipeline.Result) prompt.Persona {
	if len(res.Flags) > 0 {
		return prompt.PersonaSharp
	}
	if res.Signal.Emotion != "neutral" && res.Signal.Intensity >= relevantIntensity {
		return prompt.PersonaSharp
	}
	return prompt.PersonaSoft
}
