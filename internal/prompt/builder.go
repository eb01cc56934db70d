// Package prompt assembles the reply generator's instruction and transcript.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/easeaico/project-nudge/internal/types"
)

// Transcript limits.
const (
	DefaultMaxTurns = 12
	DefaultMaxChars = 6000
)

// BuildContext contains all inputs for prompt assembly.
type BuildContext struct {
	Persona  Persona
	UserName string
	Mode     string
	Memories []types.RankedEntry
	Excuses  []string
	// History holds the conversation oldest first, ending with the current user message.
	History []types.MemoryEntry
	// Nudge is appended as a final system turn when non-empty.
	Nudge string
}

// Builder assembles layered prompts for the coach.
type Builder struct {
	maxTurns int
	maxChars int
	nowFunc  func() time.Time
}

// NewBuilder creates a prompt Builder. Non-positive limits use the defaults.
func NewBuilder(maxTurns, maxChars int) *Builder {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Builder{
		maxTurns: maxTurns,
		maxChars: maxChars,
		nowFunc:  time.Now,
	}
}

// Instruction renders the persona's system instruction.
func (b *Builder) Instruction(ctx BuildContext) (string, error) {
	persona := ctx.Persona
	if persona == "" {
		persona = PersonaSoft
	}
	name := strings.TrimSpace(ctx.UserName)
	if name == "" {
		name = "the user"
	}
	data := struct {
		Persona  Persona
		UserName string
		Now      string
		Mode     string
		Memories []types.RankedEntry
		Excuses  []string
	}{
		Persona:  persona,
		UserName: name,
		Now:      b.nowFunc().Format(time.RFC3339),
		Mode:     ctx.Mode,
		Memories: ctx.Memories,
		Excuses:  ctx.Excuses,
	}

	var buf bytes.Buffer
	if err := instructionTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}
	return buf.String(), nil
}

// Transcript converts the most recent history into role-tagged contents. It keeps at most
// maxTurns turns and maxChars characters, dropping the oldest first, then appends the nudge.
func (b *Builder) Transcript(ctx BuildContext) []*genai.Content {
	var kept []*genai.Content
	total := 0
	for i := len(ctx.History) - 1; i >= 0 && len(kept) < b.maxTurns; i-- {
		entry := ctx.History[i]
		text := strings.TrimSpace(entry.Content)
		if text == "" {
			continue
		}
		if total+len(text) > b.maxChars {
			break
		}
		total += len(text)
		role := genai.RoleUser
		if entry.Sender == types.SenderAgent {
			role = genai.RoleModel
		}
		kept = append(kept, genai.NewContentFromText(text, genai.Role(role)))
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	if nudge := strings.TrimSpace(ctx.Nudge); nudge != "" {
		kept = append(kept, genai.NewContentFromText(nudge, "system"))
	}
	return kept
}
