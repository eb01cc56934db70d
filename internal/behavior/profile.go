package behavior

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/easeaico/project-nudge/internal/traits"
)

// ConversationMode is the inferred register of the recent conversation.
type ConversationMode string

const (
	ModeSafeSpace     ConversationMode = "safe_space"
	ModeDebate        ConversationMode = "debate"
	ModeEmotionalVent ConversationMode = "emotional_vent"
	ModeTask          ConversationMode = "task_mode"
	ModeCasual        ConversationMode = "casual"
	ModeUnknown       ConversationMode = "unknown"
)

var modeKeywords = []struct {
	mode     ConversationMode
	keywords []string
}{
	{ModeDebate, []string{"debate", "argue", "counterpoint", "rebuttal", "let's discuss"}},
	{ModeEmotionalVent, []string{"vent", "frustrated", "overwhelmed", "emotion", "feel like", "feeling", "sad", "stressed"}},
	{ModeTask, []string{"task", "goal", "next step", "todo", "action item", "plan", "deadline", "work on"}},
	{ModeCasual, []string{"lol", "funny", "haha", "meme", "bro", "buddy", "friend", "lmao", "😂", "😁"}},
}

// InferMode classifies recent user messages. Safe-space mode overrides everything.
func InferMode(recent []string, safeSpace bool) ConversationMode {
	if safeSpace {
		return ModeSafeSpace
	}
	combined := strings.ToLower(strings.Join(recent, " "))
	for _, entry := range modeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.mode
			}
		}
	}
	return ModeUnknown
}

var namePattern = regexp.MustCompile(`(?i)\b(?:my name is|call me)\s+([\p{L}][\p{L}'-]*)`)

// InferName extracts a self-introduced name, capitalized, or "".
func InferName(message string) string {
	m := namePattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	runes := []rune(strings.ToLower(m[1]))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// ProfileUpdates derives profile traits from a user message: conversation mode, a
// self-introduced name and topic interests.
func ProfileUpdates(message string, topics []string, recent []string, safeSpace bool) map[string]any {
	updates := map[string]any{
		traits.KeyConversationMode: string(InferMode(recent, safeSpace)),
	}
	if name := InferName(message); name != "" {
		updates[traits.KeyUserName] = name
	}
	for _, topic := range topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			updates[traits.InterestKey(topic)] = true
		}
	}
	return updates
}

// Observe writes the profile traits inferred from message. recent holds the latest user
// messages including this one.
func (a *Analyzer) Observe(ctx context.Context, userID, message string, topics, recent []string) (ConversationMode, error) {
	current, err := a.ledger.Read(ctx, userID)
	if err != nil {
		return ModeUnknown, fmt.Errorf("failed to read traits: %w", err)
	}
	updates := ProfileUpdates(message, topics, recent, current.Bool(traits.KeySafeSpaceMode))
	if err := a.ledger.Merge(ctx, userID, updates); err != nil {
		return ModeUnknown, fmt.Errorf("failed to update profile traits: %w", err)
	}
	return ConversationMode(updates[traits.KeyConversationMode].(string)), nil
}
