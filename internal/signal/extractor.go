// Package signal classifies raw message text into an emotion, intensity, topic tags and intent.
package signal

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/easeaico/project-nudge/internal/types"
)

// Extractor maps message text to a Signal. Implementations may call remote models and fail.
type Extractor interface {
	Classify(ctx context.Context, text string) (types.Signal, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string) (types.Signal, error)

func (f ExtractorFunc) Classify(ctx context.Context, text string) (types.Signal, error) {
	return f(ctx, text)
}

// emotionAliases folds adjective and variant labels onto the canonical noun form.
var emotionAliases = map[string]string{
	"sad":        "sadness",
	"angry":      "anger",
	"anxious":    "anxiety",
	"afraid":     "fear",
	"scared":     "fear",
	"bored":      "boredom",
	"guilty":     "guilt",
	"ashamed":    "shame",
	"hopeless":   "hopelessness",
	"frustrated": "frustration",
	"happy":      "joy",
	"happiness":  "joy",
	"motivated":  "motivation",
	"confident":  "confidence",
	"grieving":   "grief",
	"disgusted":  "disgust",
	"surprised":  "surprise",
}

// NormalizeEmotion lower-cases label and maps known variants to their canonical name.
// An empty label becomes "neutral".
func NormalizeEmotion(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "neutral"
	}
	if canonical, ok := emotionAliases[label]; ok {
		return canonical
	}
	return label
}

// Resolve runs ex and never fails: errors and empty results degrade to the neutral signal.
// The second return value reports whether a degradation happened.
func Resolve(ctx context.Context, ex Extractor, text string) (types.Signal, bool) {
	if ex == nil {
		return types.NeutralSignal(), false
	}
	sig, err := ex.Classify(ctx, text)
	if err != nil {
		slog.Warn("signal extraction failed, using neutral defaults", "error", err.Error())
		return types.NeutralSignal(), true
	}
	if sig.Empty() {
		slog.Warn("signal extraction returned nothing, using neutral defaults")
		return types.NeutralSignal(), true
	}
	return sanitize(sig), false
}

func sanitize(sig types.Signal) types.Signal {
	sig.Emotion = NormalizeEmotion(sig.Emotion)
	if math.IsNaN(sig.Intensity) || sig.Intensity < 0 {
		sig.Intensity = 0
	}
	if sig.Intensity > 1 {
		sig.Intensity = 1
	}
	switch sig.Intent {
	case types.IntentProductive, types.IntentAvoidant, types.IntentRecreational, types.IntentUnknown:
	default:
		sig.Intent = types.IntentUnknown
	}
	sig.TopicTags = cleanTags(sig.TopicTags)
	return sig
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
