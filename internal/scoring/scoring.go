// Package scoring computes a 1-5 nudging urgency score for observability. The nudge engine
// never reads it; the two models are tuned and compared independently.
package scoring

import (
	"math"
	"strings"

	"github.com/easeaico/project-nudge/internal/traits"
)

// ExcuseWeight is shared by every excuse:<slug> flag. A turn pays it at most once.
const ExcuseWeight = 1.1

// UnknownFlagWeight applies to flags missing from FlagWeights.
const UnknownFlagWeight = 0.8

// EmotionWeights scale the intensity of each emotion. Negative weights lower the score.
var EmotionWeights = map[string]float64{
	"anxiety":      1.2,
	"guilt":        1.5,
	"shame":        1.5,
	"frustration":  1.3,
	"sadness":      1.1,
	"anger":        1.4,
	"hopelessness": 1.7,
	"avoidance":    1.3,
	"boredom":      0.9,
	"confidence":   -0.5,
	"motivation":   -1.0,
	"joy":          -0.5,
}

// FlagWeights weigh analyzer flags.
var FlagWeights = map[string]float64{
	"procrastination":        1.2,
	"resistance":             1.5,
	"avoidance":              1.3,
	"disengagement":          1.4,
	"feels_stuck":            1.3,
	"broke_promise":          1.2,
	"expresses_shame":        1.1,
	"expresses_hopelessness": 1.6,
	"feels_guilty":           1.0,
	"feels_overwhelmed":      1.1,
	"feels_worthless":        1.6,
}

// TraitWeights weigh numeric trait readings.
var TraitWeights = map[string]float64{
	"avoidant":                     1.2,
	"perfectionist":                1.1,
	"insecure":                     1.4,
	"self_critical":                1.3,
	traits.KeyProcrastinationLevel: 0.2,
}

// Breakdown itemizes a score.
type Breakdown struct {
	Score    int                `json:"score"`
	Raw      float64            `json:"raw"`
	Emotions map[string]float64 `json:"emotions"`
	Flags    map[string]float64 `json:"flags"`
	Traits   map[string]float64 `json:"traits"`
}

// Score returns the nudging score for one turn.
func Score(emotions map[string]float64, flags []string, tr traits.Traits) int {
	return Explain(emotions, flags, tr).Score
}

// Explain computes the score along with each non-zero contribution, rounded to two decimals.
func Explain(emotions map[string]float64, flags []string, tr traits.Traits) Breakdown {
	b := Breakdown{
		Emotions: make(map[string]float64),
		Flags:    make(map[string]float64),
		Traits:   make(map[string]float64),
	}

	for emotion, intensity := range emotions {
		w, ok := EmotionWeights[strings.ToLower(emotion)]
		if !ok || intensity == 0 {
			continue
		}
		v := w * intensity
		b.Emotions[emotion] = round2(v)
		b.Raw += v
	}

	excused := false
	for _, flag := range flags {
		if _, dup := b.Flags[flag]; dup {
			continue
		}
		if strings.HasPrefix(flag, "excuse:") {
			if excused {
				b.Flags[flag] = 0
				continue
			}
			excused = true
			b.Flags[flag] = ExcuseWeight
			b.Raw += ExcuseWeight
			continue
		}
		w, ok := FlagWeights[flag]
		if !ok {
			w = UnknownFlagWeight
		}
		b.Flags[flag] = w
		b.Raw += w
	}

	for key, w := range TraitWeights {
		v := tr.Float(key)
		if v == 0 {
			continue
		}
		b.Traits[key] = round2(w * v)
		b.Raw += w * v
	}

	b.Raw = round2(b.Raw)
	b.Score = Band(b.Raw)
	return b
}

// Band maps a raw weighted sum onto the 1-5 scale.
func Band(raw float64) int {
	switch {
	case raw <= 2:
		return 1
	case raw <= 5:
		return 2
	case raw <= 8:
		return 3
	case raw <= 11:
		return 4
	default:
		return 5
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
