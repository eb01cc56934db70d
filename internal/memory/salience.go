package memory

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/easeaico/project-nudge/internal/types"
)

const (
	repetitionSaturation = 5
	jaccardThreshold     = 0.8
	// CosineThreshold is the embedding similarity above which two messages count as repeats.
	CosineThreshold = 0.92
)

// ComputeSalience scores how memorable a message is from its length, emotional intensity and
// topical richness. The result is unbounded above.
func ComputeSalience(content string, intensity float64, topicTags []string) float64 {
	score := float64(utf8.RuneCountInString(content))/50 + intensity*2 + 0.2*float64(len(topicTags))
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	return score
}

// RepetitionScore saturates at 1 once a message has been repeated five times.
func RepetitionScore(duplicates int) float64 {
	if duplicates <= 0 {
		return 0
	}
	return math.Min(float64(duplicates)/repetitionSaturation, 1)
}

// CountNearDuplicates counts past user messages that repeat content, either textually or, when
// both sides carry embeddings, semantically.
func CountNearDuplicates(content string, embedding []float32, history []types.MemoryEntry) int {
	norm := normalizeMessage(content)
	tokens := tokenSet(norm)
	count := 0
	for _, past := range history {
		if past.Sender != types.SenderUser {
			continue
		}
		if isNearDuplicate(norm, tokens, embedding, past) {
			count++
		}
	}
	return count
}

func isNearDuplicate(norm string, tokens map[string]struct{}, embedding []float32, past types.MemoryEntry) bool {
	pastNorm := normalizeMessage(past.Content)
	if norm != "" && norm == pastNorm {
		return true
	}
	if jaccard(tokens, tokenSet(pastNorm)) >= jaccardThreshold {
		return true
	}
	if len(embedding) > 0 && len(embedding) == len(past.Embedding) {
		return cosine(embedding, past.Embedding) >= CosineThreshold
	}
	return false
}

func normalizeMessage(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '\'' {
			return r
		}
		if r == '’' {
			return '\''
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func tokenSet(norm string) map[string]struct{} {
	fields := strings.Fields(norm)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
