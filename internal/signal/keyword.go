package signal

import (
	"context"
	"regexp"
	"strings"

	"github.com/easeaico/project-nudge/internal/types"
)

type keywordClass struct {
	label    string
	keywords []string
	re       *regexp.Regexp
}

// Emotion classes are checked in order; the first hit wins, so heavier states come first.
var emotionClasses = compileClasses([]keywordClass{
	{label: "hopelessness", keywords: []string{"hopeless", "pointless", "give up", "giving up", "no point"}},
	{label: "shame", keywords: []string{"ashamed", "shame", "embarrassed", "humiliated"}},
	{label: "guilt", keywords: []string{"guilty", "guilt", "my fault"}},
	{label: "grief", keywords: []string{"grieving", "grief", "passed away", "mourning"}},
	{label: "anger", keywords: []string{"angry", "mad", "furious", "pissed", "annoyed"}},
	{label: "frustration", keywords: []string{"frustrated", "frustrating", "fed up"}},
	{label: "anxiety", keywords: []string{"anxious", "worried", "stressed", "nervous", "panicking"}},
	{label: "fear", keywords: []string{"scared", "afraid", "terrified", "fear"}},
	{label: "sadness", keywords: []string{"sad", "depressed", "down", "lonely", "miserable"}},
	{label: "boredom", keywords: []string{"bored", "boring", "meh"}},
	{label: "motivation", keywords: []string{"motivated", "energized", "hyped", "pumped"}},
	{label: "confidence", keywords: []string{"confident", "i got this", "i can do this"}},
	{label: "joy", keywords: []string{"great", "happy", "awesome", "excited", "joyful", "love"}},
})

var intentClasses = compileClasses([]keywordClass{
	{label: string(types.IntentAvoidant), keywords: []string{"procrastinate", "delay", "skip", "avoid", "postpone", "later"}},
	{label: string(types.IntentProductive), keywords: []string{"finish", "complete", "get done", "start working", "focus", "work", "study", "grind", "create"}},
	{label: string(types.IntentRecreational), keywords: []string{"chill", "relax", "watch", "game", "movie", "binge", "vibe"}},
})

// Every matching topic is tagged, in table order.
var topicClasses = compileClasses([]keywordClass{
	{label: "health", keywords: []string{"gym", "workout", "diet", "fit", "exercise", "body"}},
	{label: "finance", keywords: []string{"money", "spend", "save", "income", "salary", "debt", "budget"}},
	{label: "career", keywords: []string{"project", "code", "app", "build", "website", "startup", "feature", "job"}},
	{label: "relationship", keywords: []string{"relationship", "crush", "heart", "feelings", "partner"}},
	{label: "education", keywords: []string{"study", "exam", "college", "test", "assignment", "homework"}},
})

var emotionIntensity = map[string]float64{
	"joy":          0.9,
	"anger":        0.9,
	"sadness":      0.8,
	"hopelessness": 0.8,
	"grief":        0.8,
	"fear":         0.7,
	"anxiety":      0.7,
	"shame":        0.7,
	"guilt":        0.7,
	"frustration":  0.7,
	"disgust":      0.6,
	"surprise":     0.6,
	"motivation":   0.6,
	"confidence":   0.5,
	"boredom":      0.4,
	"neutral":      0.3,
	"unknown":      0.2,
}

const defaultIntensity = 0.4

// IntensityFor returns the fixed intensity the keyword classifier assigns to emotion.
func IntensityFor(emotion string) float64 {
	if v, ok := emotionIntensity[NormalizeEmotion(emotion)]; ok {
		return v
	}
	return defaultIntensity
}

// KeywordExtractor is a deterministic lexicon classifier. It is the default when no model is
// configured and the classifier used in tests.
type KeywordExtractor struct{}

// NewKeywordExtractor returns a KeywordExtractor.
func NewKeywordExtractor() KeywordExtractor {
	return KeywordExtractor{}
}

func (KeywordExtractor) Classify(_ context.Context, text string) (types.Signal, error) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return types.NeutralSignal(), nil
	}

	emotion := "neutral"
	if label, ok := firstMatch(emotionClasses, lower); ok {
		emotion = label
	}
	intent := types.IntentUnknown
	if label, ok := firstMatch(intentClasses, lower); ok {
		intent = types.Intent(label)
	}
	tags := []string{}
	for _, class := range topicClasses {
		if class.re.MatchString(lower) {
			tags = append(tags, class.label)
		}
	}

	return types.Signal{
		Emotion:   emotion,
		Intensity: IntensityFor(emotion),
		TopicTags: tags,
		Intent:    intent,
	}, nil
}

func firstMatch(classes []keywordClass, text string) (string, bool) {
	for _, class := range classes {
		if class.re.MatchString(text) {
			return class.label, true
		}
	}
	return "", false
}

// inflections lets a keyword match its common derived forms ("hopelessness", "fearful")
// without firing inside unrelated words ("made" for "mad").
const inflections = `(?:ness|ful|ly|ed|ing|es|s|y)?`

func compileClasses(classes []keywordClass) []keywordClass {
	for i := range classes {
		quoted := make([]string, 0, len(classes[i].keywords))
		for _, kw := range classes[i].keywords {
			quoted = append(quoted, regexp.QuoteMeta(kw))
		}
		classes[i].re = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)` + inflections + `\b`)
	}
	return classes
}
