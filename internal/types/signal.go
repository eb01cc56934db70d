package types

// Intent is the coarse purpose the classifier assigns to a message.
type Intent string

const (
	IntentUnknown      Intent = "unknown"
	IntentProductive   Intent = "productive"
	IntentAvoidant     Intent = "avoidant"
	IntentRecreational Intent = "recreational"
)

// Signal is the classifier output for one message.
type Signal struct {
	Emotion   string   `json:"emotion"`
	Intensity float64  `json:"intensity"`
	TopicTags []string `json:"topic_tags"`
	Intent    Intent   `json:"intent"`
}

// NeutralSignal is used whenever classification fails or returns nothing.
func NeutralSignal() Signal {
	return Signal{
		Emotion:   "neutral",
		Intensity: 0.3,
		TopicTags: []string{},
		Intent:    IntentUnknown,
	}
}

// Empty reports whether the signal carries no usable classification.
func (s Signal) Empty() bool {
	return s.Emotion == "" && s.Intensity == 0 && len(s.TopicTags) == 0 && s.Intent == ""
}
