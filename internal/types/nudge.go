package types

// Tone is a persuasive register the engine may adopt.
type Tone string

const (
	ToneSoft        Tone = "soft"
	ToneHard        Tone = "hard"
	ToneDark        Tone = "dark"
	ToneTeasing     Tone = "teasing"
	ToneExistential Tone = "existential"
)

// Tones lists every known tone in a stable order.
var Tones = []Tone{ToneSoft, ToneHard, ToneDark, ToneTeasing, ToneExistential}

// ParseTone returns the tone named by s, or false when s is unknown.
func ParseTone(s string) (Tone, bool) {
	for _, t := range Tones {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Reason explains how a turn's nudge decision terminated.
type Reason string

const (
	ReasonResistanceRetreat Reason = "resistance_retreat"
	ReasonDeescalated       Reason = "deescalated"
	ReasonSafeSpace         Reason = "safe_space"
	ReasonCooldown          Reason = "cooldown"
	ReasonTaskNudge         Reason = "task_nudge"
	ReasonTactic            Reason = "tactic"
)

// NudgeOutcome is the engine's decision for one turn. It is never persisted.
type NudgeOutcome struct {
	Tone       Tone   `json:"tone,omitempty"`
	Text       string `json:"tactic_text,omitempty"`
	Suppressed bool   `json:"suppressed"`
	Reason     Reason `json:"reason"`
}

// Emitted reports whether the outcome carries text for the user.
func (o NudgeOutcome) Emitted() bool {
	return !o.Suppressed && o.Text != ""
}
