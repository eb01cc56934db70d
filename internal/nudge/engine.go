// Package nudge decides, once per user message, whether to push the user, in which tone and
// with which words.
package nudge

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/easeaico/project-nudge/internal/behavior"
	"github.com/easeaico/project-nudge/internal/patterns"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
)

// Defaults for Config.
const (
	DefaultCooldown        = 10 * time.Minute
	DefaultFatigueRecovery = 30 * time.Minute
	DefaultRetreatLimit    = 2
	DefaultDailyDarkCap    = 3
	DefaultFatigueLimit    = 3
)

const (
	shortInputWords  = 6
	longTacticLength = 60
)

// Config holds the engine thresholds.
type Config struct {
	Cooldown        time.Duration
	FatigueRecovery time.Duration
	RetreatLimit    int
	DailyDarkCap    int
	FatigueLimit    int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Cooldown:        DefaultCooldown,
		FatigueRecovery: DefaultFatigueRecovery,
		RetreatLimit:    DefaultRetreatLimit,
		DailyDarkCap:    DefaultDailyDarkCap,
		FatigueLimit:    DefaultFatigueLimit,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.FatigueRecovery <= 0 {
		c.FatigueRecovery = d.FatigueRecovery
	}
	if c.RetreatLimit <= 0 {
		c.RetreatLimit = d.RetreatLimit
	}
	if c.DailyDarkCap <= 0 {
		c.DailyDarkCap = d.DailyDarkCap
	}
	if c.FatigueLimit <= 0 {
		c.FatigueLimit = d.FatigueLimit
	}
	return c
}

// Input is everything the engine needs about the current turn besides the ledger.
type Input struct {
	UserID  string
	Message string
	Emotion string
	Flags   []string
	// TaskLike reports whether the current message matches the task lexicon.
	TaskLike bool
	// History holds the user's entries before the current message, oldest first.
	History []types.MemoryEntry
}

func (in Input) hasFlag(flag string) bool {
	for _, f := range in.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPicker replaces the random tactic picker. pick(n) must return a value in [0,n).
func WithPicker(pick func(n int) int) Option {
	return func(e *Engine) {
		e.pick = pick
	}
}

// Engine runs the gate sequence. It keeps no per-user state; everything persists through the
// ledger.
type Engine struct {
	ledger   traits.Ledger
	patterns patterns.Provider
	cfg      Config
	now      func() time.Time
	pick     func(n int) int
}

// NewEngine returns an Engine.
func NewEngine(ledger traits.Ledger, provider patterns.Provider, cfg Config, opts ...Option) *Engine {
	if provider == nil {
		provider = patterns.NewStatic(nil)
	}
	e := &Engine{
		ledger:   ledger,
		patterns: provider,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		pick:     rand.IntN,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide evaluates the gates in order; the first one that exits decides the turn:
// resistance, safe space, cooldown, avoided task, then the tone ladder with the daily dark cap.
// Emitted nudges are tracked in a single ledger merge, which is skipped if ctx is already done.
func (e *Engine) Decide(ctx context.Context, in Input) (types.NudgeOutcome, error) {
	set := e.patterns.Current()
	now := e.now()

	tr, err := e.ledger.Read(ctx, in.UserID)
	if err != nil {
		return types.NudgeOutcome{}, fmt.Errorf("failed to read traits: %w", err)
	}

	// The analyzer has already counted this retreat.
	if in.hasFlag(behavior.FlagResistance) {
		if tr.Int(traits.KeyRetreatCount) >= e.cfg.RetreatLimit {
			return suppressed(types.ReasonResistanceRetreat), nil
		}
		return types.NudgeOutcome{Text: set.Deescalation, Reason: types.ReasonDeescalated}, nil
	}

	if tr.Bool(traits.KeySafeSpaceMode) {
		return suppressed(types.ReasonSafeSpace), nil
	}

	last := tr.Time(traits.KeyLastNudgeTime)
	if !last.IsZero() && now.Sub(last) < e.cfg.Cooldown {
		return suppressed(types.ReasonCooldown), nil
	}

	if in.TaskLike {
		if tasks := FindAvoidedTasks(set, in.History, now); len(tasks) > 0 {
			top := tasks[0]
			text, err := set.TaskNudge(top.Tier(), patterns.TaskNudgeData{
				Task:         top.Task,
				DaysInactive: top.DaysInactive,
				Urgency:      top.Urgency,
			})
			if err != nil {
				return types.NudgeOutcome{}, err
			}
			out := types.NudgeOutcome{Text: text, Reason: types.ReasonTaskNudge}
			if err := e.track(ctx, in.UserID, tr, "", now); err != nil {
				return types.NudgeOutcome{}, err
			}
			return out, nil
		}
	}

	fatigue := EffectiveFatigue(tr, now, e.cfg.FatigueRecovery)
	tone := e.selectTone(in, tr, fatigue)
	if tone == types.ToneDark && tr.Int(traits.DailyDarkKey(now)) >= e.cfg.DailyDarkCap {
		tone = types.ToneHard
	}

	text := e.tactic(set, tone, in.Message)
	if err := e.track(ctx, in.UserID, tr, tone, now); err != nil {
		return types.NudgeOutcome{}, err
	}
	return types.NudgeOutcome{Tone: tone, Text: text, Reason: types.ReasonTactic}, nil
}

// EffectiveFatigue is the fatigue level that applies at now: it is zero once the user has gone
// longer than the recovery window without a nudge.
func EffectiveFatigue(tr traits.Traits, now time.Time, recovery time.Duration) int {
	last := tr.Time(traits.KeyLastNudgeTime)
	if !last.IsZero() && now.Sub(last) > recovery {
		return 0
	}
	return tr.Int(traits.KeyNudgeFatigue)
}

var darkFlags = []string{"expresses_shame", "broke_promise", "expresses_hopelessness", "feels_guilty"}

func (e *Engine) selectTone(in Input, tr traits.Traits, fatigue int) types.Tone {
	if fatigue >= e.cfg.FatigueLimit {
		return types.ToneSoft
	}
	switch in.Emotion {
	case "sadness", "anxiety", "fear", "grief":
		return types.ToneSoft
	case "anger", "frustration":
		return types.ToneHard
	case "neutral", "boredom":
		if in.hasFlag(behavior.FlagProcrastination) {
			return types.ToneTeasing
		}
	case "guilt", "shame", "hopelessness":
		return types.ToneDark
	}
	for _, flag := range darkFlags {
		if in.hasFlag(flag) {
			return types.ToneDark
		}
	}
	if tone, ok := types.ParseTone(tr.String(traits.KeyPreferredTone)); ok {
		return tone
	}
	return types.ToneSoft
}

func (e *Engine) tactic(set *patterns.Set, tone types.Tone, message string) string {
	pool := set.Tactics[tone]
	if len(pool) == 0 {
		return ""
	}
	text := pool[e.pick(len(pool))]
	if len(strings.Fields(message)) <= shortInputWords && utf8.RuneCountInString(text) > longTacticLength {
		text = FirstSentence(text)
	}
	return text
}

// FirstSentence returns text up to and including the first sentence terminator that is followed
// by whitespace or the end of the text.
func FirstSentence(text string) string {
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(text) {
			return text
		}
		if c := text[next]; c == ' ' || c == '\n' || c == '\t' {
			return text[:next]
		}
	}
	return text
}

// track is the commit point of an emitted nudge.
func (e *Engine) track(ctx context.Context, userID string, tr traits.Traits, tone types.Tone, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("turn aborted before tracking: %w", err)
	}

	fatigue := tr.Int(traits.KeyNudgeFatigue)
	if last := tr.Time(traits.KeyLastNudgeTime); !last.IsZero() && now.Sub(last) > e.cfg.FatigueRecovery {
		fatigue = 0
	}
	updates := map[string]any{
		traits.KeyNudgeFatigue:  fatigue + 1,
		traits.KeyLastNudgeTime: now,
	}
	if tone == types.ToneDark {
		key := traits.DailyDarkKey(now)
		updates[key] = tr.Int(key) + 1
	}
	if err := e.ledger.Merge(ctx, userID, updates); err != nil {
		return fmt.Errorf("failed to track nudge: %w", err)
	}
	slog.Debug("nudge tracked", "user_id", userID, "tone", tone, "fatigue", fatigue+1)
	return nil
}

func suppressed(reason types.Reason) types.NudgeOutcome {
	return types.NudgeOutcome{Suppressed: true, Reason: reason}
}
