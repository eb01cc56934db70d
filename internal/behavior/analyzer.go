// Package behavior detects excuses, procrastination, emotional distress and resistance in user
// messages and folds them into the trait ledger.
package behavior

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easeaico/project-nudge/internal/patterns"
	"github.com/easeaico/project-nudge/internal/traits"
)

// Flag names emitted by the analyzer. Excuse flags are ExcusePrefix followed by the phrase slug.
const (
	FlagProcrastination = "procrastination"
	FlagResistance      = "resistance"
	ExcusePrefix        = "excuse:"
)

// Matches is what the pattern tables found in one message. It carries no ledger state.
type Matches struct {
	Excuses         []patterns.Phrase
	Procrastination bool
	Emotional       []string
	Resistance      bool
	TaskLike        bool
	Task            string
}

// Flags lists the emitted flags in their fixed order: excuses, procrastination, emotional
// phrases, resistance.
func (m Matches) Flags() []string {
	flags := make([]string, 0, len(m.Excuses)+len(m.Emotional)+2)
	for _, p := range m.Excuses {
		flags = append(flags, ExcusePrefix+p.Slug())
	}
	if m.Procrastination {
		flags = append(flags, FlagProcrastination)
	}
	flags = append(flags, m.Emotional...)
	if m.Resistance {
		flags = append(flags, FlagResistance)
	}
	return flags
}

func (m Matches) mutates() bool {
	return len(m.Excuses) > 0 || m.Procrastination || len(m.Emotional) > 0 || m.Resistance
}

// Match runs the pattern tables over message.
func Match(set *patterns.Set, message string) Matches {
	text := patterns.NormalizeText(message)
	var m Matches

	for _, p := range set.Excuses {
		if p.Match(text) {
			m.Excuses = append(m.Excuses, p)
		}
	}

	// Only the first deferral pattern counts.
	for _, re := range set.Procrastination {
		if re.MatchString(text) {
			m.Procrastination = true
			break
		}
	}

	seen := make(map[string]struct{})
	for _, e := range set.Emotional {
		if _, dup := seen[e.Flag]; dup {
			continue
		}
		if e.Match(text) {
			seen[e.Flag] = struct{}{}
			m.Emotional = append(m.Emotional, e.Flag)
		}
	}

	for _, p := range set.Resistance {
		if p.Match(text) {
			m.Resistance = true
			break
		}
	}

	m.Task, m.TaskLike = ExtractTask(set, message)
	return m
}

// Result is the outcome of analyzing one message.
type Result struct {
	Matches
	Flags []string
	// RetreatCount is the value of retreat_count after this message was applied.
	RetreatCount int
}

// HasFlag reports whether flag was emitted.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Analyzer applies pattern matches to the trait ledger.
type Analyzer struct {
	ledger   traits.Ledger
	patterns patterns.Provider
}

// NewAnalyzer returns an Analyzer.
func NewAnalyzer(ledger traits.Ledger, provider patterns.Provider) *Analyzer {
	if provider == nil {
		provider = patterns.NewStatic(nil)
	}
	return &Analyzer{ledger: ledger, patterns: provider}
}

// Patterns returns the tables currently in effect.
func (a *Analyzer) Patterns() *patterns.Set {
	return a.patterns.Current()
}

// Analyze flags message and writes the resulting trait mutations before returning.
func (a *Analyzer) Analyze(ctx context.Context, userID, message string) (Result, error) {
	m := Match(a.patterns.Current(), message)
	res := Result{Matches: m, Flags: m.Flags()}

	current, err := a.ledger.Read(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read traits: %w", err)
	}
	res.RetreatCount = current.Int(traits.KeyRetreatCount)
	if !m.mutates() {
		return res, nil
	}

	if len(m.Excuses) > 0 {
		phrases := make([]string, 0, len(m.Excuses))
		for _, p := range m.Excuses {
			phrases = append(phrases, p.Text)
		}
		if err := a.ledger.Union(ctx, userID, traits.KeyCommonExcuses, phrases...); err != nil {
			return Result{}, fmt.Errorf("failed to record excuses: %w", err)
		}
	}

	updates := make(map[string]any)
	if m.Procrastination {
		updates[traits.KeyProcrastinationLevel] = current.Int(traits.KeyProcrastinationLevel) + 1
	}
	for _, flag := range m.Emotional {
		updates[flag] = true
	}
	if m.Resistance {
		res.RetreatCount++
		updates[traits.KeyRetreatCount] = res.RetreatCount
	}
	if len(updates) > 0 {
		if err := a.ledger.Merge(ctx, userID, updates); err != nil {
			return Result{}, fmt.Errorf("failed to update traits: %w", err)
		}
	}

	slog.Debug("behavior analyzed", "user_id", userID, "flags", res.Flags, "retreat_count", res.RetreatCount)
	return res, nil
}
