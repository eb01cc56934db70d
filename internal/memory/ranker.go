package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/easeaico/project-nudge/internal/types"
)

const (
	// DecayWindowDays is how long an entry takes to decay from full relevance to none.
	DecayWindowDays = 15
	// NoiseThreshold is the weight at or below which an entry is left out of context.
	NoiseThreshold = 0.25
)

// Decay returns the time attenuation of an entry written at ts, in [0,1]. A zero timestamp is
// treated as a full window old. Future timestamps do not boost relevance.
func Decay(ts, now time.Time, window float64) float64 {
	if window <= 0 {
		window = DecayWindowDays
	}
	days := window
	if !ts.IsZero() {
		days = now.Sub(ts).Hours() / 24
		if days < 0 {
			days = 0
		}
	}
	return math.Max(0, 1-days/window)
}

// Weight combines an entry's stored scores with its decay.
func Weight(entry types.MemoryEntry, decay float64) float64 {
	return (0.4*entry.Salience + 0.4*entry.EmotionalIntensity + 0.2*entry.RepetitionScore) * decay
}

// Rank orders entries by relevance at now, most relevant first, dropping noise. Ties go to the
// newer entry and then to the larger id so that the order is total.
func Rank(entries []types.MemoryEntry, now time.Time, window float64) []types.RankedEntry {
	ranked := make([]types.RankedEntry, 0, len(entries))
	for _, entry := range entries {
		decay := Decay(entry.Timestamp, now, window)
		weight := Weight(entry, decay)
		if weight <= NoiseThreshold {
			continue
		}
		ranked = append(ranked, types.RankedEntry{Entry: entry, Decay: decay, Weight: weight})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if !a.Entry.Timestamp.Equal(b.Entry.Timestamp) {
			return a.Entry.Timestamp.After(b.Entry.Timestamp)
		}
		return a.Entry.ID > b.Entry.ID
	})
	return ranked
}

// Ranker loads a user's entries and ranks them.
type Ranker struct {
	store  Store
	window float64
	now    func() time.Time
}

// NewRanker returns a Ranker. A non-positive window uses DecayWindowDays.
func NewRanker(store Store, windowDays float64) *Ranker {
	if windowDays <= 0 {
		windowDays = DecayWindowDays
	}
	return &Ranker{store: store, window: windowDays, now: time.Now}
}

// Window returns the decay window in days.
func (r *Ranker) Window() float64 {
	return r.window
}

// Rank returns up to limit of the user's most relevant entries. limit <= 0 returns all.
func (r *Ranker) Rank(ctx context.Context, userID string, limit int) ([]types.RankedEntry, error) {
	entries, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	ranked := Rank(entries, r.now(), r.window)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
