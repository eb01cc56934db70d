// Package pipeline runs one conversational turn through the signal extractor, memory, behavior
// analyzer, nudge engine and score calculator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/easeaico/project-nudge/internal/behavior"
	"github.com/easeaico/project-nudge/internal/memory"
	"github.com/easeaico/project-nudge/internal/nudge"
	"github.com/easeaico/project-nudge/internal/scoring"
	"github.com/easeaico/project-nudge/internal/signal"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
	"github.com/easeaico/project-nudge/internal/userlock"
)

// ErrTransient is returned when a turn kept conflicting with concurrent writers. The nudge
// decision for the turn is skipped and the caller may retry.
var ErrTransient = errors.New("pipeline: transient conflict, retry later")

// ErrInvalidInput is returned for requests missing a user id or message.
var ErrInvalidInput = errors.New("pipeline: invalid input")

// Degradation components reported per turn.
const (
	ComponentClassifier = "classifier"
	ComponentEmbedder   = "embedder"
	ComponentGenerator  = "generator"
)

// Recorder receives per-turn observations.
type Recorder interface {
	ObserveTurn(res Result)
	ObserveDegradation(component string)
	ObserveConflictRetry()
}

type nopRecorder struct{}

func (nopRecorder) ObserveTurn(Result)        {}
func (nopRecorder) ObserveDegradation(string) {}
func (nopRecorder) ObserveConflictRetry()     {}

// Config tunes the pipeline.
type Config struct {
	// ContextLimit caps the ranked entries returned with a turn.
	ContextLimit int
	// RecentMessages is how many of the latest user messages feed mode inference.
	RecentMessages int
	// ConflictTries bounds the attempts of each ledger-writing step.
	ConflictTries uint
	// ConflictBackoff is the first retry delay.
	ConflictBackoff time.Duration
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		ContextLimit:    10,
		RecentMessages:  5,
		ConflictTries:   3,
		ConflictBackoff: 20 * time.Millisecond,
	}
}

// Deps are the collaborators of a Pipeline. Extractor, Embedder and Recorder are optional.
type Deps struct {
	Memory    *memory.Service
	Ledger    traits.Ledger
	Analyzer  *behavior.Analyzer
	Ranker    *memory.Ranker
	Engine    *nudge.Engine
	Extractor signal.Extractor
	Embedder  memory.Embedder
	Locker    userlock.Locker
	Recorder  Recorder
}

// Pipeline orchestrates turns. It is safe for concurrent use; turns of the same user are
// serialized by the Locker.
type Pipeline struct {
	memory    *memory.Service
	ledger    traits.Ledger
	analyzer  *behavior.Analyzer
	ranker    *memory.Ranker
	engine    *nudge.Engine
	extractor signal.Extractor
	embedder  memory.Embedder
	locker    userlock.Locker
	recorder  Recorder
	cfg       Config
}

// New validates deps and returns a Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Memory == nil:
		return nil, errors.New("memory service is required")
	case deps.Ledger == nil:
		return nil, errors.New("trait ledger is required")
	case deps.Analyzer == nil:
		return nil, errors.New("behavior analyzer is required")
	case deps.Ranker == nil:
		return nil, errors.New("relevance ranker is required")
	case deps.Engine == nil:
		return nil, errors.New("nudge engine is required")
	}
	if deps.Locker == nil {
		deps.Locker = userlock.NewLocal()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	def := DefaultConfig()
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = def.ContextLimit
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = def.RecentMessages
	}
	if cfg.ConflictTries == 0 {
		cfg.ConflictTries = def.ConflictTries
	}
	if cfg.ConflictBackoff <= 0 {
		cfg.ConflictBackoff = def.ConflictBackoff
	}
	return &Pipeline{
		memory:    deps.Memory,
		ledger:    deps.Ledger,
		analyzer:  deps.Analyzer,
		ranker:    deps.Ranker,
		engine:    deps.Engine,
		extractor: deps.Extractor,
		embedder:  deps.Embedder,
		locker:    deps.Locker,
		recorder:  deps.Recorder,
		cfg:       cfg,
	}, nil
}

// Result is the output bundle of a turn.
type Result struct {
	UserID    string                    `json:"user_id"`
	EntryID   string                    `json:"entry_id"`
	Flags     []string                  `json:"flags"`
	Signal    types.Signal              `json:"signal"`
	Outcome   types.NudgeOutcome        `json:"outcome"`
	Tactic    *string                   `json:"tactic"`
	Score     int                       `json:"score"`
	Breakdown scoring.Breakdown         `json:"score_breakdown"`
	Mode      behavior.ConversationMode `json:"conversation_mode"`
	TaskLike  bool                      `json:"task_like"`
	Context   []types.RankedEntry       `json:"context"`
	Degraded  []string                  `json:"degraded,omitempty"`
}

type enrichment struct {
	signal    types.Signal
	embedding []float32
	degraded  []string
}

// Turn processes one user message. Classification and embedding run before the per-user lock;
// everything that reads or writes the user's state runs under it.
func (p *Pipeline) Turn(ctx context.Context, userID, message string) (Result, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(message) == "" {
		return Result{}, fmt.Errorf("%w: user id and message are required", ErrInvalidInput)
	}

	enr := p.enrich(ctx, message)
	for _, component := range enr.degraded {
		p.recorder.ObserveDegradation(component)
	}

	release, err := p.locker.Lock(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to lock user: %w", err)
	}
	defer release()

	res, err := p.decide(ctx, userID, message, enr)
	if err != nil {
		return Result{}, err
	}

	slog.Info("turn decided",
		"user_id", userID,
		"entry_id", res.EntryID,
		"flags", res.Flags,
		"emotion", res.Signal.Emotion,
		"tone", res.Outcome.Tone,
		"reason", res.Outcome.Reason,
		"suppressed", res.Outcome.Suppressed,
		"score", res.Score,
		"degraded", res.Degraded,
	)
	p.recorder.ObserveTurn(res)
	return res, nil
}

func (p *Pipeline) enrich(ctx context.Context, message string) enrichment {
	var (
		enr                  enrichment
		sigDegraded, embFail bool
	)
	var g errgroup.Group
	g.Go(func() error {
		enr.signal, sigDegraded = signal.Resolve(ctx, p.extractor, message)
		return nil
	})
	if p.embedder != nil {
		g.Go(func() error {
			vec, err := p.embedder.Embed(ctx, message)
			if err != nil {
				slog.Warn("embedding failed, continuing without vector", "error", err.Error())
				embFail = true
				return nil
			}
			enr.embedding = vec
			return nil
		})
	}
	_ = g.Wait()

	if sigDegraded {
		enr.degraded = append(enr.degraded, ComponentClassifier)
	}
	if embFail {
		enr.degraded = append(enr.degraded, ComponentEmbedder)
	}
	return enr
}

func (p *Pipeline) decide(ctx context.Context, userID, message string, enr enrichment) (Result, error) {
	set := p.analyzer.Patterns()
	task, _ := behavior.ExtractTask(set, message)

	rec, err := p.memory.Record(ctx, memory.Draft{
		UserID:        userID,
		Content:       message,
		Sender:        types.SenderUser,
		Signal:        enr.signal,
		TaskReference: task,
		Embedding:     enr.embedding,
	})
	if err != nil {
		return Result{}, err
	}

	analysis, err := retryConflict(ctx, p, func() (behavior.Result, error) {
		return p.analyzer.Analyze(ctx, userID, message)
	})
	if err != nil {
		return Result{}, err
	}

	recent := recentUserMessages(rec.History, message, p.cfg.RecentMessages)
	mode, err := retryConflict(ctx, p, func() (behavior.ConversationMode, error) {
		return p.analyzer.Observe(ctx, userID, message, enr.signal.TopicTags, recent)
	})
	if err != nil {
		return Result{}, err
	}

	ranked, err := p.ranker.Rank(ctx, userID, p.cfg.ContextLimit)
	if err != nil {
		return Result{}, err
	}

	outcome, err := retryConflict(ctx, p, func() (types.NudgeOutcome, error) {
		return p.engine.Decide(ctx, nudge.Input{
			UserID:   userID,
			Message:  message,
			Emotion:  enr.signal.Emotion,
			Flags:    analysis.Flags,
			TaskLike: analysis.TaskLike,
			History:  rec.History,
		})
	})
	if err != nil {
		return Result{}, err
	}

	tr, err := p.ledger.Read(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read traits: %w", err)
	}
	breakdown := scoring.Explain(map[string]float64{enr.signal.Emotion: enr.signal.Intensity}, analysis.Flags, tr)

	res := Result{
		UserID:    userID,
		EntryID:   rec.Entry.ID,
		Flags:     analysis.Flags,
		Signal:    enr.signal,
		Outcome:   outcome,
		Score:     breakdown.Score,
		Breakdown: breakdown,
		Mode:      mode,
		TaskLike:  analysis.TaskLike,
		Context:   ranked,
		Degraded:  enr.degraded,
	}
	if res.Flags == nil {
		res.Flags = []string{}
	}
	if outcome.Emitted() {
		text := outcome.Text
		res.Tactic = &text
	}
	return res, nil
}

// retryConflict reruns op while it fails with traits.ErrConflict. Each op re-reads the ledger, so
// a rerun applies its mutation to fresh state.
func retryConflict[T any](ctx context.Context, p *Pipeline, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.ConflictBackoff

	attempt := 0
	out, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 {
			p.recorder.ObserveConflictRetry()
		}
		v, err := op()
		if err != nil && !errors.Is(err, traits.ErrConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.cfg.ConflictTries))
	if err != nil {
		var zero T
		if errors.Is(err, traits.ErrConflict) {
			return zero, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return zero, err
	}
	return out, nil
}

func recentUserMessages(history []types.MemoryEntry, current string, limit int) []string {
	var msgs []string
	for i := len(history) - 1; i >= 0 && len(msgs) < limit-1; i-- {
		if history[i].Sender == types.SenderUser {
			msgs = append(msgs, history[i].Content)
		}
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return append(msgs, current)
}
