package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/easeaico/project-nudge/internal/types"
)

// Draft is a message about to be recorded.
type Draft struct {
	UserID        string
	Content       string
	Sender        types.Sender
	Signal        types.Signal
	TaskReference string
	ReplyToID     string
	Embedding     []float32
	// Timestamp defaults to the service clock.
	Timestamp time.Time
}

// Recorded is the stored entry plus the user's entries that preceded it, oldest first.
type Recorded struct {
	Entry   types.MemoryEntry
	History []types.MemoryEntry
}

// Service scores and records entries.
type Service struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewService returns a Service writing to store.
func NewService(store Store) *Service {
	return &Service{
		store:   store,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

func (s *Service) newID(ts time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), s.entropy).String()
}

// Record scores d against the user's history and appends it. Salience and repetition are fixed
// here and never recomputed.
func (s *Service) Record(ctx context.Context, d Draft) (Recorded, error) {
	if strings.TrimSpace(d.UserID) == "" {
		return Recorded{}, fmt.Errorf("user id is required")
	}
	if !d.Sender.Valid() {
		return Recorded{}, fmt.Errorf("invalid sender %q", d.Sender)
	}

	history, err := s.store.ListByUser(ctx, d.UserID)
	if err != nil {
		return Recorded{}, fmt.Errorf("failed to list memories: %w", err)
	}

	ts := d.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	repetition := 0.0
	if d.Sender == types.SenderUser {
		repetition = RepetitionScore(s.countDuplicates(ctx, d, history))
	}

	entry := types.MemoryEntry{
		ID:                 s.newID(ts),
		UserID:             d.UserID,
		Content:            d.Content,
		Sender:             d.Sender,
		Timestamp:          ts,
		Emotion:            d.Signal.Emotion,
		EmotionalIntensity: d.Signal.Intensity,
		Salience:           ComputeSalience(d.Content, d.Signal.Intensity, d.Signal.TopicTags),
		RepetitionScore:    repetition,
		TopicTags:          append([]string(nil), d.Signal.TopicTags...),
		TaskReference:      d.TaskReference,
		ReplyToID:          d.ReplyToID,
		Embedding:          d.Embedding,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return Recorded{}, fmt.Errorf("failed to append memory: %w", err)
	}
	return Recorded{Entry: entry, History: history}, nil
}

func (s *Service) countDuplicates(ctx context.Context, d Draft, history []types.MemoryEntry) int {
	count := CountNearDuplicates(d.Content, d.Embedding, history)
	counter, ok := s.store.(SimilarityCounter)
	if !ok || len(d.Embedding) == 0 {
		return count
	}
	vec, err := counter.CountSimilar(ctx, d.UserID, d.Embedding, CosineThreshold)
	if err != nil {
		slog.Warn("vector similarity count failed", "user_id", d.UserID, "error", err.Error())
		return count
	}
	return max(count, vec)
}

// Edit replaces the text of an entry in place.
func (s *Service) Edit(ctx context.Context, id, content string) (types.MemoryEntry, error) {
	if err := s.store.UpdateContent(ctx, id, content); err != nil {
		return types.MemoryEntry{}, err
	}
	return s.store.Get(ctx, id)
}

// Delete erases a single entry.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Erase removes every entry of the user.
func (s *Service) Erase(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to erase memories: %w", err)
	}
	return nil
}
