// Package memory records interaction entries and ranks them by decayed relevance.
package memory

import (
	"context"
	"errors"

	"github.com/easeaico/project-nudge/internal/types"
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("memory entry not found")

// Store persists memory entries. Entries are never expired; they leave only through Delete
// or DeleteUser.
type Store interface {
	Append(ctx context.Context, entry types.MemoryEntry) error
	// ListByUser returns the user's entries oldest first.
	ListByUser(ctx context.Context, userID string) ([]types.MemoryEntry, error)
	Get(ctx context.Context, id string) (types.MemoryEntry, error)
	// UpdateContent replaces only the text of an entry; scores are left untouched.
	UpdateContent(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, userID string) error
}

// SimilarityCounter is implemented by stores that can count near-duplicate user messages by
// vector similarity themselves.
type SimilarityCounter interface {
	CountSimilar(ctx context.Context, userID string, embedding []float32, threshold float64) (int, error)
}
