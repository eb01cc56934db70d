package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/easeaico/project-nudge/internal/memory"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
)

// ErrTraitNotWritable is returned when a caller tries to set a trait that only the engine owns.
var ErrTraitNotWritable = errors.New("trait is not writable")

// ErrInvalidTraitValue is returned when a writable trait receives a value of the wrong shape.
var ErrInvalidTraitValue = errors.New("invalid trait value")

// WritableTraits lists the keys callers may set directly.
var WritableTraits = []string{traits.KeyPreferredTone, traits.KeySafeSpaceMode, traits.KeyUserName}

// Context returns the user's ranked memories.
func (p *Pipeline) Context(ctx context.Context, userID string, limit int) ([]types.RankedEntry, error) {
	return p.ranker.Rank(ctx, userID, limit)
}

// Traits returns the user's trait ledger.
func (p *Pipeline) Traits(ctx context.Context, userID string) (traits.Traits, error) {
	return p.ledger.Read(ctx, userID)
}

// SetTrait writes one of WritableTraits after validating its value.
func (p *Pipeline) SetTrait(ctx context.Context, userID, key string, value any) error {
	v, err := coerceTrait(key, value)
	if err != nil {
		return err
	}
	return p.withUser(ctx, userID, func() error {
		if err := p.ledger.Update(ctx, userID, key, v); err != nil {
			return fmt.Errorf("failed to set trait: %w", err)
		}
		slog.Info("trait set", "user_id", userID, "key", key)
		return nil
	})
}

func coerceTrait(key string, value any) (any, error) {
	switch key {
	case traits.KeyPreferredTone:
		s, _ := value.(string)
		tone, ok := types.ParseTone(strings.ToLower(strings.TrimSpace(s)))
		if !ok {
			return nil, fmt.Errorf("%w: unknown tone %v", ErrInvalidTraitValue, value)
		}
		return string(tone), nil
	case traits.KeySafeSpaceMode:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidTraitValue, v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("%w: %v is not a boolean", ErrInvalidTraitValue, value)
	case traits.KeyUserName:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: name must be a non-empty string", ErrInvalidTraitValue)
		}
		return strings.TrimSpace(s), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrTraitNotWritable, key)
	}
}

// StartSession marks a session boundary, which forgives earlier retreats.
func (p *Pipeline) StartSession(ctx context.Context, userID string) error {
	return p.withUser(ctx, userID, func() error {
		if err := p.ledger.Reset(ctx, userID, traits.KeyRetreatCount); err != nil {
			return fmt.Errorf("failed to reset retreat count: %w", err)
		}
		slog.Info("session started", "user_id", userID)
		return nil
	})
}

// ResetUser erases every memory entry and trait of the user.
func (p *Pipeline) ResetUser(ctx context.Context, userID string) error {
	return p.withUser(ctx, userID, func() error {
		if err := p.memory.Erase(ctx, userID); err != nil {
			return err
		}
		if err := p.ledger.Reset(ctx, userID); err != nil {
			return fmt.Errorf("failed to reset traits: %w", err)
		}
		slog.Info("user reset", "user_id", userID)
		return nil
	})
}

// EditMemory replaces an entry's text; its scores are kept.
func (p *Pipeline) EditMemory(ctx context.Context, entryID, content string) (types.MemoryEntry, error) {
	if strings.TrimSpace(content) == "" {
		return types.MemoryEntry{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	owner, err := p.ownerOf(ctx, entryID)
	if err != nil {
		return types.MemoryEntry{}, err
	}
	var edited types.MemoryEntry
	err = p.withUser(ctx, owner, func() error {
		var err error
		edited, err = p.memory.Edit(ctx, entryID, content)
		return err
	})
	return edited, err
}

// DeleteMemory erases one entry.
func (p *Pipeline) DeleteMemory(ctx context.Context, entryID string) error {
	owner, err := p.ownerOf(ctx, entryID)
	if err != nil {
		return err
	}
	return p.withUser(ctx, owner, func() error {
		return p.memory.Delete(ctx, entryID)
	})
}

func (p *Pipeline) ownerOf(ctx context.Context, entryID string) (string, error) {
	entry, err := p.memory.Store().Get(ctx, entryID)
	if err != nil {
		return "", err
	}
	return entry.UserID, nil
}

// RecordReply stores the agent's reply to a user message.
func (p *Pipeline) RecordReply(ctx context.Context, userID, replyToID, text string) (types.MemoryEntry, error) {
	var entry types.MemoryEntry
	err := p.withUser(ctx, userID, func() error {
		rec, err := p.memory.Record(ctx, memory.Draft{
			UserID:    userID,
			Content:   text,
			Sender:    types.SenderAgent,
			Signal:    types.Signal{Emotion: "neutral"},
			ReplyToID: replyToID,
		})
		if err != nil {
			return err
		}
		entry = rec.Entry
		return nil
	})
	return entry, err
}

// ReportDegradation records a component failure that happened after the turn was decided.
func (p *Pipeline) ReportDegradation(component string) {
	p.recorder.ObserveDegradation(component)
}

// History returns the user's entries, oldest first.
func (p *Pipeline) History(ctx context.Context, userID string) ([]types.MemoryEntry, error) {
	return p.memory.Store().ListByUser(ctx, userID)
}

func (p *Pipeline) withUser(ctx context.Context, userID string, fn func() error) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	release, err := p.locker.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	defer release()
	return fn()
}
