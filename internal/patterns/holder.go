package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Provider hands out the pattern tables in effect for the next analysis.
type Provider interface {
	Current() *Set
}

// Static is a Provider that never changes. Tests use it to pin tables.
type Static struct {
	set *Set
}

// NewStatic wraps set. A nil set falls back to the built-in tables.
func NewStatic(set *Set) Static {
	if set == nil {
		set = Default()
	}
	return Static{set: set}
}

func (s Static) Current() *Set {
	return s.set
}

// Holder is a Provider whose tables can be replaced while turns are running.
type Holder struct {
	current atomic.Pointer[Set]
}

// NewHolder returns a Holder seeded with set, or the built-in tables when set is nil.
func NewHolder(set *Set) *Holder {
	if set == nil {
		set = Default()
	}
	h := &Holder{}
	h.current.Store(set)
	return h
}

func (h *Holder) Current() *Set {
	return h.current.Load()
}

// Swap installs set and returns the previous tables.
func (h *Holder) Swap(set *Set) *Set {
	return h.current.Swap(set)
}

// Reload re-reads path and installs the result. On error the current tables stay in place.
func (h *Holder) Reload(path string) error {
	set, err := Load(path)
	if err != nil {
		return err
	}
	prev := h.Swap(set)
	slog.Info("pattern tables reloaded", "path", path, "version", set.Version, "previous_version", prev.Version)
	return nil
}

// Watch reloads the tables whenever path changes on disk, until ctx is cancelled.
// The parent directory is watched so that editors which replace the file by rename are seen.
func (h *Holder) Watch(ctx context.Context, path string, debounce time.Duration) error {
	if path == "" {
		return fmt.Errorf("pattern file path is required for watching")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve pattern file path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch pattern directory: %w", err)
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := h.Reload(abs); err != nil {
				slog.Warn("failed to reload pattern tables", "path", abs, "error", err.Error())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("pattern watcher error", "error", err.Error())
		}
	}
}
