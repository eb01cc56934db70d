// Package app assembles the services described by a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"google.golang.org/adk/model"

	"github.com/easeaico/project-nudge/internal/agent"
	"github.com/easeaico/project-nudge/internal/behavior"
	"github.com/easeaico/project-nudge/internal/config"
	"github.com/easeaico/project-nudge/internal/memory"
	"github.com/easeaico/project-nudge/internal/metrics"
	"github.com/easeaico/project-nudge/internal/models"
	"github.com/easeaico/project-nudge/internal/nudge"
	"github.com/easeaico/project-nudge/internal/patterns"
	"github.com/easeaico/project-nudge/internal/pipeline"
	"github.com/easeaico/project-nudge/internal/prompt"
	"github.com/easeaico/project-nudge/internal/repository"
	"github.com/easeaico/project-nudge/internal/signal"
	"github.com/easeaico/project-nudge/internal/storage/inmem"
	"github.com/easeaico/project-nudge/internal/storage/kv"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/userlock"
)

// App holds the wired services. Close releases storage and lock connections.
type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Coach    *agent.Coach
	Patterns *patterns.Holder
	Metrics  *metrics.Manager

	closers []func() error
}

// Storage is a memory store and trait ledger pair.
type Storage struct {
	Memory memory.Store
	Ledger traits.Ledger
	Close  func() error
}

// OpenStorage opens the backend named by cfg.Driver.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "memory", "":
		s := inmem.New()
		return Storage{Memory: s, Ledger: s, Close: func() error { return nil }}, nil
	case "badger":
		s, err := kv.Open(cfg.BadgerDir)
		if err != nil {
			return Storage{}, err
		}
		return Storage{Memory: s, Ledger: s, Close: s.Close}, nil
	case "postgres":
		s, err := repository.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return Storage{}, err
		}
		return Storage{Memory: s.Memories, Ledger: s.Traits, Close: func() error { s.Close(); return nil }}, nil
	default:
		return Storage{}, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// New builds every service. On error, whatever was opened is closed again.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	slog.Info("storage opened", "driver", cfg.Storage.Driver)

	locker, err := a.newLocker(cfg.Lock)
	if err != nil {
		return nil, err
	}

	a.Patterns, err = loadPatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}

	var llm model.LLM
	if cfg.LLM.Provider != "" {
		llm, err = models.New(ctx, models.Options{
			Provider: models.Provider(cfg.LLM.Provider),
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create model: %w", err)
		}
		slog.Info("model configured", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "classify", cfg.LLM.Classify)
	}

	var extractor signal.Extractor = signal.NewKeywordExtractor()
	if llm != nil && cfg.LLM.Classify {
		extractor = signal.NewLLMExtractor(llm)
	}

	var embedder memory.Embedder
	if cfg.LLM.GoogleAPIKey != "" {
		emb, err := memory.NewGenAIEmbedder(ctx, cfg.LLM.GoogleAPIKey, cfg.LLM.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		embedder = emb
	}

	a.Metrics = metrics.NewManager(cfg.Metrics.Enabled)

	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Memory:   memory.NewService(store.Memory),
		Ledger:   store.Ledger,
		Analyzer: behavior.NewAnalyzer(store.Ledger, a.Patterns),
		Ranker:   memory.NewRanker(store.Memory, cfg.Memory.DecayWindowDays),
		Engine: nudge.NewEngine(store.Ledger, a.Patterns, nudge.Config{
			Cooldown:        cfg.Nudge.Cooldown,
			FatigueRecovery: cfg.Nudge.FatigueRecovery,
			RetreatLimit:    cfg.Nudge.RetreatLimit,
			DailyDarkCap:    cfg.Nudge.DailyDarkCap,
			FatigueLimit:    cfg.Nudge.FatigueLimit,
		}),
		Extractor: extractor,
		Embedder:  embedder,
		Locker:    locker,
		Recorder:  a.Metrics,
	}, pipeline.Config{
		ContextLimit:    cfg.Memory.ContextLimit,
		RecentMessages:  cfg.Memory.RecentMessages,
		ConflictTries:   cfg.Nudge.ConflictTries,
		ConflictBackoff: cfg.Nudge.ConflictBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	a.Coach, err = agent.NewCoach(a.Pipeline, llm, prompt.NewBuilder(cfg.Memory.MaxTurns, cfg.Memory.MaxChars))
	if err != nil {
		return nil, fmt.Errorf("failed to create coach: %w", err)
	}
	return a, nil
}

func (a *App) newLocker(cfg config.LockConfig) (userlock.Locker, error) {
	if cfg.Driver != "redis" {
		return userlock.NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, client.Close)

	rcfg := userlock.DefaultRedisConfig()
	rcfg.TTL = cfg.TTL
	locker, err := userlock.NewRedis(client, rcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis lock: %w", err)
	}
	slog.Info("redis user lock configured", "addr", cfg.RedisAddr)
	return locker, nil
}

func loadPatterns(cfg config.PatternsConfig) (*patterns.Holder, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return patterns.NewHolder(nil), nil
	}
	set, err := patterns.Load(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern tables: %w", err)
	}
	slog.Info("pattern tables loaded", "path", cfg.File, "version", set.Version)
	return patterns.NewHolder(set), nil
}

// WatchPatterns reloads the pattern file on change until ctx is done. It returns immediately when
// watching is disabled.
func (a *App) WatchPatterns(ctx context.Context) error {
	cfg := a.Config.Patterns
	if !cfg.Watch || cfg.File == "" {
		return nil
	}
	err := a.Patterns.Watch(ctx, cfg.File, cfg.Debounce)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
