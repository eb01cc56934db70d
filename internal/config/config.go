// Package config loads runtime settings from defaults, an optional YAML file and the environment.
package config

import (
	"time"
)

// EnvPrefix is the prefix of environment overrides: NUDGE_SERVER_ADDR sets server.addr.
const EnvPrefix = "NUDGE_"

// Config holds runtime settings.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Storage  StorageConfig  `koanf:"storage"`
	Lock     LockConfig     `koanf:"lock"`
	LLM      LLMConfig      `koanf:"llm"`
	Memory   MemoryConfig   `koanf:"memory"`
	Nudge    NudgeConfig    `koanf:"nudge"`
	Patterns PatternsConfig `koanf:"patterns"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// RateLimit is the sustained requests per second allowed per client; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst int     `koanf:"rate_burst" validate:"gte=0"`
}

// LogConfig configures the default slog handler.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// StorageConfig selects where memories and traits live.
type StorageConfig struct {
	Driver      string `koanf:"driver" validate:"oneof=memory badger postgres"`
	DatabaseURL string `koanf:"database_url" validate:"required_if=Driver postgres"`
	// BadgerDir is the on-disk directory; empty keeps the database in memory.
	BadgerDir string `koanf:"badger_dir"`
}

// LockConfig selects the per-user lock.
type LockConfig struct {
	Driver        string        `koanf:"driver" validate:"oneof=local redis"`
	RedisAddr     string        `koanf:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
	TTL           time.Duration `koanf:"ttl" validate:"gt=0"`
}

// LLMConfig selects the chat and classifier model. An empty Provider runs without an LLM:
// signals come from keyword tables and replies are unavailable.
type LLMConfig struct {
	Provider string `koanf:"provider" validate:"omitempty,oneof=gemini openai grok openrouter"`
	Model    string `koanf:"model" validate:"required_with=Provider"`
	APIKey   string `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	// Classify routes signal extraction through the model instead of keyword tables.
	Classify bool `koanf:"classify"`
	// GoogleAPIKey enables Gemini embeddings for near-duplicate detection.
	GoogleAPIKey   string `koanf:"google_api_key"`
	EmbeddingModel string `koanf:"embedding_model"`
}

// MemoryConfig tunes ranking and context assembly.
type MemoryConfig struct {
	DecayWindowDays float64 `koanf:"decay_window_days" validate:"gt=0"`
	ContextLimit    int     `koanf:"context_limit" validate:"gt=0"`
	RecentMessages  int     `koanf:"recent_messages" validate:"gt=0"`
	MaxTurns        int     `koanf:"max_turns" validate:"gt=0"`
	MaxChars        int     `koanf:"max_chars" validate:"gt=0"`
}

// NudgeConfig holds the decision engine thresholds and conflict retry policy.
type NudgeConfig struct {
	Cooldown        time.Duration `koanf:"cooldown" validate:"gt=0"`
	FatigueRecovery time.Duration `koanf:"fatigue_recovery" validate:"gt=0"`
	RetreatLimit    int           `koanf:"retreat_limit" validate:"gt=0"`
	DailyDarkCap    int           `koanf:"daily_dark_cap" validate:"gt=0"`
	FatigueLimit    int           `koanf:"fatigue_limit" validate:"gt=0"`
	ConflictTries   uint          `koanf:"conflict_tries" validate:"gt=0"`
	ConflictBackoff time.Duration `koanf:"conflict_backoff" validate:"gt=0"`
}

// PatternsConfig points at an optional pattern table file.
type PatternsConfig struct {
	File     string        `koanf:"file"`
	Watch    bool          `koanf:"watch"`
	Debounce time.Duration `koanf:"debounce" validate:"gte=0"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required_if=Enabled true"`
}

// defaults is the lowest-priority layer, keyed by koanf path.
func defaults() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.read_timeout":     "15s",
		"server.write_timeout":    "60s",
		"server.shutdown_timeout": "10s",
		"server.rate_limit":       5.0,
		"server.rate_burst":       10,

		"log.level":  "info",
		"log.format": "text",

		"storage.driver": "memory",

		"lock.driver": "local",
		"lock.ttl":    "30s",

		"llm.embedding_model": "text-embedding-004",

		"memory.decay_window_days": 15.0,
		"memory.context_limit":     10,
		"memory.recent_messages":   5,
		"memory.max_turns":         12,
		"memory.max_chars":         6000,

		"nudge.cooldown":         "10m",
		"nudge.fatigue_recovery": "30m",
		"nudge.retreat_limit":    2,
		"nudge.daily_dark_cap":   3,
		"nudge.fatigue_limit":    3,
		"nudge.conflict_tries":   3,
		"nudge.conflict_backoff": "20ms",

		"patterns.debounce": "500ms",

		"metrics.enabled": true,
		"metrics.path":    "/metrics",
	}
}
