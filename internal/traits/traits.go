// Package traits defines the per-user trait ledger and a typed view over trait values.
package traits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Canonical trait keys.
const (
	KeyProcrastinationLevel = "procrastination_level"
	KeyRetreatCount         = "retreat_count"
	KeyCommonExcuses        = "common_excuses_list"
	KeyLastNudgeTime        = "last_nudge_time"
	KeyNudgeFatigue         = "nudge_fatigue_level"
	KeySafeSpaceMode        = "safe_space_mode"
	KeyPreferredTone        = "preferred_nudge_tone"
	KeyConversationMode     = "conversation_mode"
	KeyUserName             = "user_name"

	dailyDarkPrefix = "daily_dark_nudge_count_"
	interestPrefix  = "interest_"
)

// ErrConflict is returned by a Ledger when a concurrent writer changed the same user's traits.
var ErrConflict = errors.New("trait ledger: concurrent modification")

// DailyDarkKey returns the per-day dark nudge counter key for the calendar date of t.
func DailyDarkKey(t time.Time) string {
	return dailyDarkPrefix + t.Format(time.DateOnly)
}

// InterestKey returns the trait key recording interest in topic.
func InterestKey(topic string) string {
	return interestPrefix + strings.ToLower(strings.TrimSpace(topic))
}

// Ledger is the persistent per-user key/value store. It performs no arithmetic: callers
// read, modify and write back.
type Ledger interface {
	// Read returns every trait of the user. Unknown users yield an empty Traits.
	Read(ctx context.Context, userID string) (Traits, error)
	// Update merges a single key.
	Update(ctx context.Context, userID, key string, value any) error
	// Merge writes several keys atomically. Keys not named are untouched.
	Merge(ctx context.Context, userID string, values map[string]any) error
	// Union merges values into a list-valued key with set semantics.
	Union(ctx context.Context, userID, key string, values ...string) error
	// Reset removes the named keys, or every key when none are named.
	Reset(ctx context.Context, userID string, keys ...string) error
}

// Traits is a read view over a user's trait mapping. Missing or mistyped values read as
// zero values, never as errors.
type Traits map[string]any

// Clone returns a shallow copy.
func (t Traits) Clone() Traits {
	out := make(Traits, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Int returns the value of key as an integer counter.
func (t Traits) Int(key string) int {
	n, err := toInt(t[key])
	if err != nil {
		return 0
	}
	return n
}

// Float returns the value of key as a real number.
func (t Traits) Float(key string) float64 {
	switch v := t[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		n, err := toInt(v)
		if err != nil {
			return 0
		}
		return float64(n)
	}
}

// Bool returns the value of key as a flag.
func (t Traits) Bool(key string) bool {
	switch v := t[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

// String returns the value of key as text.
func (t Traits) String(key string) string {
	if s, ok := t[key].(string); ok {
		return s
	}
	return ""
}

// Time returns the value of key as a timestamp. Unparseable values yield the zero time.
func (t Traits) Time(key string) time.Time {
	switch v := t[key].(type) {
	case time.Time:
		return v
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}

// Strings returns the value of key as a list.
func (t Traits) Strings(key string) []string {
	switch v := t[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Numeric returns every trait that has a numeric or boolean reading, for diagnostics.
func (t Traits) Numeric() map[string]float64 {
	out := make(map[string]float64)
	for k, v := range t {
		switch v.(type) {
		case int, int32, int64, float32, float64, json.Number, bool:
			out[k] = t.Float(k)
		}
	}
	return out
}

// UnionStrings merges add into base keeping first-seen order and dropping duplicates.
func UnionStrings(base []string, add ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Keys returns the trait keys in sorted order.
func (t Traits) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize converts a value into the representation stores persist: timestamps become
// RFC 3339 strings, everything else is kept as is.
func Normalize(value any) any {
	if ts, ok := value.(time.Time); ok {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	return value
}

func toInt(val any) (int, error) {
	switch cast := val.(type) {
	case nil:
		return 0, nil
	case int:
		return cast, nil
	case int8:
		return int(cast), nil
	case int16:
		return int(cast), nil
	case int32:
		return int(cast), nil
	case int64:
		return int(cast), nil
	case uint:
		return int(cast), nil
	case uint8:
		return int(cast), nil
	case uint16:
		return int(cast), nil
	case uint32:
		return int(cast), nil
	case uint64:
		if cast > uint64(^uint(0)>>1) {
			return 0, fmt.Errorf("trait value overflows int")
		}
		return int(cast), nil
	case float32:
		return int(cast), nil
	case float64:
		return int(cast), nil
	case json.Number:
		parsed, err := cast.Int64()
		if err != nil {
			return 0, fmt.Errorf("trait value is not an int: %w", err)
		}
		return int(parsed), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(cast))
		if err != nil {
			return 0, fmt.Errorf("trait value is not an int: %w", err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("trait value has unsupported type %T", val)
	}
}
