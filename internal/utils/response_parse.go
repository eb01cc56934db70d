package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject returns the outermost {...} span of raw model output, which models often
// wrap in prose or code fences.
func ExtractJSONObject(raw string) (string, bool) {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return clean[start : end+1], true
}

// DecodeJSONObject extracts the JSON object from raw and decodes it into v.
func DecodeJSONObject(raw string, v any) error {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return fmt.Errorf("no json object in model output")
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("failed to parse model output: %w", err)
	}
	return nil
}
