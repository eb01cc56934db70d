package utils

import (
	"testing"

	"google.golang.org/genai"
)

type sample struct {
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
}

func TestDecodeJSONObject(t *testing.T) {
	var got sample
	if err := DecodeJSONObject(`{"emotion":"joy","score":0.5}`, &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Emotion != "joy" || got.Score != 0.5 {
		t.Fatalf("unexpected value: %+v", got)
	}
}

func TestDecodeJSONObjectWithWrapper(t *testing.T) {
	var got sample
	raw := "Sure! ```json\n{\"emotion\":\"fear\",\"score\":1}\n``` hope that helps"
	if err := DecodeJSONObject(raw, &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Emotion != "fear" {
		t.Fatalf("unexpected emotion: %s", got.Emotion)
	}
}

func TestDecodeJSONObjectInvalid(t *testing.T) {
	var got sample
	if err := DecodeJSONObject("no json here", &got); err == nil {
		t.Fatalf("expected error for missing object")
	}
	if err := DecodeJSONObject(`{"emotion":}`, &got); err == nil {
		t.Fatalf("expected error for malformed object")
	}
}

func TestExtractContentText(t *testing.T) {
	content := &genai.Content{Parts: []*genai.Part{{Text: "hello "}, nil, {Text: "world"}}}
	if got := ExtractContentText(content); got != "hello world" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := ExtractContentText(nil); got != "" {
		t.Fatalf("expected empty text for nil content, got %q", got)
	}
}
