package signal

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/project-nudge/internal/types"
)

type fakeLLM struct {
	text     string
	err      error
	requests []*model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.requests = append(f.requests, req)
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(f.text, genai.RoleModel)}, nil)
	}
}

func TestKeywordExtractorHopelessness(t *testing.T) {
	sig, err := NewKeywordExtractor().Classify(context.Background(), "I feel so hopeless about this project")
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if sig.Emotion != "hopelessness" {
		t.Fatalf("expected hopelessness, got %q", sig.Emotion)
	}
	if sig.Intensity != 0.8 {
		t.Fatalf("expected intensity 0.8, got %v", sig.Intensity)
	}
	if !reflect.DeepEqual(sig.TopicTags, []string{"career"}) {
		t.Fatalf("unexpected topic tags %v", sig.TopicTags)
	}
}

func TestKeywordExtractorInflectedForms(t *testing.T) {
	ctx := context.Background()
	sig, _ := NewKeywordExtractor().Classify(ctx, "I feel such hopelessness about this project")
	if sig.Emotion != "hopelessness" {
		t.Fatalf("expected hopelessness, got %q", sig.Emotion)
	}
	sig, _ = NewKeywordExtractor().Classify(ctx, "I made a plan")
	if sig.Emotion != "neutral" {
		t.Fatalf("expected neutral for unrelated word, got %q", sig.Emotion)
	}
}

func TestKeywordExtractorIntentAndNeutral(t *testing.T) {
	sig, _ := NewKeywordExtractor().Classify(context.Background(), "I'll do it later, leave me alone")
	if sig.Emotion != "neutral" || sig.Intensity != 0.3 {
		t.Fatalf("expected neutral/0.3, got %s/%v", sig.Emotion, sig.Intensity)
	}
	if sig.Intent != types.IntentAvoidant {
		t.Fatalf("expected avoidant intent, got %s", sig.Intent)
	}
	if len(sig.TopicTags) != 0 {
		t.Fatalf("expected no topics, got %v", sig.TopicTags)
	}
}

func TestKeywordExtractorMultipleTopics(t *testing.T) {
	sig, _ := NewKeywordExtractor().Classify(context.Background(), "I need to study for my exam and hit the gym")
	want := []string{"health", "education"}
	if !reflect.DeepEqual(sig.TopicTags, want) {
		t.Fatalf("expected %v, got %v", want, sig.TopicTags)
	}
	if sig.Intent != types.IntentProductive {
		t.Fatalf("expected productive intent, got %s", sig.Intent)
	}
}

func TestResolveDegradesOnFailure(t *testing.T) {
	failing := ExtractorFunc(func(context.Context, string) (types.Signal, error) {
		return types.Signal{}, errors.New("classifier down")
	})
	sig, degraded := Resolve(context.Background(), failing, "anything")
	if !degraded {
		t.Fatalf("expected degradation to be reported")
	}
	if !reflect.DeepEqual(sig, types.NeutralSignal()) {
		t.Fatalf("expected neutral signal, got %+v", sig)
	}

	empty := ExtractorFunc(func(context.Context, string) (types.Signal, error) {
		return types.Signal{}, nil
	})
	sig, degraded = Resolve(context.Background(), empty, "anything")
	if !degraded || sig.Emotion != "neutral" || sig.Intensity != 0.3 || sig.Intent != types.IntentUnknown {
		t.Fatalf("expected neutral fallback for empty result, got %+v (degraded=%v)", sig, degraded)
	}
}

func TestResolveSanitizes(t *testing.T) {
	raw := ExtractorFunc(func(context.Context, string) (types.Signal, error) {
		return types.Signal{Emotion: " Ashamed ", Intensity: 1.7, TopicTags: []string{"Career", "career", ""}, Intent: "bogus"}, nil
	})
	sig, degraded := Resolve(context.Background(), raw, "x")
	if degraded {
		t.Fatalf("unexpected degradation")
	}
	if sig.Emotion != "shame" || sig.Intensity != 1 || sig.Intent != types.IntentUnknown {
		t.Fatalf("unexpected sanitized signal %+v", sig)
	}
	if !reflect.DeepEqual(sig.TopicTags, []string{"career"}) {
		t.Fatalf("unexpected tags %v", sig.TopicTags)
	}
}

func TestLLMExtractorParsesWrappedJSON(t *testing.T) {
	llm := &fakeLLM{text: "```json\n{\"emotion\":\"guilt\",\"intensity\":0.6,\"topic_tags\":[\"health\"],\"intent\":\"avoidant\"}\n```"}
	sig, err := NewLLMExtractor(llm).Classify(context.Background(), "I skipped the gym again")
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if sig.Emotion != "guilt" || sig.Intensity != 0.6 || sig.Intent != types.IntentAvoidant {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if len(llm.requests) != 1 {
		t.Fatalf("expected one model call, got %d", len(llm.requests))
	}
	cfg := llm.requests[0].Config
	if cfg == nil || cfg.ResponseMIMEType != "application/json" || cfg.ResponseJsonSchema == nil {
		t.Fatalf("expected json response contract on request, got %+v", cfg)
	}
}

func TestLLMExtractorErrors(t *testing.T) {
	if _, err := NewLLMExtractor(&fakeLLM{err: errors.New("boom")}).Classify(context.Background(), "hi"); err == nil {
		t.Fatalf("expected model error to surface")
	}
	if _, err := NewLLMExtractor(&fakeLLM{text: "no idea"}).Classify(context.Background(), "hi"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := NewLLMExtractor(nil).Classify(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error for missing model")
	}
}
