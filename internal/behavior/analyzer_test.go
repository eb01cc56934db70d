package behavior

import (
	"context"
	"reflect"
	"testing"

	"github.com/easeaico/project-nudge/internal/patterns"
	"github.com/easeaico/project-nudge/internal/storage/inmem"
	"github.com/easeaico/project-nudge/internal/traits"
)

func newTestAnalyzer() (*Analyzer, *inmem.Store) {
	store := inmem.New()
	return NewAnalyzer(store, patterns.NewStatic(patterns.Default())), store
}

func TestAnalyzeExcuseAndResistance(t *testing.T) {
	a, store := newTestAnalyzer()
	ctx := context.Background()

	res, err := a.Analyze(ctx, "u1", "I'll do it later, leave me alone")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	want := []string{"excuse:i'll_do_it_later", FlagProcrastination, FlagResistance}
	if !reflect.DeepEqual(res.Flags, want) {
		t.Fatalf("expected flags %v, got %v", want, res.Flags)
	}
	if res.RetreatCount != 1 {
		t.Fatalf("expected retreat count 1, got %d", res.RetreatCount)
	}

	tr, _ := store.Read(ctx, "u1")
	if tr.Int(traits.KeyRetreatCount) != 1 {
		t.Fatalf("expected retreat_count 1 in ledger, got %v", tr[traits.KeyRetreatCount])
	}
	if tr.Int(traits.KeyProcrastinationLevel) != 1 {
		t.Fatalf("expected procrastination_level 1, got %v", tr[traits.KeyProcrastinationLevel])
	}
	if got := tr.Strings(traits.KeyCommonExcuses); !reflect.DeepEqual(got, []string{"i'll do it later"}) {
		t.Fatalf("unexpected excuses list %v", got)
	}
}

func TestAnalyzeExcuseIdempotent(t *testing.T) {
	a, store := newTestAnalyzer()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := a.Analyze(ctx, "u1", "Not in the mood honestly")
		if err != nil {
			t.Fatalf("Analyze returned error: %v", err)
		}
		if !res.HasFlag("excuse:not_in_the_mood") {
			t.Fatalf("expected excuse flag on message %d, got %v", i, res.Flags)
		}
	}
	tr, _ := store.Read(ctx, "u1")
	if got := tr.Strings(traits.KeyCommonExcuses); len(got) != 1 {
		t.Fatalf("expected excuse recorded once, got %v", got)
	}
}

func TestAnalyzeProcrastinationCountsOncePerMessage(t *testing.T) {
	a, store := newTestAnalyzer()
	ctx := context.Background()
	if _, err := a.Analyze(ctx, "u1", "I'll do it tomorrow, probably later, I keep putting it off"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	tr, _ := store.Read(ctx, "u1")
	if tr.Int(traits.KeyProcrastinationLevel) != 1 {
		t.Fatalf("expected a single increment, got %v", tr[traits.KeyProcrastinationLevel])
	}
}

func TestAnalyzeEmotionalFlagsDistinctAndOrdered(t *testing.T) {
	a, store := newTestAnalyzer()
	ctx := context.Background()
	res, err := a.Analyze(ctx, "u1", "I'm stuck, it feels hopeless, there's no point. Stop.")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	want := []string{"expresses_hopelessness", "feels_stuck", FlagResistance}
	if !reflect.DeepEqual(res.Flags, want) {
		t.Fatalf("expected %v, got %v", want, res.Flags)
	}
	tr, _ := store.Read(ctx, "u1")
	if !tr.Bool("expresses_hopelessness") || !tr.Bool("feels_stuck") {
		t.Fatalf("expected emotional traits set, got %v", tr)
	}
}

func TestAnalyzeEmotionalPhraseInflected(t *testing.T) {
	a, store := newTestAnalyzer()
	ctx := context.Background()
	res, err := a.Analyze(ctx, "u1", "I feel such hopelessness about this project")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !reflect.DeepEqual(res.Flags, []string{"expresses_hopelessness"}) {
		t.Fatalf("expected hopelessness flag, got %v", res.Flags)
	}
	tr, _ := store.Read(ctx, "u1")
	if !tr.Bool("expresses_hopelessness") {
		t.Fatalf("expected trait set, got %v", tr)
	}
}

func TestAnalyzeResistanceWordBoundary(t *testing.T) {
	a, store := newTestAnalyzer()
	ctx := context.Background()
	res, err := a.Analyze(ctx, "u1", "This plan is unstoppable")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if res.HasFlag(FlagResistance) {
		t.Fatalf("did not expect resistance flag")
	}
	tr, _ := store.Read(ctx, "u1")
	if len(tr) != 0 {
		t.Fatalf("expected no trait writes, got %v", tr)
	}
}

func TestAnalyzeUsesInjectedTables(t *testing.T) {
	set, err := patterns.Parse([]byte(`
version: 7
excuses: ["the dog ate it"]
resistance: ["nope"]
deescalation: "fine."
tactics:
  soft: ["s"]
  hard: ["h"]
  dark: ["d"]
  teasing: ["t"]
  existential: ["e"]
task_nudges:
  low: "l"
  medium: "m"
  high: "h"
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	a := NewAnalyzer(inmem.New(), patterns.NewStatic(set))
	res, err := a.Analyze(context.Background(), "u1", "The dog ate it. Nope.")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	want := []string{"excuse:the_dog_ate_it", FlagResistance}
	if !reflect.DeepEqual(res.Flags, want) {
		t.Fatalf("expected %v, got %v", want, res.Flags)
	}
}

func TestExtractTask(t *testing.T) {
	set := patterns.Default()
	cases := []struct {
		msg      string
		task     string
		taskLike bool
	}{
		{"I need to finish my thesis.", "finish my thesis", true},
		{"finish my thesis", "finish my thesis", true},
		{"I have to clean the garage, but later", "clean the garage", true},
		{"Planning to launch the new landing page for the shop this week", "launch the new landing page for", true},
		{"deadline", "", true},
		{"I feel so hopeless about this project", "", false},
	}
	for _, tc := range cases {
		task, ok := ExtractTask(set, tc.msg)
		if task != tc.task || ok != tc.taskLike {
			t.Fatalf("ExtractTask(%q) = (%q, %v), want (%q, %v)", tc.msg, task, ok, tc.task, tc.taskLike)
		}
	}
}

func TestInferModeAndName(t *testing.T) {
	if got := InferMode([]string{"lol that meme"}, true); got != ModeSafeSpace {
		t.Fatalf("safe space should override, got %s", got)
	}
	if got := InferMode([]string{"I just need to vent", "lol"}, false); got != ModeEmotionalVent {
		t.Fatalf("expected emotional_vent, got %s", got)
	}
	if got := InferMode([]string{"what's my next step"}, false); got != ModeTask {
		t.Fatalf("expected task_mode, got %s", got)
	}
	if got := InferMode([]string{"hello"}, false); got != ModeUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
	if got := InferName("hey, my name is SARAH and I procrastinate"); got != "Sarah" {
		t.Fatalf("expected Sarah, got %q", got)
	}
	if got := InferName("I'm tired"); got != "" {
		t.Fatalf("expected no name, got %q", got)
	}
}

func TestObserveWritesProfile(t *testing.T) {
	a, store := newTestAnalyzer()
	ctx := context.Background()
	mode, err := a.Observe(ctx, "u1", "Call me alex, I want to argue about my budget", []string{"finance"}, []string{"Call me alex, I want to argue about my budget"})
	if err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}
	if mode != ModeDebate {
		t.Fatalf("expected debate mode, got %s", mode)
	}
	tr, _ := store.Read(ctx, "u1")
	if tr.String(traits.KeyUserName) != "Alex" || !tr.Bool("interest_finance") || tr.String(traits.KeyConversationMode) != "debate" {
		t.Fatalf("unexpected profile traits %v", tr)
	}
}
