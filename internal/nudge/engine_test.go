package nudge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/project-nudge/internal/behavior"
	"github.com/easeaico/project-nudge/internal/patterns"
	"github.com/easeaico/project-nudge/internal/storage/inmem"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *inmem.Store) {
	t.Helper()
	store := inmem.New()
	e := NewEngine(store, patterns.NewStatic(nil), DefaultConfig(),
		WithClock(func() time.Time { return testNow }),
		WithPicker(func(int) int { return 0 }),
	)
	return e, store
}

func seed(t *testing.T, store *inmem.Store, values map[string]any) {
	t.Helper()
	if err := store.Merge(context.Background(), "u1", values); err != nil {
		t.Fatalf("seed traits: %v", err)
	}
}

func TestDecideResistanceSequence(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	in := Input{UserID: "u1", Message: "leave me alone", Emotion: "neutral", Flags: []string{behavior.FlagResistance}}

	seed(t, store, map[string]any{traits.KeyRetreatCount: 1})
	out, err := e.Decide(ctx, in)
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if out.Suppressed || out.Reason != types.ReasonDeescalated || out.Text != patterns.Default().Deescalation {
		t.Fatalf("expected de-escalation on first retreat, got %+v", out)
	}

	seed(t, store, map[string]any{traits.KeyRetreatCount: 2})
	out, err = e.Decide(ctx, in)
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if !out.Suppressed || out.Reason != types.ReasonResistanceRetreat || out.Text != "" {
		t.Fatalf("expected suppression on second retreat, got %+v", out)
	}

	tr, _ := store.Read(ctx, "u1")
	if !tr.Time(traits.KeyLastNudgeTime).IsZero() || tr.Int(traits.KeyNudgeFatigue) != 0 {
		t.Fatalf("resistance turns must not be tracked, got %v", tr)
	}
}

func TestDecideCooldown(t *testing.T) {
	cases := []struct {
		name       string
		since      time.Duration
		suppressed bool
	}{
		{"five minutes", 5 * time.Minute, true},
		{"eleven minutes", 11 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, store := newTestEngine(t)
			seed(t, store, map[string]any{traits.KeyLastNudgeTime: testNow.Add(-tc.since)})
			out, err := e.Decide(context.Background(), Input{UserID: "u1", Message: "hm", Emotion: "neutral"})
			if err != nil {
				t.Fatalf("Decide returned error: %v", err)
			}
			if out.Suppressed != tc.suppressed {
				t.Fatalf("expected suppressed=%v, got %+v", tc.suppressed, out)
			}
			if tc.suppressed && out.Reason != types.ReasonCooldown {
				t.Fatalf("expected cooldown reason, got %s", out.Reason)
			}
		})
	}
}

func TestDecideHopelessGoesDark(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	out, err := e.Decide(ctx, Input{
		UserID:  "u1",
		Message: "I feel so hopeless about my career, there's no point",
		Emotion: "hopelessness",
		Flags:   []string{"expresses_hopelessness"},
	})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if out.Tone != types.ToneDark || out.Reason != types.ReasonTactic {
		t.Fatalf("expected dark tactic, got %+v", out)
	}
	if out.Text != patterns.Default().Tactics[types.ToneDark][0] {
		t.Fatalf("expected full tactic for a long message, got %q", out.Text)
	}

	tr, _ := store.Read(ctx, "u1")
	if tr.Int(traits.DailyDarkKey(testNow)) != 1 {
		t.Fatalf("expected dark counter 1, got %v", tr)
	}
	if tr.Int(traits.KeyNudgeFatigue) != 1 || !tr.Time(traits.KeyLastNudgeTime).Equal(testNow) {
		t.Fatalf("expected tracking commit, got %v", tr)
	}
}

func TestDecideDailyCapDowngradesToHard(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	seed(t, store, map[string]any{traits.DailyDarkKey(testNow): 3})

	out, err := e.Decide(ctx, Input{UserID: "u1", Message: "I broke my promise again to myself today", Emotion: "shame"})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if out.Tone != types.ToneHard {
		t.Fatalf("expected downgrade to hard, got %+v", out)
	}
	tr, _ := store.Read(ctx, "u1")
	if tr.Int(traits.DailyDarkKey(testNow)) != 3 {
		t.Fatalf("hard nudge must not bump the dark counter, got %v", tr)
	}
}

func TestDecideToneLadder(t *testing.T) {
	cases := []struct {
		name    string
		emotion string
		flags   []string
		seed    map[string]any
		want    types.Tone
	}{
		{"sadness", "sadness", nil, nil, types.ToneSoft},
		{"anger", "anger", nil, nil, types.ToneHard},
		{"bored procrastinator", "boredom", []string{behavior.FlagProcrastination}, nil, types.ToneTeasing},
		{"neutral without flag", "neutral", nil, nil, types.ToneSoft},
		{"shame flag", "neutral", []string{"broke_promise"}, nil, types.ToneDark},
		{"preferred tone", "joy", nil, map[string]any{traits.KeyPreferredTone: "existential"}, types.ToneExistential},
		{"unknown preferred tone", "joy", nil, map[string]any{traits.KeyPreferredTone: "shouty"}, types.ToneSoft},
		{"fatigued", "anger", nil, map[string]any{
			traits.KeyNudgeFatigue:  3,
			traits.KeyLastNudgeTime: testNow.Add(-15 * time.Minute),
		}, types.ToneSoft},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, store := newTestEngine(t)
			if tc.seed != nil {
				seed(t, store, tc.seed)
			}
			out, err := e.Decide(context.Background(), Input{UserID: "u1", Message: "whatever then", Emotion: tc.emotion, Flags: tc.flags})
			if err != nil {
				t.Fatalf("Decide returned error: %v", err)
			}
			if out.Tone != tc.want {
				t.Fatalf("expected %s, got %+v", tc.want, out)
			}
		})
	}
}

func TestDecideFatigueResetsAfterIdle(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	seed(t, store, map[string]any{
		traits.KeyNudgeFatigue:  5,
		traits.KeyLastNudgeTime: testNow.Add(-31 * time.Minute),
	})
	out, err := e.Decide(ctx, Input{UserID: "u1", Message: "this is so annoying", Emotion: "anger"})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if out.Tone != types.ToneHard {
		t.Fatalf("idle user should not be treated as fatigued, got %+v", out)
	}
	tr, _ := store.Read(ctx, "u1")
	if tr.Int(traits.KeyNudgeFatigue) != 1 {
		t.Fatalf("expected fatigue reset then incremented to 1, got %v", tr[traits.KeyNudgeFatigue])
	}
}

func TestDecideSafeSpace(t *testing.T) {
	e, store := newTestEngine(t)
	seed(t, store, map[string]any{traits.KeySafeSpaceMode: true})
	out, err := e.Decide(context.Background(), Input{UserID: "u1", Message: "hi", Emotion: "anger"})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if !out.Suppressed || out.Reason != types.ReasonSafeSpace {
		t.Fatalf("expected safe space suppression, got %+v", out)
	}
}

func TestDecideTaskNudge(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	history := []types.MemoryEntry{
		{ID: "a", UserID: "u1", Sender: types.SenderUser, Content: "I need to finish my thesis", Timestamp: testNow.Add(-5 * 24 * time.Hour), EmotionalIntensity: 0.5},
		{ID: "b", UserID: "u1", Sender: types.SenderAgent, Content: "You should finish my thesis", Timestamp: testNow.Add(-5 * 24 * time.Hour)},
		{ID: "c", UserID: "u1", Sender: types.SenderUser, Content: "I really need to finish my thesis.", Timestamp: testNow.Add(-4 * 24 * time.Hour), EmotionalIntensity: 0.5},
	}
	out, err := e.Decide(ctx, Input{
		UserID:   "u1",
		Message:  "I should start on something today",
		Emotion:  "neutral",
		TaskLike: true,
		History:  history,
	})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if out.Reason != types.ReasonTaskNudge || out.Tone != "" {
		t.Fatalf("expected task nudge, got %+v", out)
	}
	if !strings.HasPrefix(out.Text, "Quick reminder: *finish my thesis*") {
		t.Fatalf("expected low tier text, got %q", out.Text)
	}
	tr, _ := store.Read(ctx, "u1")
	if tr.Int(traits.KeyNudgeFatigue) != 1 || tr.Int(traits.DailyDarkKey(testNow)) != 0 {
		t.Fatalf("task nudge should track fatigue only, got %v", tr)
	}
}

func TestDecideTaskGateNeedsTaskLikeMessage(t *testing.T) {
	e, _ := newTestEngine(t)
	history := []types.MemoryEntry{
		{Sender: types.SenderUser, Content: "I need to finish my thesis", Timestamp: testNow.Add(-6 * 24 * time.Hour)},
		{Sender: types.SenderUser, Content: "I need to finish my thesis", Timestamp: testNow.Add(-5 * 24 * time.Hour)},
	}
	out, err := e.Decide(context.Background(), Input{UserID: "u1", Message: "nice weather", Emotion: "joy", History: history})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if out.Reason != types.ReasonTactic {
		t.Fatalf("expected tactic path, got %+v", out)
	}
}

func TestDecideCancelledContextCommitsNothing(t *testing.T) {
	e, store := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Decide(ctx, Input{UserID: "u1", Message: "hmm", Emotion: "anger"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	tr, _ := store.Read(context.Background(), "u1")
	if len(tr) != 0 {
		t.Fatalf("expected no tracking writes, got %v", tr)
	}
}

func TestTacticShortenedForShortInput(t *testing.T) {
	e, _ := newTestEngine(t)
	out, err := e.Decide(context.Background(), Input{UserID: "u1", Message: "ugh, no", Emotion: "guilt"})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if out.Text != "You promised yourself you'd do this." {
		t.Fatalf("expected first sentence only, got %q", out.Text)
	}
}

func TestFirstSentence(t *testing.T) {
	cases := map[string]string{
		"One. Two.":                    "One.",
		"No terminator here":           "No terminator here",
		"Version 1.5 is out! Go look.": "Version 1.5 is out!",
		"Really?":                      "Really?",
		"Wait... what? Fine.":          "Wait...",
	}
	for in, want := range cases {
		if got := FirstSentence(in); got != want {
			t.Fatalf("FirstSentence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindAvoidedTasks(t *testing.T) {
	set := patterns.Default()
	history := []types.MemoryEntry{
		{Sender: types.SenderUser, Content: "I have to clean the garage", Timestamp: testNow.Add(-10 * 24 * time.Hour), EmotionalIntensity: 1},
		{Sender: types.SenderUser, Content: "I have to clean the garage, ugh", Timestamp: testNow.Add(-9 * 24 * time.Hour), EmotionalIntensity: 1},
		{Sender: types.SenderUser, Content: "need to submit the report", TaskReference: "quarterly report", Timestamp: testNow.Add(-3 * 24 * time.Hour)},
		{Sender: types.SenderUser, Content: "must submit the report", TaskReference: "quarterly report", Timestamp: testNow.Add(-3 * 24 * time.Hour)},
		{Sender: types.SenderUser, Content: "I want to study spanish", Timestamp: testNow.Add(-1 * 24 * time.Hour)},
		{Sender: types.SenderUser, Content: "I want to study spanish"},
		{Sender: types.SenderUser, Content: "I want to study spanish", Timestamp: testNow.Add(-5 * 24 * time.Hour)},
	}
	tasks := FindAvoidedTasks(set, history, testNow)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 avoided tasks, got %+v", tasks)
	}
	if tasks[0].Task != "clean the garage" || tasks[0].Urgency != 0.76 || tasks[0].Tier() != patterns.TierHigh {
		t.Fatalf("unexpected top task %+v", tasks[0])
	}
	if tasks[1].Task != "quarterly report" || tasks[1].DaysInactive != 3 || tasks[1].Tier() != patterns.TierLow {
		t.Fatalf("unexpected second task %+v", tasks[1])
	}
}

func TestUrgency(t *testing.T) {
	if got := Urgency(5, 7, 1); got != 1 {
		t.Fatalf("expected saturated urgency 1, got %v", got)
	}
	if got := Urgency(2, 4, 0.5); got != 0.48 {
		t.Fatalf("expected 0.48, got %v", got)
	}
}
