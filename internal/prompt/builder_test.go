package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/easeaico/project-nudge/internal/types"
)

func TestInstructionPersonas(t *testing.T) {
	b := NewBuilder(0, 0)
	b.nowFunc = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	soft, err := b.Instruction(BuildContext{UserName: "Sam"})
	if err != nil {
		t.Fatalf("Instruction returned error: %v", err)
	}
	if !strings.Contains(soft, "texting with Sam") || !strings.Contains(soft, "2026-03-10T09:00:00Z") {
		t.Fatalf("unexpected soft instruction:\n%s", soft)
	}

	sharp, err := b.Instruction(BuildContext{
		Persona:  PersonaSharp,
		Memories: []types.RankedEntry{{Entry: types.MemoryEntry{Content: "I keep skipping the gym"}}},
		Excuses:  []string{"no time", "i'm tired"},
	})
	if err != nil {
		t.Fatalf("Instruction returned error: %v", err)
	}
	for _, want := range []string{"persuasive digital companion for the user", "- I keep skipping the gym", "no time, i'm tired"} {
		if !strings.Contains(sharp, want) {
			t.Fatalf("expected %q in sharp instruction:\n%s", want, sharp)
		}
	}
}

func TestTranscriptLimits(t *testing.T) {
	var history []types.MemoryEntry
	for i := 0; i < 20; i++ {
		sender := types.SenderUser
		if i%2 == 1 {
			sender = types.SenderAgent
		}
		history = append(history, types.MemoryEntry{Sender: sender, Content: strings.Repeat("x", 10)})
	}

	got := NewBuilder(0, 0).Transcript(BuildContext{History: history, Nudge: "Tiny action > endless thinking."})
	if len(got) != DefaultMaxTurns+1 {
		t.Fatalf("expected %d turns plus nudge, got %d", DefaultMaxTurns, len(got))
	}
	if got[len(got)-2].Role != "model" || got[0].Role != "user" {
		t.Fatalf("unexpected roles first=%s last=%s", got[0].Role, got[len(got)-2].Role)
	}
	if last := got[len(got)-1]; last.Role != "system" || last.Parts[0].Text != "Tiny action > endless thinking." {
		t.Fatalf("expected nudge as final system turn, got %+v", last)
	}

	capped := NewBuilder(0, 25).Transcript(BuildContext{History: history})
	if len(capped) != 2 {
		t.Fatalf("expected character cap to keep the 2 newest turns, got %d", len(capped))
	}
}

func TestTranscriptSkipsEmptyTurns(t *testing.T) {
	history := []types.MemoryEntry{
		{Sender: types.SenderUser, Content: "  "},
		{Sender: types.SenderUser, Content: "hello"},
	}
	got := NewBuilder(0, 0).Transcript(BuildContext{History: history})
	if len(got) != 1 || got[0].Parts[0].Text != "hello" {
		t.Fatalf("unexpected transcript %+v", got)
	}
}
