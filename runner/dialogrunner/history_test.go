package dialogrunner

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lokal-ai/lokal/api"
)

func roles(msgs []api.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestSanitizeToolCallsComplete(t *testing.T) {
	msgs := []api.Message{
		{Role: "user", Content: "wie ist das Wetter?"},
		{Role: "assistant", ToolCalls: []api.ToolCall{{ID: "call-1"}}},
		{Role: "tool", ToolCallID: "call-1", Content: "sonnig"},
		{Role: "assistant", Content: "Es ist sonnig."},
	}

	got := sanitizeToolCalls(msgs)
	if diff := cmp.Diff(roles(msgs), roles(got)); diff != "" {
		t.Errorf("complete tool call pair removed (-want +got):\n%s", diff)
	}
}

func TestSanitizeToolCallsIncomplete(t *testing.T) {
	msgs := []api.Message{
		{Role: "system", Content: "Du bist ein Assistent."},
		{Role: "user", Content: "wie ist das Wetter?"},
		{Role: "assistant", ToolCalls: []api.ToolCall{{ID: "call-1"}, {ID: "call-2"}}},
		{Role: "tool", ToolCallID: "call-1", Content: "sonnig"},
		{Role: "user", Content: "und morgen?"},
	}

	// call-2 hat keine Antwort: Assistant, Tool-Antworten und die
	// ausloesende User-Nachricht fallen weg
	got := sanitizeToolCalls(msgs)
	want := []string{"system", "user"}
	if diff := cmp.Diff(want, roles(got)); diff != "" {
		t.Errorf("unexpected roles (-want +got):\n%s", diff)
	}
	if got[1].Content != "und morgen?" {
		t.Errorf("kept wrong user message: %q", got[1].Content)
	}
}

func TestTrimToLastTurns(t *testing.T) {
	msgs := []api.Message{
		{Role: "system", Content: "Du bist ein Assistent."},
		{Role: "user", Content: "erste Frage"},
		{Role: "assistant", Content: "erste Antwort"},
		{Role: "user", Content: "zweite Frage"},
		{Role: "assistant", Content: "zweite Antwort"},
		{Role: "user", Content: "dritte Frage"},
	}

	cases := []struct {
		name string
		n    int
		want []string
	}{
		{"letzter Turn", 1, []string{"system", "user"}},
		{"letzte zwei Turns", 2, []string{"system", "user", "assistant", "user"}},
		{"mehr Turns als vorhanden", 5, []string{"system", "user", "assistant", "user", "assistant", "user"}},
		{"unbegrenzt", 0, []string{"system", "user", "assistant", "user", "assistant", "user"}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimToLastTurns(msgs, tt.n)
			if diff := cmp.Diff(tt.want, roles(got)); diff != "" {
				t.Errorf("unexpected roles (-want +got):\n%s", diff)
			}
		})
	}
}
