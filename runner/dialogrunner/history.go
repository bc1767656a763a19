// Package dialogrunner - Nachrichten-Historie
//
// Dieses Modul bereinigt die Chat-Historie vor der Formatierung:
// - sanitizeToolCalls: Entfernt unvollstaendige Tool-Call-Paare
// - TrimToLastTurns: Begrenzt die Historie auf die letzten N Turns
package dialogrunner

import (
	"log/slog"

	"github.com/lokal-ai/lokal/api"
)

// sanitizeToolCalls entfernt Assistant-Nachrichten deren Tool-Calls
// keine vollstaendigen Tool-Antworten haben, samt zugehoeriger
// Tool-Nachrichten und der unmittelbar vorausgehenden User-Nachricht.
// Eine abgebrochene Konversation darf keine offenen Tool-Calls in die
// naechste Formatierung tragen.
func sanitizeToolCalls(msgs []api.Message) []api.Message {
	cleaned := make([]api.Message, 0, len(msgs))
	removed := false

	i := 0
	for i < len(msgs) {
		m := msgs[i]

		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			wanted := make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if tc.ID != "" {
					wanted[tc.ID] = true
				}
			}

			// alle direkt folgenden Tool-Antworten einsammeln
			j := i + 1
			var toolMsgs []api.Message
			for j < len(msgs) && msgs[j].Role == "tool" {
				toolMsgs = append(toolMsgs, msgs[j])
				j++
			}

			matched := make(map[string]bool, len(toolMsgs))
			for _, tm := range toolMsgs {
				if tm.ToolCallID != "" {
					matched[tm.ToolCallID] = true
				}
			}

			complete := true
			for id := range wanted {
				if !matched[id] {
					complete = false
					break
				}
			}

			if !complete {
				// auch die ausloesende User-Nachricht verwerfen
				if len(cleaned) > 0 && cleaned[len(cleaned)-1].Role == "user" {
					cleaned = cleaned[:len(cleaned)-1]
				}
				removed = true
				i = j
				continue
			}

			cleaned = append(cleaned, m)
			cleaned = append(cleaned, toolMsgs...)
			i = j
			continue
		}

		cleaned = append(cleaned, m)
		i++
	}

	if removed {
		slog.Info("removed incomplete tool call messages from history", "removed", len(msgs)-len(cleaned))
	}

	return cleaned
}

// TrimToLastTurns behaelt System-Nachrichten und die letzten n
// User-Turns samt allem was darauf folgt
func TrimToLastTurns(msgs []api.Message, n int) []api.Message {
	if n <= 0 {
		return msgs
	}

	turns := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			turns++
			if turns == n {
				start = i
				break
			}
		}
	}

	if turns < n {
		return msgs
	}

	trimmed := make([]api.Message, 0, len(msgs)-start+1)
	for _, m := range msgs[:start] {
		if m.Role == "system" {
			trimmed = append(trimmed, m)
		}
	}
	return append(trimmed, msgs[start:]...)
}
