// Package api - Wire-Typen fuer den Lokal Dialog-Engine
//
// Dieses Modul definiert die Typen des Anfrage-Umschlags:
// - DialogEnvelope: Eingehender Chat-Request (JSON)
// - Message: Einzelne Chat-Nachricht mit optionalen Bildern und Tool-Calls
// - Tool/ToolFunction: Tool-Definitionen fuer Function-Calling
// - StatusCode: Rueckgabe-Codes des Lifecycle-Controllers
package api

import (
	"encoding/json"
	"strings"
)

// StatusCode ist der tri-state Rueckgabewert eines Generierungs-Schritts
type StatusCode int32

const (
	// StatusSuccess - Schritt erfolgreich abgeschlossen
	StatusSuccess StatusCode = 0

	// StatusError - Schritt fehlgeschlagen
	StatusError StatusCode = -1

	// StatusContextExceeded - Schritt erfolgreich, aber die Antwort wurde
	// durch das Kontext-Budget gekuerzt
	StatusContextExceeded StatusCode = -2
)

func (c StatusCode) String() string {
	switch c {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusContextExceeded:
		return "context exceeded"
	default:
		return "unknown"
	}
}

// DialogEnvelope ist der eingehende Anfrage-Umschlag.
// Alle Felder ausser Messages sind optional.
type DialogEnvelope struct {
	// ID im Format "local-chatcmpl-<n>"; andere Formate ergeben die Default-ID 0
	ID string `json:"id,omitempty"`

	// Priority steuert die Einplanung durch den umgebenden Scheduler
	Priority int32 `json:"priority,omitempty"`

	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`

	// ModalParts traegt vor-dekodierte Puffer als Handle→Laenge Paare.
	// Die Schluessel sind dezimal kodierte Puffer-Handles der BufferTable.
	ModalParts []map[string]int32 `json:"modal_prts,omitempty"`

	Stop bool `json:"stop,omitempty"`
}

// Message ist eine einzelne Nachricht einer Chat-Konversation
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Images     [][]byte   `json:"images,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func (m *Message) UnmarshalJSON(b []byte) error {
	type Alias Message
	var a Alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}

	*m = Message(a)
	m.Role = strings.ToLower(m.Role)
	return nil
}

// ToolCall ist ein vom Modell ausgeloester Tool-Aufruf
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction enthaelt Name und Argumente eines Tool-Aufrufs
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Tool ist eine Tool-Definition aus dem Request
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

func (t Tool) String() string {
	bts, _ := json.Marshal(t)
	return string(bts)
}

// ToolFunction beschreibt eine aufrufbare Funktion
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func (t *ToolFunction) String() string {
	bts, _ := json.Marshal(t)
	return string(bts)
}
