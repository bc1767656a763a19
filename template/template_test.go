// Package template - Tests fuer Parsing, Kollation und Ausfuehrung
package template

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lokal-ai/lokal/api"
)

func TestNamed(t *testing.T) {
	for _, name := range []string{"chatml", "qwen", "alpaca"} {
		if _, err := Named(name); err != nil {
			t.Errorf("Named(%q) error = %v", name, err)
		}
	}
}

func TestNamedUnknown(t *testing.T) {
	_, err := Named("chatlm")
	if err == nil {
		t.Fatal("Erwartet Fehler fuer unbekanntes Template")
	}

	// der naechstliegende Name wird vorgeschlagen
	if !strings.Contains(err.Error(), "chatml") {
		t.Errorf("Fehler %q enthaelt keinen Vorschlag", err)
	}
}

func TestExecuteLegacy(t *testing.T) {
	tmpl, err := Named("chatml")
	if err != nil {
		t.Fatal(err)
	}

	var b bytes.Buffer
	err = tmpl.Execute(&b, Values{
		Messages: []api.Message{
			{Role: "system", Content: "You are helpful."},
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi there"},
			{Role: "user", Content: "How are you?"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := b.String()
	if !strings.Contains(got, "<|im_start|>user\nHello<|im_end|>") {
		t.Errorf("User-Turn fehlt:\n%s", got)
	}

	// der Prompt muss mit dem Generierungs-Einstieg enden
	if !strings.HasSuffix(got, "<|im_start|>assistant\n") {
		t.Errorf("Prompt endet nicht mit Generierungs-Einstieg:\n%s", got)
	}
}

func TestExecuteMessages(t *testing.T) {
	tmpl, err := Named("qwen")
	if err != nil {
		t.Fatal(err)
	}

	var b bytes.Buffer
	err = tmpl.Execute(&b, Values{
		Messages: []api.Message{
			{Role: "user", Content: "What is the weather?"},
		},
		Tools: []api.Tool{
			{Type: "function", Function: api.ToolFunction{Name: "get_weather"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := b.String()
	if !strings.Contains(got, "get_weather") {
		t.Errorf("Tool-Definition fehlt:\n%s", got)
	}

	if !strings.HasSuffix(got, "<|im_start|>assistant\n") {
		t.Errorf("Prompt endet nicht mit Generierungs-Einstieg:\n%s", got)
	}
}

func TestCollate(t *testing.T) {
	system, msgs := collate([]api.Message{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "b"},
		{Role: "user", Content: "c"},
		{Role: "assistant", Content: "d"},
	})

	if system != "a" {
		t.Errorf("System = %q, erwartet %q", system, "a")
	}

	// aufeinanderfolgende User-Nachrichten werden zusammengefasst
	var roles []string
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	want := []string{"system", "user", "assistant"}
	if len(roles) != len(want) {
		t.Fatalf("Rollen = %v, erwartet %v", roles, want)
	}
	if msgs[1].Content != "b\n\nc" {
		t.Errorf("Zusammengefasster Inhalt = %q", msgs[1].Content)
	}
}

func TestCollateImageTags(t *testing.T) {
	_, msgs := collate([]api.Message{
		{Role: "user", Content: "look", Images: [][]byte{{1}, {2}}},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "and this", Images: [][]byte{{3}}},
	})

	if !strings.Contains(msgs[0].Content, "[img-0]") || !strings.Contains(msgs[0].Content, "[img-1]") {
		t.Errorf("Bild-Tags fehlen: %q", msgs[0].Content)
	}

	// der Zaehler laeuft ueber Nachrichten hinweg weiter
	if !strings.Contains(msgs[2].Content, "[img-2]") {
		t.Errorf("Bild-Tag Zaehler falsch: %q", msgs[2].Content)
	}
}
