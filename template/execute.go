// Package template - Template-Engine fuer den Lokal Dialog-Engine
// Modul execute: Template-Ausfuehrung und Nachrichten-Kollation
package template

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/lokal-ai/lokal/api"
)

type Values struct {
	Messages []api.Message
	Tools    []api.Tool
	Prompt   string
	Response string

	// Think steuert den "extended reasoning" Modus; der Dialog-Runner
	// deaktiviert ihn grundsaetzlich
	Think bool
}

func (t *Template) Execute(w io.Writer, v Values) error {
	system, messages := collate(v.Messages)
	vars, err := t.Vars()
	if err != nil {
		return err
	}

	if slices.Contains(vars, "messages") {
		return t.Template.Execute(w, map[string]any{
			"System":   system,
			"Messages": messages,
			"Tools":    v.Tools,
			"Response": v.Response,
			"Think":    v.Think,
		})
	}

	system = ""
	var b bytes.Buffer
	var prompt, responseStr string
	for _, m := range messages {
		execute := func() error {
			if err := t.Template.Execute(&b, map[string]any{
				"System":   system,
				"Prompt":   prompt,
				"Response": responseStr,
				"Think":    v.Think,
			}); err != nil {
				return err
			}

			system = ""
			prompt = ""
			responseStr = ""
			return nil
		}

		switch m.Role {
		case "system":
			if prompt != "" || responseStr != "" {
				if err := execute(); err != nil {
					return err
				}
			}
			system = m.Content
		case "user":
			if responseStr != "" {
				if err := execute(); err != nil {
					return err
				}
			}
			prompt = m.Content
		case "assistant":
			responseStr = m.Content
		}
	}

	// den Response-Knoten abschneiden, damit der Prompt mit dem
	// Generierungs-Einstieg endet
	var cut bool
	nodes := deleteNode(t.Template.Root.Copy(), func(n parse.Node) bool {
		if field, ok := n.(*parse.FieldNode); ok && slices.Contains(field.Ident, "Response") {
			cut = true
			return false
		}

		return cut
	})

	tree := parse.Tree{Root: nodes.(*parse.ListNode)}
	if err := template.Must(template.New("").AddParseTree("", &tree)).Execute(&b, map[string]any{
		"System":   system,
		"Prompt":   prompt,
		"Response": responseStr,
		"Think":    v.Think,
	}); err != nil {
		return err
	}

	_, err = io.Copy(w, &b)
	return err
}

// collate messages based on role. consecutive messages of the same role are
// merged into a single message (except for tool messages which preserve
// individual metadata). collate also collects and returns all system messages.
// collate adds image tags ([img-%d]) to the content so the chunker can place
// modal chunks at the right positions.
func collate(msgs []api.Message) (string, []*api.Message) {
	var n int
	var system []string
	var collated []*api.Message
	for i := range msgs {
		m := msgs[i]
		if m.Role == "system" {
			system = append(system, m.Content)
		}

		for range m.Images {
			m.Content += fmt.Sprintf(" [img-%d]", n)
			n++
		}

		if len(collated) > 0 && collated[len(collated)-1].Role == m.Role && m.Role != "tool" {
			collated[len(collated)-1].Content += "\n\n" + m.Content
		} else {
			collated = append(collated, &m)
		}
	}

	return strings.Join(system, "\n\n"), collated
}
