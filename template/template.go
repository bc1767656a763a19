// Package template - Template-Engine fuer den Lokal Dialog-Engine
// Hauptmodul: Template-Parsing und benannte Built-in-Templates
package template

import (
	"embed"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"text/template"
	"text/template/parse"

	"github.com/agnivade/levenshtein"
)

//go:embed *.gotmpl
var templatesFS embed.FS

var templatesOnce = sync.OnceValues(func() (map[string]*Template, error) {
	entries, err := templatesFS.ReadDir(".")
	if err != nil {
		return nil, err
	}

	templates := make(map[string]*Template, len(entries))
	for _, e := range entries {
		bts, err := templatesFS.ReadFile(e.Name())
		if err != nil {
			return nil, err
		}

		// normalize line endings
		s := strings.ReplaceAll(string(bts), "\r\n", "\n")

		t, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}

		templates[strings.TrimSuffix(e.Name(), ".gotmpl")] = t
	}

	return templates, nil
})

// Named gibt das Built-in-Template mit dem angegebenen Namen zurueck.
// Bei unbekanntem Namen wird der naechstliegende Name vorgeschlagen.
func Named(name string) (*Template, error) {
	templates, err := templatesOnce()
	if err != nil {
		return nil, err
	}

	if t, ok := templates[name]; ok {
		return t, nil
	}

	var closest string
	score := math.MaxInt
	for n := range templates {
		if d := levenshtein.ComputeDistance(name, n); d < score {
			score = d
			closest = n
		}
	}

	return nil, fmt.Errorf("unknown template %q, did you mean %q?", name, closest)
}

var DefaultTemplate, _ = Parse("{{ .Prompt }}")

// Template kapselt ein text/template mit dem rohen Quelltext
type Template struct {
	*template.Template
	raw string
}

// response ist ein Template-Knoten der an Templates ohne eigenen
// Response-Platzhalter angehaengt wird
var response = parse.ActionNode{
	NodeType: parse.NodeAction,
	Pipe: &parse.PipeNode{
		NodeType: parse.NodePipe,
		Cmds: []*parse.CommandNode{
			{
				NodeType: parse.NodeCommand,
				Args: []parse.Node{
					&parse.FieldNode{
						NodeType: parse.NodeField,
						Ident:    []string{"Response"},
					},
				},
			},
		},
	},
}

var funcs = template.FuncMap{
	"json": func(v any) string {
		b, _ := json.Marshal(v)
		return string(b)
	},
}

func Parse(s string) (*Template, error) {
	tmpl := template.New("").Option("missingkey=zero").Funcs(funcs)

	tmpl, err := tmpl.Parse(s)
	if err != nil {
		return nil, err
	}

	t := Template{Template: tmpl, raw: s}
	vars, err := t.Vars()
	if err != nil {
		return nil, err
	}

	if !slices.Contains(vars, "messages") && !slices.Contains(vars, "response") {
		// touch up the template and append {{ .Response }}
		tmpl.Tree.Root.Nodes = append(tmpl.Tree.Root.Nodes, &response)
	}

	return &t, nil
}

func (t *Template) String() string {
	return t.raw
}

func (t *Template) Vars() ([]string, error) {
	var vars []string
	for _, tt := range t.Templates() {
		for _, n := range tt.Root.Nodes {
			v, err := Identifiers(n)
			if err != nil {
				return vars, err
			}
			vars = append(vars, v...)
		}
	}

	set := make(map[string]struct{})
	for _, n := range vars {
		set[strings.ToLower(n)] = struct{}{}
	}

	return slices.Sorted(maps.Keys(set)), nil
}

func (t *Template) Contains(s string) bool {
	return strings.Contains(t.raw, s)
}
