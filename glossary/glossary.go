// Package glossary loads fixed term translations from a YAML file so that
// recurring names and concepts are translated the same way in every chunk.
//
// File format:
//
//	terms:
//	  - source: Constellation
//	    target: Tinh Tọa
//	    language: Vietnamese   # optional, applies to every language if empty
//	    note: title of a sponsor
package glossary

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Term is a single glossary entry.
type Term struct {
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	Language string `yaml:"language,omitempty"`
	Note     string `yaml:"note,omitempty"`
}

// Glossary is an ordered list of terms.
type Glossary struct {
	Terms []Term `yaml:"terms"`
}

// Load reads a glossary file. An empty path returns an empty glossary.
func Load(path string) (*Glossary, error) {
	if path == "" {
		return &Glossary{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading glossary: %w", err)
	}
	return Parse(data)
}

// Parse decodes glossary YAML and validates every term.
func Parse(data []byte) (*Glossary, error) {
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing glossary: %w", err)
	}
	for i, t := range g.Terms {
		if strings.TrimSpace(t.Source) == "" || strings.TrimSpace(t.Target) == "" {
			return nil, fmt.Errorf("glossary term %d: source and target are required", i+1)
		}
	}
	return &g, nil
}

// For returns the terms that apply to language and whose source text occurs
// in at least one of lines (case-insensitive). Order follows the file.
func (g *Glossary) For(language string, lines []string) []Term {
	if g == nil || len(g.Terms) == 0 {
		return nil
	}
	text := strings.ToLower(strings.Join(lines, "\n"))

	var out []Term
	for _, t := range g.Terms {
		if t.Language != "" && !strings.EqualFold(t.Language, language) {
			continue
		}
		if strings.Contains(text, strings.ToLower(t.Source)) {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of terms.
func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Terms)
}
