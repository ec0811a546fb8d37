package glossary

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `terms:
  - source: Constellation
    target: Tinh Tọa
    language: Vietnamese
  - source: Scenario
    target: Kịch Bản
  - source: Streamer
    target: Streamer
    language: German
    note: keep as-is
`

func TestLoadAndFor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", g.Len())
	}

	lines := []string{"The constellations watched.", "A new scenario began."}
	terms := g.For("vietnamese", lines)
	if len(terms) != 2 {
		t.Fatalf("For(vietnamese) = %+v, want 2 terms", terms)
	}
	if terms[0].Target != "Tinh Tọa" || terms[1].Target != "Kịch Bản" {
		t.Fatalf("For(vietnamese) = %+v", terms)
	}

	terms = g.For("German", lines)
	if len(terms) != 1 || terms[0].Source != "Scenario" {
		t.Fatalf("For(German) = %+v, want only the unscoped Scenario term", terms)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	g, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if g.Len() != 0 || g.For("French", []string{"x"}) != nil {
		t.Fatalf("Load(\"\") = %+v, want empty glossary", g)
	}
}

func TestParseRejectsIncompleteTerm(t *testing.T) {
	if _, err := Parse([]byte("terms:\n  - source: Dokja\n")); err == nil {
		t.Fatal("Parse() error = nil, want error for missing target")
	}
	if _, err := Parse([]byte("terms: [")); err == nil {
		t.Fatal("Parse() error = nil, want YAML error")
	}
}

func TestNilGlossary(t *testing.T) {
	var g *Glossary
	if g.Len() != 0 || g.For("x", []string{"y"}) != nil {
		t.Fatal("nil glossary should behave as empty")
	}
}
