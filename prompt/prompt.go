// Package prompt builds translation prompts for a chunk of lines and parses
// the model's JSON answer back into one string per line.
//
// Every source line is sent as one paragraph wrapped in <paragraph> tags.
// The model answers with a JSON list of {"line": n, "text": [sentences...]};
// the sentences of a paragraph are joined with a space.
package prompt

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/minios-linux/batchtr/glossary"
)

// Paragraph markers wrapped around every source line.
const (
	OpenTag  = "<paragraph>"
	CloseTag = "</paragraph>"
)

// DefaultSystemPrompt is the translator instruction. {{targetLang}} is
// replaced with the target language name.
const DefaultSystemPrompt = `You are an expert literary translator. Translate the text you are given into {{targetLang}} with the highest quality.

TRANSLATION PRINCIPLES:
- Preserve the storytelling style, tone and intent of the source text.
- Produce natural, fluent {{targetLang}}; do not translate word-for-word.
- Keep proper names unchanged unless the glossary says otherwise.
- Use the same translation for recurring names, skills and concepts.
- Localize idioms and cultural references into {{targetLang}} equivalents.
- Do not leave words of the source language in the translation.`

// Prompt is a built request: a system instruction plus the user message.
type Prompt struct {
	System string
	User   string
}

// Builder builds prompts. The zero value uses DefaultSystemPrompt and no glossary.
type Builder struct {
	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
	// Glossary supplies fixed term translations.
	Glossary *glossary.Glossary
}

// Build returns the prompt for translating lines into language.
func (b Builder) Build(language string, lines []string) Prompt {
	system := b.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	system = strings.ReplaceAll(system, "{{targetLang}}", language)

	var user strings.Builder
	fmt.Fprintf(&user, "Translate it into %s. Please output the following JSON.\n", language)
	fmt.Fprintf(&user, "A string in `%s` tag to `%s` tag is one paragraph.\n", OpenTag, CloseTag)
	user.WriteString("If a paragraph of input is translated and consists of multiple sentences, output an array consisting of multiple strings.\n")
	fmt.Fprintf(&user, "There are %d paragraphs of input, please output %d paragraphs.\n", len(lines), len(lines))
	user.WriteString("Using this JSON schema:\n")
	user.WriteString(`Paragraph = {"line": number, "text": list[string]}` + "\n")
	user.WriteString("Return a `list[Paragraph]`.\n")
	fmt.Fprintf(&user, "Please remove `%s` and `%s` tags from the translation result.\n", OpenTag, CloseTag)

	if terms := b.Glossary.For(language, lines); len(terms) > 0 {
		user.WriteString("\nAlways use these translations:\n")
		for _, t := range terms {
			if t.Note != "" {
				fmt.Fprintf(&user, "- %s => %s (%s)\n", t.Source, t.Target, t.Note)
			} else {
				fmt.Fprintf(&user, "- %s => %s\n", t.Source, t.Target)
			}
		}
	}

	user.WriteString("\nHere is the text to translate:\n")
	for _, line := range Wrap(lines) {
		user.WriteString(line)
		user.WriteByte('\n')
	}

	return Prompt{System: system, User: user.String()}
}

// Fingerprint identifies the system prompt and glossary b builds with. Two
// builders with the same fingerprint produce the same prompts.
func (b Builder) Fingerprint() string {
	h := sha256.New()
	system := b.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	fmt.Fprintf(h, "%q\n", system)
	if b.Glossary != nil {
		for _, t := range b.Glossary.Terms {
			fmt.Fprintf(h, "%q %q %q %q\n", t.Source, t.Target, t.Language, t.Note)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// Wrap surrounds every line with the paragraph markers.
func Wrap(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = OpenTag + l + CloseTag
	}
	return out
}
