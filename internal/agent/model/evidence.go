package model

import (
	"fmt"
	"strings"
)

// Metadata keys understood by the service.
const (
	MetaSource = "source"
	MetaTitle  = "title"
	MetaPath   = "path"
	MetaURLs   = "urls"
	MetaChunk  = "chunk"
)

// maxSnippetLen bounds the snippet returned with each cited source.
const maxSnippetLen = 1000

// Evidence is an immutable unit of retrieved or synthesized text.
// Build it with NewEvidence; never mutate Content or Metadata afterwards.
type Evidence struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvidence copies metadata so later changes by the caller cannot leak in.
func NewEvidence(content string, metadata map[string]string) Evidence {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Evidence{Content: content, Metadata: md}
}

// Meta returns a metadata value, or "".
func (e Evidence) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Source returns the citation label: source, then title, then path.
func (e Evidence) Source() string {
	for _, k := range []string{MetaSource, MetaTitle, MetaPath} {
		if v := strings.TrimSpace(e.Meta(k)); v != "" {
			return v
		}
	}
	return ""
}

// Source is one cited piece of evidence in an Answer.
type Source struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// SourcesFrom builds citations for the evidence an answer was generated from.
// Unlabelled evidence is named document-N (1-based).
func SourcesFrom(evidence []Evidence) []Source {
	out := make([]Source, 0, len(evidence))
	for i, ev := range evidence {
		label := ev.Source()
		if label == "" {
			label = fmt.Sprintf("document-%d", i+1)
		}
		out = append(out, Source{Source: label, Snippet: snippet(ev.Content)})
	}
	return out
}

// snippet collapses whitespace runs and keeps the first maxSnippetLen runes.
func snippet(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	if r := []rune(s); len(r) > maxSnippetLen {
		s = string(r[:maxSnippetLen])
	}
	return s
}
