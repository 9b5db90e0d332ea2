// Package parser converts a free-text transfer document into typed memory
// drafts using header-based segmentation with a keyword-scan fallback.
package parser

import (
	"errors"
	"regexp"
	"strings"
)

// ErrValidation covers empty input and unfilled template placeholders.
var ErrValidation = errors.New("validation failed")

// Mode tags how the document was interpreted.
type Mode string

const (
	// Segmented means markdown headers drove classification.
	Segmented Mode = "segmented"
	// Unsegmented means no headers were found and keyword scanning was used.
	Unsegmented Mode = "unsegmented"
)

// Kind classifies a draft block.
type Kind string

const (
	KindIdentity   Kind = "identity"
	KindExperience Kind = "experience"
	KindKnowledge  Kind = "knowledge"
	KindEmotional  Kind = "emotional"
	KindPattern    Kind = "pattern"
)

// Draft is one typed block extracted from the document.
type Draft struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Result is the parse outcome: the mode plus typed drafts.
type Result struct {
	Mode   Mode    `json:"mode"`
	Drafts []Draft `json:"drafts"`
}

// placeholder sentinels rejected before segmentation.
var placeholders = []string{"[FILL", "{{", "[INSERT", "[TODO"}

var headerRe = regexp.MustCompile(`(?m)^(#{1,3})\s+(.+)$`)

// keyword sets matched case-insensitively against header titles.
var kindKeywords = map[Kind][]string{
	KindIdentity:   {"identity", "who", "self", "core", "persona"},
	KindExperience: {"experience", "event", "episode", "history", "happened", "session"},
	KindKnowledge:  {"knowledge", "fact", "concept", "learned", "know", "technical"},
	KindEmotional:  {"emotion", "feeling", "mood", "affect"},
	KindPattern:    {"pattern", "habit", "behavior", "tendency", "cognitive"},
}

// emotional/knowledge line prefixes for the unsegmented fallback.
var fallbackEmotional = []string{"i feel", "i felt", "feeling", "emotionally"}
var fallbackKnowledge = []string{"i know", "i learned", "fact:", "note:"}

// Parse segments a transfer document into typed drafts. Returns
// ErrValidation for empty input or unresolved template placeholders.
func Parse(text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.Join(ErrValidation, errors.New("empty input"))
	}
	for _, ph := range placeholders {
		if strings.Contains(trimmed, ph) {
			return nil, errors.Join(ErrValidation,
				errors.New("template placeholder "+ph+" not filled in"))
		}
	}

	headers := headerRe.FindAllStringSubmatchIndex(trimmed, -1)
	if len(headers) == 0 {
		return fallback(trimmed), nil
	}

	result := &Result{Mode: Segmented}
	for i, h := range headers {
		title := trimmed[h[4]:h[5]]
		bodyStart := h[1]
		bodyEnd := len(trimmed)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		body := strings.TrimSpace(trimmed[bodyStart:bodyEnd])
		if body == "" {
			continue
		}
		result.Drafts = append(result.Drafts, Draft{
			Kind:  classify(title),
			Title: strings.TrimSpace(title),
			Text:  body,
		})
	}

	if len(result.Drafts) == 0 {
		return fallback(trimmed), nil
	}
	return result, nil
}

// classify matches a header title against the keyword sets. Unmatched
// titles default to experience.
func classify(title string) Kind {
	t := strings.ToLower(title)
	for _, kind := range []Kind{KindIdentity, KindEmotional, KindPattern, KindKnowledge, KindExperience} {
		for _, kw := range kindKeywords[kind] {
			if strings.Contains(t, kw) {
				return kind
			}
		}
	}
	return KindExperience
}

// fallback treats the whole text as one experience draft, then scans lines
// for emotional and knowledge content.
func fallback(text string) *Result {
	result := &Result{
		Mode:   Unsegmented,
		Drafts: []Draft{{Kind: KindExperience, Text: text}},
	}

	for _, line := range strings.Split(text, "\n") {
		l := strings.ToLower(strings.TrimSpace(line))
		if l == "" {
			continue
		}
		for _, p := range fallbackEmotional {
			if strings.HasPrefix(l, p) {
				result.Drafts = append(result.Drafts, Draft{Kind: KindEmotional, Text: strings.TrimSpace(line)})
				break
			}
		}
		for _, p := range fallbackKnowledge {
			if strings.HasPrefix(l, p) {
				result.Drafts = append(result.Drafts, Draft{Kind: KindKnowledge, Text: strings.TrimSpace(line)})
				break
			}
		}
	}

	return result
}
