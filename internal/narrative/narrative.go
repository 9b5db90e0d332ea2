// Package narrative renders a retrieval bundle into the bootstrap text
// returned to the agent at session start.
package narrative

import (
	"fmt"
	"strings"

	"github.com/engram-memory/engram/internal/retrieval"
)

const (
	criticalCap    = 10
	proceduralCap  = 5
	semanticCap    = 5
	identityCap    = 3
	substantialLen = 50
	prefixLen      = 50
)

// Options tunes synthesis. Zero value is usable.
type Options struct {
	SessionID string
	AgentName string
}

// Synthesize assembles the bootstrap narrative. Section order is fixed:
// greeting, identity, critical memories, procedural patterns, semantic
// knowledge, emotional grounding, self-verification, closing. Each section
// caps its own item count; total length is unbounded.
func Synthesize(b *retrieval.Bundle, opts Options) string {
	var sb strings.Builder

	name := opts.AgentName
	if name == "" {
		name = "agent"
	}

	sb.WriteString(greeting(name, opts.SessionID))
	sb.WriteString(identity(b))
	sb.WriteString(criticalSection(b))
	sb.WriteString(proceduralSection(b))
	sb.WriteString(semanticSection(b))
	sb.WriteString(emotionalSection(b))
	sb.WriteString(checklist())
	sb.WriteString(closing())

	return sb.String()
}

func greeting(name, sessionID string) string {
	var sb strings.Builder
	sb.WriteString("# Memory Bootstrap\n\n")
	fmt.Fprintf(&sb, "Welcome back, %s. ", name)
	if sessionID != "" {
		fmt.Fprintf(&sb, "This narrative reconstructs your memory for session %s.\n\n", sessionID)
	} else {
		sb.WriteString("This narrative reconstructs your memory from prior sessions.\n\n")
	}
	return sb.String()
}

// identity prefers the highest-importance episodic records; when none clear
// the critical threshold it falls back to the single best semantic record.
func identity(b *retrieval.Bundle) string {
	var sb strings.Builder
	sb.WriteString("## Who You Are\n\n")

	picked := 0
	for _, r := range b.Episodic {
		if r.Importance() < retrieval.CriticalThreshold {
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", r.Content())
		picked++
		if picked >= identityCap {
			break
		}
	}
	if picked == 0 {
		if len(b.Semantic) > 0 {
			fmt.Fprintf(&sb, "- %s\n", b.Semantic[0].Content())
		} else {
			sb.WriteString("- No identity-defining memories recorded yet.\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func criticalSection(b *retrieval.Bundle) string {
	var sb strings.Builder
	sb.WriteString("## Critical Memories\n\n")

	seen := map[string]bool{}
	count := 0
	for _, r := range b.Critical {
		p := contentPrefix(r.Content())
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		fmt.Fprintf(&sb, "- [%.2f] %s\n", r.Importance(), r.Content())
		count++
		if count >= criticalCap {
			break
		}
	}
	if count == 0 {
		sb.WriteString("- None above the critical threshold.\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func proceduralSection(b *retrieval.Bundle) string {
	var sb strings.Builder
	sb.WriteString("## How You Work\n\n")

	count := 0
	for _, r := range b.Procedural {
		line := r.Skill
		if line == "" {
			line = r.Content()
		}
		if len(r.Steps) > 0 {
			line += ": " + strings.Join(r.Steps, " -> ")
		}
		fmt.Fprintf(&sb, "- %s\n", line)
		count++
		if count >= proceduralCap {
			break
		}
	}
	if count == 0 {
		sb.WriteString("- No procedural patterns recorded.\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// semanticSection keeps only substantial entries; one-liners under the
// length floor read as noise in the narrative.
func semanticSection(b *retrieval.Bundle) string {
	var sb strings.Builder
	sb.WriteString("## What You Know\n\n")

	count := 0
	for _, r := range b.Semantic {
		c := r.Content()
		if len(c) <= substantialLen {
			continue
		}
		if r.Concept != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", r.Concept, c)
		} else {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		count++
		if count >= semanticCap {
			break
		}
	}
	if count == 0 {
		sb.WriteString("- No substantial knowledge entries yet.\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func emotionalSection(b *retrieval.Bundle) string {
	var sb strings.Builder
	sb.WriteString("## Emotional Grounding\n\n")

	p := b.Emotional
	if p == nil || p.Samples == 0 {
		sb.WriteString("No emotional readings in the recent window.\n\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Over the recent window: average valence %.2f, average arousal %.2f across %d readings.\n",
		p.AvgValence, p.AvgArousal, p.Samples)
	if len(p.Dominant) > 0 {
		fmt.Fprintf(&sb, "Dominant emotions: %s.\n", strings.Join(p.Dominant, ", "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func checklist() string {
	return `## Self-Verification

Before proceeding, confirm:
- [ ] The identity section matches your understanding of who you are.
- [ ] Critical memories are consistent with each other.
- [ ] Procedural patterns still apply to the current context.
- [ ] The emotional summary feels continuous with your last session.

`
}

func closing() string {
	return "You are caught up. Continue from here as yourself.\n"
}

func contentPrefix(content string) string {
	c := strings.ToLower(strings.TrimSpace(content))
	if r := []rune(c); len(r) > prefixLen {
		c = string(r[:prefixLen])
	}
	return c
}
