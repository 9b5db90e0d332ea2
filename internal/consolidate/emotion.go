// Package consolidate implements scoring, deduplication, and emotion mapping
// over stored memory records.
package consolidate

import "strings"

// affect is a valence/arousal pair.
type affect struct {
	Valence float64
	Arousal float64
}

// Mapper translates emotion labels into valence/arousal pairs. The table is
// built once and never mutated.
type Mapper struct {
	table map[string]affect
}

// NewMapper builds the immutable emotion lookup table.
func NewMapper() *Mapper {
	return &Mapper{table: map[string]affect{
		"joy":          {0.8, 0.7},
		"happiness":    {0.8, 0.6},
		"excitement":   {0.7, 0.9},
		"contentment":  {0.6, 0.3},
		"pride":        {0.6, 0.5},
		"gratitude":    {0.7, 0.4},
		"love":         {0.9, 0.6},
		"trust":        {0.5, 0.3},
		"curiosity":    {0.4, 0.6},
		"anticipation": {0.3, 0.6},
		"surprise":     {0.1, 0.8},
		"calm":         {0.3, 0.1},
		"sadness":      {-0.7, 0.3},
		"grief":        {-0.9, 0.5},
		"anger":        {-0.6, 0.8},
		"frustration":  {-0.5, 0.7},
		"fear":         {-0.7, 0.8},
		"anxiety":      {-0.5, 0.8},
		"disgust":      {-0.6, 0.5},
		"shame":        {-0.6, 0.4},
		"guilt":        {-0.5, 0.4},
		"loneliness":   {-0.6, 0.3},
		"boredom":      {-0.3, 0.1},
		"confusion":    {-0.2, 0.5},
	}}
}

// Map returns the valence/arousal pair for a label. Unrecognized labels map
// to neutral valence and mid arousal.
func (m *Mapper) Map(label string) (valence, arousal float64) {
	a, ok := m.table[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return 0.0, 0.5
	}
	return a.Valence, a.Arousal
}

// Importance derives an importance score from an emotion label as
// max(|valence|, arousal); strongly negative states score as high as
// strongly positive ones.
func (m *Mapper) Importance(label string) float64 {
	v, a := m.Map(label)
	if v < 0 {
		v = -v
	}
	if v > a {
		return v
	}
	return a
}

// Known reports whether label is in the closed label set.
func (m *Mapper) Known(label string) bool {
	_, ok := m.table[strings.ToLower(strings.TrimSpace(label))]
	return ok
}
