package store

import (
	"context"
	"sort"
	"time"

	"github.com/engram-memory/engram/internal/model"
)

// LogEmotionalState appends an affect log entry. Entries are never mutated.
func (s *SQLiteStore) LogEmotionalState(ctx context.Context, st model.EmotionalState) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	at := st.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO emotional_states (session_id, at, valence, arousal, dominant, context)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			st.SessionID, at.Format(time.RFC3339), st.Valence, st.Arousal,
			nullable(st.Dominant), nullable(st.Context))
		return err
	})
}

// EmotionalProfile averages valence/arousal over the trailing window and
// surfaces the three most frequent dominant-emotion labels.
func (s *SQLiteStore) EmotionalProfile(ctx context.Context, window time.Duration) (*model.EmotionalProfile, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	since := time.Now().UTC().Add(-window).Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx,
		`SELECT valence, arousal, COALESCE(dominant, '') FROM emotional_states WHERE at >= ?`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profile := &model.EmotionalProfile{}
	freq := map[string]int{}
	var sumV, sumA float64
	for rows.Next() {
		var v, a float64
		var label string
		if err := rows.Scan(&v, &a, &label); err != nil {
			return nil, err
		}
		sumV += v
		sumA += a
		profile.Samples++
		if label != "" {
			freq[label]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if profile.Samples > 0 {
		profile.AvgValence = sumV / float64(profile.Samples)
		profile.AvgArousal = sumA / float64(profile.Samples)
	}

	labels := make([]string, 0, len(freq))
	for l := range freq {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if freq[labels[i]] != freq[labels[j]] {
			return freq[labels[i]] > freq[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) > 3 {
		labels = labels[:3]
	}
	profile.Dominant = labels

	return profile, nil
}
