package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath            string        `json:"db_path"`
	DBSizeBytes       int64         `json:"db_size_bytes"`
	TotalRecords      int           `json:"total_records"`
	TotalObservations int           `json:"total_observations"`
	EmotionalStates   int           `json:"emotional_states"`
	Patterns          int           `json:"patterns"`
	Sessions          int           `json:"sessions"`
	Families          []FamilyStats `json:"families"`
}

// FamilyStats holds per-family counts.
type FamilyStats struct {
	Family string `json:"family"`
	Count  int    `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.TotalRecords)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&st.TotalObservations)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emotional_states`).Scan(&st.EmotionalStates)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cognitive_patterns`).Scan(&st.Patterns)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions)

	rows, err := s.db.QueryContext(ctx,
		`SELECT family, COUNT(*) AS cnt FROM memories GROUP BY family ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var f FamilyStats
		rows.Scan(&f.Family, &f.Count)
		st.Families = append(st.Families, f)
	}

	return st, nil
}
