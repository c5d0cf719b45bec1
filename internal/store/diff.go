package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// DiffPayload is the before/after record of one refinement pass.
type DiffPayload struct {
	Original string `json:"original"`
	Edited   string `json:"edited"`
}

// Diff is one entry of a lineage's append-only edit trail. Diff
// versions advance monotonically per key, independent of (though in
// practice in step with) the artifact version counter.
type Diff struct {
	ID        int64
	Key       string
	Version   int
	Payload   DiffPayload
	CreatedAt int64 // Unix millis
}

// AppendDiff records one edit pass for key's lineage and returns the
// diff version it was assigned.
func (s *Store) AppendDiff(key Key, payload DiffPayload) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding diff payload: %w", err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning diff write: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM diffs WHERE key = ?`, key.String(),
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("reading diff version for %s: %w", key, err)
	}

	version := current + 1
	_, err = tx.Exec(
		`INSERT INTO diffs (key, version, payload, created_at) VALUES (?, ?, ?, ?)`,
		key.String(), version, string(data), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("writing diff %s v%d: %w", key, version, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing diff %s v%d: %w", key, version, err)
	}
	return version, nil
}

// Diffs returns key's edit trail in ascending version order.
func (s *Store) Diffs(key Key) ([]Diff, error) {
	rows, err := s.conn.Query(
		`SELECT id, key, version, payload, created_at
		 FROM diffs WHERE key = ? ORDER BY version ASC`, key.String())
	if err != nil {
		return nil, fmt.Errorf("listing diffs for %s: %w", key, err)
	}
	defer rows.Close()

	var out []Diff
	for rows.Next() {
		var d Diff
		var payload string
		if err := rows.Scan(&d.ID, &d.Key, &d.Version, &payload, &d.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &d.Payload); err != nil {
			return nil, fmt.Errorf("decoding diff %s v%d: %w", d.Key, d.Version, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
