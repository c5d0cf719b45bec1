package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind tags how an artifact's content should be interpreted.
type ValueKind string

const (
	KindText       ValueKind = "text"
	KindStructured ValueKind = "json"
)

// Value is a tagged artifact payload: either raw prose or a validated
// JSON document. Consumers switch on Kind instead of probing content.
type Value struct {
	Kind ValueKind
	Text string          // set when Kind == KindText
	Doc  json.RawMessage // set when Kind == KindStructured
}

// TextValue wraps plain text.
func TextValue(text string) Value {
	return Value{Kind: KindText, Text: text}
}

// StructuredValue wraps a JSON document. Returns an error when the
// payload is not valid JSON, so malformed documents never reach the store.
func StructuredValue(doc []byte) (Value, error) {
	if !json.Valid(doc) {
		return Value{}, fmt.Errorf("structured value is not valid JSON")
	}
	return Value{Kind: KindStructured, Doc: json.RawMessage(doc)}, nil
}

// Raw returns the serialized content regardless of kind.
func (v Value) Raw() string {
	if v.Kind == KindStructured {
		return string(v.Doc)
	}
	return v.Text
}

// Metadata records provenance for one artifact version.
type Metadata struct {
	Stage  string `json:"stage,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	BookID int64  `json:"book_id,omitempty"`
}

// Artifact is one immutable version of a keyed lineage.
type Artifact struct {
	ID        int64
	Key       string
	Version   int
	Value     Value
	Meta      Metadata
	CreatedAt int64 // Unix millis
}

// WriteArtifact appends a new version for key and returns it. Versions
// are allocated inside an immediate transaction so a lineage is always
// a gap-free 1..N sequence even if a write crashes mid-way.
func (s *Store) WriteArtifact(key Key, value Value, meta Metadata) (int, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("encoding artifact metadata: %w", err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning write: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM artifacts WHERE key = ?`, key.String(),
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("reading current version for %s: %w", key, err)
	}

	version := current + 1
	_, err = tx.Exec(
		`INSERT INTO artifacts (key, version, kind, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.String(), version, string(value.Kind), value.Raw(), string(metaJSON),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("writing %s v%d: %w", key, version, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing %s v%d: %w", key, version, err)
	}
	return version, nil
}

// scanArtifact scans a row with the standard artifact column order.
func scanArtifact(scanner interface{ Scan(dest ...any) error }) (Artifact, error) {
	var a Artifact
	var kind, content string
	var metaJSON sql.NullString
	err := scanner.Scan(&a.ID, &a.Key, &a.Version, &kind, &content, &metaJSON, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	if ValueKind(kind) == KindStructured {
		a.Value = Value{Kind: KindStructured, Doc: json.RawMessage(content)}
	} else {
		a.Value = TextValue(content)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &a.Meta); err != nil {
			return a, fmt.Errorf("decoding metadata for %s v%d: %w", a.Key, a.Version, err)
		}
	}
	return a, nil
}

// Latest returns the highest version for key, or nil when the key has
// no versions. Absence is the idempotency signal, not an error.
func (s *Store) Latest(key Key) (*Artifact, error) {
	row := s.conn.QueryRow(
		`SELECT id, key, version, kind, content, metadata, created_at
		 FROM artifacts WHERE key = ? ORDER BY version DESC LIMIT 1`, key.String())

	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return &a, nil
}

// AtVersion returns a specific version for key, or nil when absent.
func (s *Store) AtVersion(key Key, version int) (*Artifact, error) {
	row := s.conn.QueryRow(
		`SELECT id, key, version, kind, content, metadata, created_at
		 FROM artifacts WHERE key = ? AND version = ?`, key.String(), version)

	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s v%d: %w", key, version, err)
	}
	return &a, nil
}

// Versions returns every version for key in ascending version order.
func (s *Store) Versions(key Key) ([]Artifact, error) {
	rows, err := s.conn.Query(
		`SELECT id, key, version, kind, content, metadata, created_at
		 FROM artifacts WHERE key = ? ORDER BY version ASC`, key.String())
	if err != nil {
		return nil, fmt.Errorf("listing versions for %s: %w", key, err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// VersionCount returns how many versions exist for key (0 when none).
func (s *Store) VersionCount(key Key) (int, error) {
	var n int
	err := s.conn.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM artifacts WHERE key = ?`, key.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting versions for %s: %w", key, err)
	}
	return n, nil
}

// KeyInfo summarizes one lineage under a prefix.
type KeyInfo struct {
	Key           string
	LatestVersion int
	UpdatedAt     int64
}

// SearchPrefix lists every lineage at or under prefix with its latest
// version, ordered by key.
func (s *Store) SearchPrefix(prefix Key) ([]KeyInfo, error) {
	rows, err := s.conn.Query(
		`SELECT key, MAX(version), MAX(created_at)
		 FROM artifacts WHERE key = ? OR key LIKE ?
		 GROUP BY key ORDER BY key`,
		prefix.String(), prefix.prefixPattern())
	if err != nil {
		return nil, fmt.Errorf("searching prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []KeyInfo
	for rows.Next() {
		var info KeyInfo
		if err := rows.Scan(&info.Key, &info.LatestVersion, &info.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteKey removes every version (and its diff trail) for one key.
func (s *Store) DeleteKey(key Key) error {
	return s.deleteWhere(key.String(), "")
}

// DeletePrefix removes every artifact and diff at or under prefix.
// Used only for whole-book teardown; single versions are never rolled back.
func (s *Store) DeletePrefix(prefix Key) error {
	return s.deleteWhere(prefix.String(), prefix.prefixPattern())
}

func (s *Store) deleteWhere(exact, pattern string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	cond := `key = ?`
	args := []any{exact}
	if pattern != "" {
		cond = `key = ? OR key LIKE ?`
		args = []any{exact, pattern}
	}
	if _, err := tx.Exec(`DELETE FROM diffs WHERE `+cond, args...); err != nil {
		return fmt.Errorf("deleting diffs under %s: %w", exact, err)
	}
	if _, err := tx.Exec(`DELETE FROM artifacts WHERE `+cond, args...); err != nil {
		return fmt.Errorf("deleting artifacts under %s: %w", exact, err)
	}
	return tx.Commit()
}
