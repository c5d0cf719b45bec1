package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// BookStatus is the coarse, human-facing progress of a book.
type BookStatus string

const (
	StatusNew        BookStatus = "new"
	StatusInProgress BookStatus = "in_progress"
	StatusDone       BookStatus = "done"
)

// Book is the root unit of work. Stage is the index of the last
// completed pipeline stage; per-stage resume still goes through the
// artifact idempotency checks, this counter only feeds status display.
type Book struct {
	ID        int64
	Title     string
	Status    BookStatus
	Stage     int
	Metadata  map[string]string
	CreatedAt int64 // Unix millis
	UpdatedAt int64 // Unix millis
}

// Key returns the artifact key prefix owning all of the book's artifacts.
func (b *Book) Key() Key {
	return BookKey(b.ID)
}

func scanBook(scanner interface{ Scan(dest ...any) error }) (Book, error) {
	var b Book
	var status string
	var metaJSON sql.NullString
	err := scanner.Scan(&b.ID, &b.Title, &status, &b.Stage, &metaJSON, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.Status = BookStatus(status)
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &b.Metadata); err != nil {
			return b, fmt.Errorf("decoding metadata for book %d: %w", b.ID, err)
		}
	}
	return b, nil
}

// CreateBook registers a new book and returns it.
func (s *Store) CreateBook(title string) (*Book, error) {
	now := time.Now().UnixMilli()
	res, err := s.conn.Exec(
		`INSERT INTO books (title, status, stage, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		title, string(StatusNew), now, now)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading new book id: %w", err)
	}
	return s.GetBook(id)
}

// GetBook returns a book by id, or nil when absent.
func (s *Store) GetBook(id int64) (*Book, error) {
	row := s.conn.QueryRow(
		`SELECT id, title, status, stage, metadata, created_at, updated_at
		 FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading book %d: %w", id, err)
	}
	return &b, nil
}

// ListBooks returns all books, newest first.
func (s *Store) ListBooks() ([]Book, error) {
	rows, err := s.conn.Query(
		`SELECT id, title, status, stage, metadata, created_at, updated_at
		 FROM books ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindBooksByTitle matches books whose title contains the query
// (case-insensitive via LIKE), newest first.
func (s *Store) FindBooksByTitle(query string) ([]Book, error) {
	rows, err := s.conn.Query(
		`SELECT id, title, status, stage, metadata, created_at, updated_at
		 FROM books WHERE title LIKE ? ORDER BY created_at DESC`, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("searching books: %w", err)
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RenameBook updates a book's display title.
func (s *Store) RenameBook(id int64, title string) error {
	_, err := s.conn.Exec(
		`UPDATE books SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("renaming book %d: %w", id, err)
	}
	return nil
}

// SetBookProgress records the last completed stage index and status.
func (s *Store) SetBookProgress(id int64, stage int, status BookStatus) error {
	_, err := s.conn.Exec(
		`UPDATE books SET stage = ?, status = ?, updated_at = ? WHERE id = ?`,
		stage, string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating progress for book %d: %w", id, err)
	}
	return nil
}

// SetBookMetadata replaces the book's metadata map.
func (s *Store) SetBookMetadata(id int64, meta map[string]string) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata for book %d: %w", id, err)
	}
	_, err = s.conn.Exec(
		`UPDATE books SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating metadata for book %d: %w", id, err)
	}
	return nil
}

// DeleteBook removes the book row and cascades over every artifact and
// diff under the book's key prefix. Artifacts of other books are untouched.
func (s *Store) DeleteBook(id int64) error {
	if err := s.DeletePrefix(BookKey(id)); err != nil {
		return err
	}
	if _, err := s.conn.Exec(`DELETE FROM books WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting book %d: %w", id, err)
	}
	return nil
}
