/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package sqlstore is the relational backend. It runs over database/sql
// with either the pgx driver (networked postgres) or the CGO-free sqlite
// driver (tests, single-machine use). Every query scopes its rows so they
// are released on all exit paths; leaking cursors under sustained import
// load is how a connection pool dies.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"bookvault/internal/domain"
	applog "bookvault/internal/log"
	"bookvault/internal/storage"
)

const (
	connectTimeout = 5 * time.Second
	probeTimeout   = 2 * time.Second

	// maxSearchLen caps caller-supplied search input so no pathological
	// pattern reaches the engine.
	maxSearchLen = 200
)

// Store implements storage.Backend over a SQL database.
type Store struct {
	d   dialect
	dsn string
	db  *sql.DB
	log *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// New selects the dialect for driver ("postgres" or "sqlite") and prepares
// a store for dsn. An unsupported driver is a construction-time error.
func New(driver, dsn string) (*Store, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	return &Store{d: d, dsn: dsn, log: applog.WithComponent("sqlstore").With(slog.String("dialect", d.name))}, nil
}

// Connect opens the database, verifies it with a ping and ensures the
// schema exists. Idempotent: a connected store returns nil immediately.
func (s *Store) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open(s.d.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if s.d.name == "sqlite" {
		// the embedded engine serializes writers anyway
		db.SetMaxOpenConns(1)
	}
	pctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping db: %w: %w", storage.ErrUnavailable, err)
	}
	if err := ensureSchema(pctx, db, s.d); err != nil {
		_ = db.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.db = db
	s.log.Info("connected")
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Available issues a lightweight probe. It never propagates a failure;
// transient errors simply read as false.
func (s *Store) Available(ctx context.Context) bool {
	if s.db == nil {
		if err := s.Connect(ctx); err != nil {
			return false
		}
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return s.db.PingContext(pctx) == nil
}

func ensureSchema(ctx context.Context, db *sql.DB, d dialect) error {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS books (
			id        %s,
			title     TEXT NOT NULL,
			hash      TEXT NOT NULL,
			author_id TEXT NOT NULL DEFAULT '',
			degraded  BOOLEAN NOT NULL DEFAULT FALSE
		)`, d.serialPK),
		// hash uniqueness closes the concurrent-importer dedup gap:
		// a second importer's insert conflicts and reads as a duplicate
		`CREATE UNIQUE INDEX IF NOT EXISTS books_hash_uq ON books(hash)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS books_title_uq ON books(LOWER(title))`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pages (
			id          %s,
			book_id     BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			page_number INTEGER NOT NULL,
			content     TEXT NOT NULL
		)`, d.serialPK),
		`CREATE INDEX IF NOT EXISTS pages_book_idx ON pages(book_id, page_number)`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ddl: %w", err)
		}
	}
	return nil
}

func (s *Store) ready() error {
	if s.db == nil {
		return fmt.Errorf("%w: not connected", storage.ErrUnavailable)
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Book, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT id, title, hash, author_id FROM books ORDER BY id`))
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	var books []domain.Book
	byID := map[int64]int{}
	func() {
		defer rows.Close()
		for rows.Next() {
			var b domain.Book
			if err = rows.Scan(&b.ID, &b.Title, &b.Hash, &b.AuthorID); err != nil {
				return
			}
			byID[b.ID] = len(books)
			books = append(books, b)
		}
		err = rows.Err()
	}()
	if err != nil {
		return nil, fmt.Errorf("scan books: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT id, book_id, page_number, content FROM pages ORDER BY book_id, page_number`))
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	func() {
		defer prows.Close()
		for prows.Next() {
			var p domain.Page
			if err = prows.Scan(&p.ID, &p.BookID, &p.PageNumber, &p.Content); err != nil {
				return
			}
			if i, ok := byID[p.BookID]; ok {
				books[i].Pages = append(books[i].Pages, p)
			}
		}
		err = prows.Err()
	}()
	if err != nil {
		return nil, fmt.Errorf("scan pages: %w", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

func (s *Store) FindByTitle(ctx context.Context, title string) (*domain.Book, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var b domain.Book
	err := s.db.QueryRowContext(ctx, s.d.rebind(
		`SELECT id, title, hash, author_id FROM books WHERE LOWER(title) = LOWER(?)`), title).
		Scan(&b.ID, &b.Title, &b.Hash, &b.AuthorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find book: %w", err)
	}
	pages, err := s.pagesByBookID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Pages = pages
	return &b, nil
}

func (s *Store) pagesByBookID(ctx context.Context, bookID int64) ([]domain.Page, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT id, book_id, page_number, content FROM pages WHERE book_id = ? ORDER BY page_number`), bookID)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()
	var pages []domain.Page
	for rows.Next() {
		var p domain.Page
		if err := rows.Scan(&p.ID, &p.BookID, &p.PageNumber, &p.Content); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (s *Store) Insert(ctx context.Context, b *domain.Book, degraded bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	exists, err := s.HashExists(ctx, b.Hash)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrDuplicateContent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	err = tx.QueryRowContext(ctx, s.d.rebind(
		`INSERT INTO books (title, hash, author_id, degraded) VALUES (?, ?, ?, ?) RETURNING id`),
		b.Title, b.Hash, b.AuthorID, degraded).Scan(&b.ID)
	if err != nil {
		if name := s.d.duplicate(err); name != "" {
			if strings.Contains(name, "hash") {
				// lost the race to another importer; same outcome as
				// the explicit hash check
				return storage.ErrDuplicateContent
			}
			return fmt.Errorf("%w: %q", storage.ErrDuplicateTitle, b.Title)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	for i := range b.Pages {
		b.Pages[i].BookID = b.ID
		if b.Pages[i].PageNumber == 0 {
			b.Pages[i].PageNumber = i + 1
		}
		err = tx.QueryRowContext(ctx, s.d.rebind(
			`INSERT INTO pages (book_id, page_number, content) VALUES (?, ?, ?) RETURNING id`),
			b.ID, b.Pages[i].PageNumber, b.Pages[i].Content).Scan(&b.Pages[i].ID)
		if err != nil {
			return fmt.Errorf("insert page %d: %w", b.Pages[i].PageNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, b *domain.Book) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.d.rebind(
		`UPDATE books SET title = ?, hash = ?, author_id = ? WHERE id = ?`),
		b.Title, b.Hash, b.AuthorID, b.ID)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	// update replaces the full page set
	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM pages WHERE book_id = ?`), b.ID); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	for i := range b.Pages {
		b.Pages[i].BookID = b.ID
		if b.Pages[i].PageNumber == 0 {
			b.Pages[i].PageNumber = i + 1
		}
		err = tx.QueryRowContext(ctx, s.d.rebind(
			`INSERT INTO pages (book_id, page_number, content) VALUES (?, ?, ?) RETURNING id`),
			b.ID, b.Pages[i].PageNumber, b.Pages[i].Content).Scan(&b.Pages[i].ID)
		if err != nil {
			return fmt.Errorf("insert page %d: %w", b.Pages[i].PageNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, title string) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, s.d.rebind(
		`SELECT id FROM books WHERE LOWER(title) = LOWER(?)`), title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("resolve title: %w", err)
	}
	// delete pages explicitly; sqlite enforces the cascade only with the
	// foreign_keys pragma enabled per connection
	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM pages WHERE book_id = ?`), id); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM books WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *Store) HashExists(ctx context.Context, hash string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}
	var n int64
	err := s.db.QueryRowContext(ctx, s.d.rebind(
		`SELECT COUNT(1) FROM books WHERE hash = ?`), hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("hash lookup: %w", err)
	}
	return n > 0, nil
}

func (s *Store) SearchContent(ctx context.Context, text string) ([]storage.Match, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) > maxSearchLen {
		text = string([]rune(text)[:maxSearchLen])
	}
	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT b.title, p.page_number, p.content
		   FROM pages p JOIN books b ON b.id = p.book_id
		  WHERE LOWER(p.content) LIKE ? ESCAPE '\'
		  ORDER BY b.title, p.page_number`), pattern)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()
	var out []storage.Match
	for rows.Next() {
		var m storage.Match
		var content string
		if err := rows.Scan(&m.Title, &m.PageNumber, &content); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Content = storage.Excerpt(content, text)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func (s *Store) AddPage(ctx context.Context, bookID int64, p domain.Page) error {
	if err := s.ready(); err != nil {
		return err
	}
	var n int64
	err := s.db.QueryRowContext(ctx, s.d.rebind(
		`SELECT COUNT(1) FROM books WHERE id = ?`), bookID).Scan(&n)
	if err != nil {
		return fmt.Errorf("resolve book: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	if p.PageNumber == 0 {
		err = s.db.QueryRowContext(ctx, s.d.rebind(
			`SELECT COALESCE(MAX(page_number), 0) + 1 FROM pages WHERE book_id = ?`), bookID).
			Scan(&p.PageNumber)
		if err != nil {
			return fmt.Errorf("next page number: %w", err)
		}
	}
	err = s.db.QueryRowContext(ctx, s.d.rebind(
		`INSERT INTO pages (book_id, page_number, content) VALUES (?, ?, ?) RETURNING id`),
		bookID, p.PageNumber, p.Content).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *Store) PagesOf(ctx context.Context, title string) ([]domain.Page, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT p.id, p.book_id, p.page_number, p.content
		   FROM pages p JOIN books b ON b.id = p.book_id
		  WHERE LOWER(b.title) = LOWER(?)
		  ORDER BY p.page_number`), title)
	if err != nil {
		return nil, fmt.Errorf("pages of: %w", err)
	}
	defer rows.Close()
	var pages []domain.Page
	for rows.Next() {
		var p domain.Page
		if err := rows.Scan(&p.ID, &p.BookID, &p.PageNumber, &p.Content); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (s *Store) DeletePagesOf(ctx context.Context, title string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.d.rebind(
		`DELETE FROM pages WHERE book_id IN (SELECT id FROM books WHERE LOWER(title) = LOWER(?))`), title)
	if err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	return nil
}
