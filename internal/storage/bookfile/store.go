/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package bookfile is the local-file backend: one JSON file per book
// inside a configured directory, file names derived from sanitized
// titles. Its role is offline continuity, so the contract operations that
// do not map to files directly (hash lookup, content search, page-level
// access) load whole books and are correct rather than fast.
package bookfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bookvault/internal/domain"
	applog "bookvault/internal/log"
	"bookvault/internal/storage"
)

// Store implements storage.Backend over a directory of book files.
type Store struct {
	dir string
	log *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// New returns a store rooted at dir. The directory is created on Connect.
func New(dir string) *Store {
	return &Store{dir: dir, log: applog.WithComponent("bookfile")}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Connect ensures the store directory exists. Idempotent.
func (s *Store) Connect(context.Context) error {
	if strings.TrimSpace(s.dir) == "" {
		return fmt.Errorf("library directory is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
	return nil
}

// Available reports whether the store directory is reachable.
func (s *Store) Available(context.Context) bool {
	fi, err := os.Stat(s.dir)
	return err == nil && fi.IsDir()
}

// located pairs a decoded record with the file it came from.
type located struct {
	rec  record
	path string
}

// records loads every recognized book file in the store directory.
// Malformed files are skipped and logged.
func (s *Store) records() ([]located, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read library dir: %w", err)
	}
	var out []located
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		rec, rerr := readRecord(path)
		if rerr != nil {
			s.log.Warn("skipping malformed book file", slog.String("path", path), slog.Any("err", rerr))
			continue
		}
		out = append(out, located{rec: rec, path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rec.ID < out[j].rec.ID })
	return out, nil
}

func (s *Store) findByTitle(title string) (*located, error) {
	recs, err := s.records()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if strings.EqualFold(recs[i].rec.Title, title) {
			return &recs[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

// pathFor derives the target file path for a title, appending a numeric
// suffix when sanitization collides with a different book's file.
func (s *Store) pathFor(title string) string {
	stem := sanitizeTitle(title)
	path := filepath.Join(s.dir, stem+FileSuffix)
	for n := 2; ; n++ {
		rec, err := readRecord(path)
		if err != nil || strings.EqualFold(rec.Title, title) {
			return path
		}
		path = filepath.Join(s.dir, fmt.Sprintf("%s-%d%s", stem, n, FileSuffix))
	}
}

func (s *Store) ListAll(context.Context) ([]domain.Book, error) {
	recs, err := s.records()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Book, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.rec.book())
	}
	return out, nil
}

func (s *Store) FindByTitle(_ context.Context, title string) (*domain.Book, error) {
	loc, err := s.findByTitle(title)
	if err != nil {
		return nil, err
	}
	b := loc.rec.book()
	return &b, nil
}

func (s *Store) Insert(_ context.Context, b *domain.Book, degraded bool) error {
	if err := ValidateTitle(b.Title); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
	recs, err := s.records()
	if err != nil {
		return err
	}
	var maxID int64
	for _, r := range recs {
		if r.rec.Hash == b.Hash && b.Hash != "" {
			return storage.ErrDuplicateContent
		}
		if strings.EqualFold(r.rec.Title, b.Title) {
			return fmt.Errorf("%w: %q", storage.ErrDuplicateTitle, b.Title)
		}
		if r.rec.ID > maxID {
			maxID = r.rec.ID
		}
	}
	b.ID = maxID + 1
	for i := range b.Pages {
		b.Pages[i].ID = int64(i + 1)
		b.Pages[i].BookID = b.ID
		if b.Pages[i].PageNumber == 0 {
			b.Pages[i].PageNumber = i + 1
		}
	}
	return writeRecord(s.pathFor(b.Title), toRecord(b, degraded))
}

func (s *Store) Update(_ context.Context, b *domain.Book) error {
	if err := ValidateTitle(b.Title); err != nil {
		return err
	}
	recs, err := s.records()
	if err != nil {
		return err
	}
	var prev *located
	for i := range recs {
		if recs[i].rec.ID == b.ID {
			prev = &recs[i]
			break
		}
	}
	if prev == nil {
		return storage.ErrNotFound
	}
	for i := range b.Pages {
		b.Pages[i].ID = int64(i + 1)
		b.Pages[i].BookID = b.ID
		if b.Pages[i].PageNumber == 0 {
			b.Pages[i].PageNumber = i + 1
		}
	}
	path := s.pathFor(b.Title)
	if err := writeRecord(path, toRecord(b, prev.rec.Degraded)); err != nil {
		return err
	}
	// a retitled book leaves its old file behind; drop it
	if path != prev.path {
		_ = os.Remove(prev.path)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, title string) error {
	loc, err := s.findByTitle(title)
	if err != nil {
		return err
	}
	if err := os.Remove(loc.path); err != nil {
		return fmt.Errorf("remove %s: %w", loc.path, err)
	}
	_ = os.Remove(loc.path + ".bak")
	return nil
}

func (s *Store) HashExists(_ context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	recs, err := s.records()
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.rec.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SearchContent(_ context.Context, text string) ([]storage.Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	recs, err := s.records()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	var out []storage.Match
	for _, r := range recs {
		for _, p := range r.rec.Pages {
			if strings.Contains(strings.ToLower(p.Content), needle) {
				out = append(out, storage.Match{
					Title:      r.rec.Title,
					PageNumber: p.PageNumber,
					Content:    storage.Excerpt(p.Content, text),
				})
			}
		}
	}
	return out, nil
}

func (s *Store) AddPage(_ context.Context, bookID int64, p domain.Page) error {
	recs, err := s.records()
	if err != nil {
		return err
	}
	for _, r := range recs {
		if r.rec.ID != bookID {
			continue
		}
		p.ID = int64(len(r.rec.Pages) + 1)
		p.BookID = bookID
		if p.PageNumber == 0 {
			p.PageNumber = len(r.rec.Pages) + 1
		}
		r.rec.Pages = append(r.rec.Pages, p)
		return writeRecord(r.path, r.rec)
	}
	return storage.ErrNotFound
}

func (s *Store) PagesOf(_ context.Context, title string) ([]domain.Page, error) {
	loc, err := s.findByTitle(title)
	if err != nil {
		return nil, err
	}
	pages := make([]domain.Page, len(loc.rec.Pages))
	copy(pages, loc.rec.Pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func (s *Store) DeletePagesOf(_ context.Context, title string) error {
	loc, err := s.findByTitle(title)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if len(loc.rec.Pages) == 0 {
		return nil
	}
	loc.rec.Pages = nil
	return writeRecord(loc.path, loc.rec)
}
