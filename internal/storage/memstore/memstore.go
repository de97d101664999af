/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package memstore is the in-memory backend. It exists for determinism,
// not scale: all lookups are direct map accesses or linear scans, ids are
// monotonic and never reused, and Connect/Available always succeed.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"bookvault/internal/domain"
	"bookvault/internal/storage"
)

// Store implements storage.Backend entirely in process memory.
type Store struct {
	mu       sync.Mutex
	books    map[int64]*domain.Book
	nextBook int64
	nextPage int64
}

var _ storage.Backend = (*Store)(nil)

// New returns an empty store with both id counters at their initial value.
func New() *Store {
	return &Store{books: make(map[int64]*domain.Book), nextBook: 1, nextPage: 1}
}

// Clear resets books and both id counters to initial state. Intended only
// for isolation between otherwise-independent test runs; production code
// paths never call it.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = make(map[int64]*domain.Book)
	s.nextBook = 1
	s.nextPage = 1
}

func (s *Store) Connect(context.Context) error { return nil }

func (s *Store) Available(context.Context) bool { return true }

func (s *Store) ListAll(context.Context) ([]domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]domain.Book, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.books[id].Clone())
	}
	return out, nil
}

func (s *Store) FindByTitle(_ context.Context, title string) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.findLocked(title)
	if b == nil {
		return nil, storage.ErrNotFound
	}
	c := b.Clone()
	return &c, nil
}

// findLocked resolves a title case-insensitively. Caller holds mu.
func (s *Store) findLocked(title string) *domain.Book {
	for _, b := range s.books {
		if strings.EqualFold(b.Title, title) {
			return b
		}
	}
	return nil
}

func (s *Store) Insert(_ context.Context, b *domain.Book, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.books {
		if existing.Hash == b.Hash {
			return storage.ErrDuplicateContent
		}
		if strings.EqualFold(existing.Title, b.Title) {
			return fmt.Errorf("%w: %q", storage.ErrDuplicateTitle, b.Title)
		}
	}
	b.ID = s.nextBook
	s.nextBook++
	for i := range b.Pages {
		b.Pages[i].ID = s.nextPage
		s.nextPage++
		b.Pages[i].BookID = b.ID
		if b.Pages[i].PageNumber == 0 {
			b.Pages[i].PageNumber = i + 1
		}
	}
	c := b.Clone()
	s.books[b.ID] = &c
	return nil
}

func (s *Store) Update(_ context.Context, b *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.books[b.ID]
	if !ok {
		return storage.ErrNotFound
	}
	stored.Title = b.Title
	stored.Hash = b.Hash
	stored.AuthorID = b.AuthorID
	stored.Pages = nil
	for i, p := range b.Pages {
		p.ID = s.nextPage
		s.nextPage++
		p.BookID = stored.ID
		if p.PageNumber == 0 {
			p.PageNumber = i + 1
		}
		stored.Pages = append(stored.Pages, p)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.findLocked(title)
	if b == nil {
		return storage.ErrNotFound
	}
	// pages are owned by the book record, so removing it cascades
	delete(s.books, b.ID)
	return nil
}

func (s *Store) HashExists(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SearchContent(_ context.Context, text string) ([]storage.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	needle := strings.ToLower(text)
	var out []storage.Match
	for _, b := range s.books {
		for _, p := range b.Pages {
			if strings.Contains(strings.ToLower(p.Content), needle) {
				out = append(out, storage.Match{
					Title:      b.Title,
					PageNumber: p.PageNumber,
					Content:    storage.Excerpt(p.Content, text),
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].PageNumber < out[j].PageNumber
	})
	return out, nil
}

func (s *Store) AddPage(_ context.Context, bookID int64, p domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return storage.ErrNotFound
	}
	p.ID = s.nextPage
	s.nextPage++
	p.BookID = bookID
	if p.PageNumber == 0 {
		p.PageNumber = len(b.Pages) + 1
	}
	b.Pages = append(b.Pages, p)
	return nil
}

func (s *Store) PagesOf(_ context.Context, title string) ([]domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.findLocked(title)
	if b == nil {
		return nil, storage.ErrNotFound
	}
	pages := make([]domain.Page, len(b.Pages))
	copy(pages, b.Pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func (s *Store) DeletePagesOf(_ context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.findLocked(title); b != nil {
		b.Pages = nil
	}
	return nil
}
