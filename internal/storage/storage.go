/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage defines the capability contract every library backend
// implements, the shared search-result shape, and the sentinel errors the
// contract speaks in. Concrete variants live in the subpackages memstore,
// bookfile and sqlstore; they are chosen once at construction time.
package storage

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"bookvault/internal/domain"
)

// Sentinel errors shared by all backends. Callers branch on these with
// errors.Is; none of them is fatal to the process.
var (
	// ErrNotFound means a lookup by title or id matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateContent means a book with the same content hash already
	// exists in the backend. Inserts report it; imports log and skip.
	ErrDuplicateContent = errors.New("duplicate content")
	// ErrDuplicateTitle means a different book already holds the title.
	// Titles are unique case-insensitively within a backend.
	ErrDuplicateTitle = errors.New("duplicate title")
	// ErrUnavailable means the backend cannot reach its medium right now.
	ErrUnavailable = errors.New("backend unavailable")
)

// Match is a single content-search hit: the owning book's title, the
// 1-based page number and the matching page content or a bounded excerpt.
type Match struct {
	Title      string
	PageNumber int
	Content    string
}

// String renders the match for display. Callers that need the parts should
// use the struct fields, not parse this.
func (m Match) String() string {
	return fmt.Sprintf("%s, page %d: %s", m.Title, m.PageNumber, m.Content)
}

// Backend is the storage contract. Every variant implements the full set;
// operations that do not fit a backend's medium naturally (content search
// on the file backend, for instance) are still correct, just not fast.
//
// Result conventions: lookups report a miss as ErrNotFound, inserts report
// a dedup hit as ErrDuplicateContent, list operations return an empty
// slice and nil error when nothing exists.
type Backend interface {
	// Connect establishes backend readiness. Idempotent; configuration is
	// supplied at construction, not here.
	Connect(ctx context.Context) error

	// Available is a cheap liveness probe distinct from Connect. It is
	// called frequently and must return false on transient failure rather
	// than propagate it.
	Available(ctx context.Context) bool

	// ListAll returns every book with pages loaded, ordered by id.
	ListAll(ctx context.Context) ([]domain.Book, error)

	// FindByTitle returns the book with the given title, pages loaded.
	// Title matching is case-insensitive per backend policy.
	FindByTitle(ctx context.Context, title string) (*domain.Book, error)

	// Insert persists a new book and assigns backend-local ids to it and
	// its pages. Fails with ErrDuplicateContent when the hash already
	// exists and ErrDuplicateTitle when another book holds the title.
	// degraded tells the backend it is standing in for an
	// unavailable primary medium and may mark the record accordingly.
	Insert(ctx context.Context, b *domain.Book, degraded bool) error

	// Update replaces title, hash, author and the full page set of the
	// record with b's id. ErrNotFound when no such record exists.
	Update(ctx context.Context, b *domain.Book) error

	// Delete removes the book with the given title and cascades to its
	// pages. ErrNotFound when no record matches.
	Delete(ctx context.Context, title string) error

	// HashExists reports whether a book with the given content hash is
	// already stored. Checked before every insert to enforce dedup.
	HashExists(ctx context.Context, hash string) (bool, error)

	// SearchContent finds pages whose content contains text as a
	// substring, across all books.
	SearchContent(ctx context.Context, text string) ([]Match, error)

	// AddPage appends a page to the book with the given id.
	AddPage(ctx context.Context, bookID int64, p domain.Page) error

	// PagesOf returns the pages of the titled book ordered by page number.
	PagesOf(ctx context.Context, title string) ([]domain.Page, error)

	// DeletePagesOf removes all pages of the titled book. Idempotent
	// no-op when the book or its pages are absent.
	DeletePagesOf(ctx context.Context, title string) error
}

// ExcerptRadius bounds the context kept around a match when a backend
// returns excerpts instead of full page content.
const ExcerptRadius = 80

// Excerpt returns a bounded window of content around the first occurrence
// of needle, comparing case-insensitively. When content is short it is
// returned whole; when needle is absent the head of content is returned.
func Excerpt(content, needle string) string {
	runes := []rune(content)
	if len(runes) <= 2*ExcerptRadius {
		return content
	}
	at := indexFold(runes, []rune(needle))
	if at < 0 {
		return string(runes[:2*ExcerptRadius]) + "..."
	}
	from := at - ExcerptRadius
	if from < 0 {
		from = 0
	}
	to := at + ExcerptRadius
	if to > len(runes) {
		to = len(runes)
	}
	out := string(runes[from:to])
	if from > 0 {
		out = "..." + out
	}
	if to < len(runes) {
		out += "..."
	}
	return out
}

// indexFold locates needle in haystack, comparing rune by rune under
// unicode.ToLower. Offsets stay aligned with the original text even for
// runes whose whole-string lowercase form changes length.
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		ok := true
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}
