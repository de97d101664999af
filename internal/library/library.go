/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package library is the orchestration layer over the storage backends.
// It picks the reachable backend per call, enforces author-based write
// permissions, deduplicates imports by content hash and falls back between
// the primary and file backends as connectivity changes. It never bypasses
// the storage contract.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"bookvault/internal/analysis"
	"bookvault/internal/domain"
	applog "bookvault/internal/log"
	"bookvault/internal/storage"
	"bookvault/internal/storage/bookfile"
	"bookvault/internal/telemetry"
)

// Environment is the last-observed connectivity state. Advisory input to
// behavior (export degraded marker, import destination), not a lock.
type Environment int

const (
	Disconnected Environment = iota
	Connected
)

func (e Environment) String() string {
	if e == Connected {
		return "connected"
	}
	return "disconnected"
}

// ErrPermissionDenied means the acting user is not the book's author.
// The record is left untouched.
var ErrPermissionDenied = errors.New("permission denied")

// Options configures a Library.
type Options struct {
	// Primary is the main backend, typically the relational one.
	Primary storage.Backend
	// Files is the local file store, always constructed; it serves
	// export, import and connectivity fallback.
	Files *bookfile.Store
	// User is the acting user's identifier, used for author assignment
	// and permission checks.
	User string
	// Events is an optional usage recorder; nil disables recording.
	Events *telemetry.Recorder
}

// Library orchestrates backends on behalf of one acting user. All calls
// are synchronous; a single instance performs no internal parallelism.
type Library struct {
	primary storage.Backend
	files   *bookfile.Store
	user    string
	env     Environment
	events  *telemetry.Recorder
	log     *slog.Logger

	// analyzer handles are built at most once, on first use
	analyzers map[string]analysis.Func
}

// New probes the primary backend once to establish the initial
// environment. The file store must be non-nil; a nil primary pins the
// library to disconnected operation over files alone.
func New(ctx context.Context, opts Options) (*Library, error) {
	if opts.Files == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if err := opts.Files.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect file store: %w", err)
	}
	l := &Library{
		primary: opts.Primary,
		files:   opts.Files,
		user:    opts.User,
		events:  opts.Events,
		log:     applog.WithComponent("library").With(slog.String("user", opts.User)),
	}
	l.refresh(ctx)
	l.log.Info("library ready", slog.String("env", l.env.String()))
	return l, nil
}

// refresh re-probes connectivity and records the observed environment.
func (l *Library) refresh(ctx context.Context) Environment {
	env := Disconnected
	if l.primary != nil && l.primary.Available(ctx) {
		env = Connected
	}
	if env != l.env {
		l.log.Info("environment changed", slog.String("from", l.env.String()), slog.String("to", env.String()))
	}
	l.env = env
	return env
}

// backend returns the store serving this call: the primary when the
// network is up, the file store otherwise.
func (l *Library) backend(ctx context.Context) storage.Backend {
	if l.refresh(ctx) == Connected {
		return l.primary
	}
	return l.files
}

// Connected reports whether the primary backend is currently reachable.
func (l *Library) Connected(ctx context.Context) bool {
	return l.refresh(ctx) == Connected
}

// User returns the acting user's identifier.
func (l *Library) User() string { return l.user }

// GetAll returns every book in the active backend.
func (l *Library) GetAll(ctx context.Context) ([]domain.Book, error) {
	return l.backend(ctx).ListAll(ctx)
}

// GetByTitle returns the titled book from the active backend.
func (l *Library) GetByTitle(ctx context.Context, title string) (*domain.Book, error) {
	return l.backend(ctx).FindByTitle(ctx, title)
}

// HasWritePrivileges reports whether the acting user may modify the titled
// book: true iff the book exists and its author id equals the user. An
// absent book yields no privileges.
func (l *Library) HasWritePrivileges(ctx context.Context, title string) bool {
	b, err := l.backend(ctx).FindByTitle(ctx, title)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l.log.Warn("privilege check failed", slog.String("title", title), slog.Any("err", err))
		}
		return false
	}
	if b.AuthorID != l.user {
		l.log.Warn("write denied: author mismatch",
			slog.String("title", title), slog.String("author", b.AuthorID))
		return false
	}
	return true
}

// Update replaces the titled record with b after a permission check. The
// content hash is recomputed from b's pages.
func (l *Library) Update(ctx context.Context, b *domain.Book) error {
	if !l.HasWritePrivileges(ctx, b.Title) {
		return ErrPermissionDenied
	}
	b.Hash = ContentHash(b)
	if err := l.backend(ctx).Update(ctx, b); err != nil {
		return err
	}
	l.events.Record("book_updated", map[string]any{"title": b.Title})
	return nil
}

// Export writes the titled book from the primary backend into the file
// store. When the primary is unreachable the record is marked as written
// in degraded mode.
func (l *Library) Export(ctx context.Context, title string) error {
	b, err := l.backend(ctx).FindByTitle(ctx, title)
	if err != nil {
		return fmt.Errorf("export %q: %w", title, err)
	}
	return l.ExportBook(ctx, b)
}

// ExportBook writes an already-loaded book to the file store, skipping
// the fetch step but applying the same degraded-mode logic.
func (l *Library) ExportBook(ctx context.Context, b *domain.Book) error {
	degraded := !(l.primary != nil && l.primary.Available(ctx))
	existing, err := l.files.FindByTitle(ctx, b.Title)
	switch {
	case err == nil:
		out := b.Clone()
		out.ID = existing.ID
		if err := l.files.Update(ctx, &out); err != nil {
			return fmt.Errorf("export %q: %w", b.Title, err)
		}
	case errors.Is(err, storage.ErrNotFound):
		out := b.Clone()
		if err := l.files.Insert(ctx, &out, degraded); err != nil {
			return fmt.Errorf("export %q: %w", b.Title, err)
		}
	default:
		return fmt.Errorf("export %q: %w", b.Title, err)
	}
	l.events.Record("book_exported", map[string]any{"title": b.Title, "degraded": degraded})
	l.log.Info("book exported", slog.String("title", b.Title), slog.Bool("degraded", degraded))
	return nil
}

// Delete is dual-mode: a value naming an existing file on disk is removed
// through the file backend; anything else is treated as a book title and
// deleted from the primary backend. One operation serves both "delete this
// exported file" and "delete this library entry".
func (l *Library) Delete(ctx context.Context, value string) error {
	if fi, err := os.Stat(value); err == nil && !fi.IsDir() {
		if err := bookfile.Remove(value); err != nil {
			return err
		}
		l.events.Record("file_deleted", map[string]any{"path": value})
		return nil
	}
	if err := l.backend(ctx).Delete(ctx, value); err != nil {
		return err
	}
	l.events.Record("book_deleted", map[string]any{"title": value})
	return nil
}

// AddPage appends content as a new page of the titled book. The page
// number continues the book's sequence.
func (l *Library) AddPage(ctx context.Context, title, content string) error {
	be := l.backend(ctx)
	b, err := be.FindByTitle(ctx, title)
	if err != nil {
		return fmt.Errorf("add page to %q: %w", title, err)
	}
	p := domain.Page{PageNumber: len(b.Pages) + 1, Content: content}
	if err := be.AddPage(ctx, b.ID, p); err != nil {
		return fmt.Errorf("add page to %q: %w", title, err)
	}
	return nil
}

// SearchContent finds pages containing text across all books.
func (l *Library) SearchContent(ctx context.Context, text string) ([]storage.Match, error) {
	return l.backend(ctx).SearchContent(ctx, text)
}

// SearchTitle is a separate entry point reserved for a future title index.
// It currently delegates to the same content-search primitive; callers
// must not rely on a narrower match.
func (l *Library) SearchTitle(ctx context.Context, text string) ([]storage.Match, error) {
	return l.SearchContent(ctx, text)
}

// Analyze runs the named analysis method over the titled book and returns
// its formatted report. Methods are a fixed enumeration; an unknown name
// is a caller error reported immediately.
func (l *Library) Analyze(ctx context.Context, title, method string) (string, error) {
	b, err := l.backend(ctx).FindByTitle(ctx, title)
	if err != nil {
		return "", fmt.Errorf("analyze %q: %w", title, err)
	}
	if l.analyzers == nil {
		l.analyzers = map[string]analysis.Func{
			analysis.MethodTermFrequency:     analysis.TermFrequency,
			analysis.MethodMutualInformation: analysis.MutualInformation,
			analysis.MethodPhrases:           analysis.MinePhrases,
			analysis.MethodTransliterate:     analysis.Transliterate,
		}
	}
	fn, ok := l.analyzers[strings.ToLower(strings.TrimSpace(method))]
	if !ok {
		return "", fmt.Errorf("unknown analysis method %q (have: %s)",
			method, strings.Join(analysis.Methods(), ", "))
	}
	l.events.Record("book_analyzed", map[string]any{"title": title, "method": method})
	return fn(b), nil
}
