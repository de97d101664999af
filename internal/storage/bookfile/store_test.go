/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bookfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookvault/internal/domain"
	"bookvault/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func sample(title, hash string, pages ...string) *domain.Book {
	b := &domain.Book{Title: title, Hash: hash, AuthorID: "ann"}
	for i, c := range pages {
		b.Pages = append(b.Pages, domain.Page{PageNumber: i + 1, Content: c})
	}
	return b
}

func TestInsertAndFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := sample("Walden", "h-walden", "I went to the woods", "because I wished")
	if err := s.Insert(ctx, in, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if in.ID == 0 {
		t.Fatalf("insert did not assign an id")
	}
	got, err := s.FindByTitle(ctx, "walden")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Title != "Walden" || got.Hash != "h-walden" || got.AuthorID != "ann" {
		t.Fatalf("round trip mangled the book: %+v", got)
	}
	if len(got.Pages) != 2 || got.Pages[1].Content != "because I wished" {
		t.Fatalf("pages: %+v", got.Pages)
	}
	// file exists under the sanitized name
	if _, err := os.Stat(filepath.Join(s.Dir(), "Walden"+FileSuffix)); err != nil {
		t.Fatalf("book file missing: %v", err)
	}
}

func TestInsertValidatesTitle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	err := s.Insert(ctx, sample("../escape", "h", "x"), false)
	if !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Fatalf("rejected insert left files behind")
	}
}

func TestInsertRejectsDuplicateHash(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Insert(ctx, sample("A", "same-hash", "x"), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.Insert(ctx, sample("B", "same-hash", "x"), false)
	if !errors.Is(err, storage.ErrDuplicateContent) {
		t.Fatalf("expected ErrDuplicateContent, got %v", err)
	}
	ok, err := s.HashExists(ctx, "same-hash")
	if err != nil || !ok {
		t.Fatalf("HashExists = %v, %v", ok, err)
	}
	ok, err = s.HashExists(ctx, "")
	if err != nil || ok {
		t.Fatalf("empty hash should never exist, got %v, %v", ok, err)
	}
}

func TestDegradedMarkerSurvivesUpdate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	b := sample("Offline Book", "h-off", "written while offline")
	if err := s.Insert(ctx, b, true); err != nil {
		t.Fatalf("insert: %v", err)
	}
	upd := b.Clone()
	upd.Pages = append(upd.Pages, domain.Page{Content: "added later"})
	if err := s.Update(ctx, &upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, err := readRecord(filepath.Join(s.Dir(), "Offline Book"+FileSuffix))
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if !rec.Degraded {
		t.Fatalf("degraded marker lost across update")
	}
	if len(rec.Pages) != 2 {
		t.Fatalf("pages after update: %+v", rec.Pages)
	}
}

func TestUpdateRetitleDropsOldFile(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	b := sample("Old Name", "h", "x")
	if err := s.Insert(ctx, b, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	upd := b.Clone()
	upd.Title = "New Name"
	if err := s.Update(ctx, &upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "Old Name"+FileSuffix)); !os.IsNotExist(err) {
		t.Fatalf("old file still present: %v", err)
	}
	if _, err := s.FindByTitle(ctx, "New Name"); err != nil {
		t.Fatalf("find after retitle: %v", err)
	}
	if err := s.Update(ctx, sample("Ghost", "h2", "x")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update of unknown id: %v", err)
	}
}

func TestDeleteRemovesFileAndBackup(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	b := sample("Doomed", "h", "x")
	if err := s.Insert(ctx, b, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// an update leaves a .bak behind
	upd := b.Clone()
	if err := s.Update(ctx, &upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	path := filepath.Join(s.Dir(), "Doomed"+FileSuffix)
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("expected backup after update: %v", err)
	}
	if err := s.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("book file survived delete")
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("backup survived delete")
	}
	if err := s.Delete(ctx, "doomed"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMalformedFilesAreSkipped(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Insert(ctx, sample("Good", "h", "x"), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	bad := filepath.Join(s.Dir(), "broken"+FileSuffix)
	if err := os.WriteFile(bad, []byte(`{"title": 42}`), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	books, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Good" {
		t.Fatalf("malformed file not skipped: %+v", books)
	}
}

func TestSchemaRejectsMissingPages(t *testing.T) {
	if _, err := decodeRecord([]byte(`{"title": "no pages"}`)); err == nil {
		t.Fatalf("schema accepted a record without pages")
	}
	if _, err := decodeRecord([]byte(`{"title": "", "pages": []}`)); err == nil {
		t.Fatalf("schema accepted an empty title")
	}
	rec, err := decodeRecord([]byte(`{"title": "ok", "pages": [{"pageNumber": 1, "content": "x"}]}`))
	if err != nil {
		t.Fatalf("minimal valid record rejected: %v", err)
	}
	if rec.Title != "ok" || len(rec.Pages) != 1 {
		t.Fatalf("decoded record: %+v", rec)
	}
}

func TestPathForCollision(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	// the two titles sanitize to the same file stem
	if err := s.Insert(ctx, sample(`Star*s`, "h1", "x"), false); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if err := s.Insert(ctx, sample(`Star?s`, "h2", "y"), false); err != nil {
		t.Fatalf("insert second: %v", err)
	}
	books, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("collision clobbered a book: %+v", books)
	}
}

func TestReadDirBooksRecursive(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sub := filepath.Join(root, "nested")
	s := New(sub)
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Insert(ctx, sample("Deep", "h", "x"), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "junk.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	books, err := ReadDirBooks(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Deep" {
		t.Fatalf("books = %+v", books)
	}
}

func TestInsertRejectsDuplicateTitle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Insert(ctx, sample("Moby Dick", "h-md-1", "call me"), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.Insert(ctx, sample("MOBY DICK", "h-md-2", "ishmael"), false)
	if !errors.Is(err, storage.ErrDuplicateTitle) {
		t.Fatalf("want duplicate title, got %v", err)
	}
	got, ferr := s.FindByTitle(ctx, "Moby Dick")
	if ferr != nil || got.Hash != "h-md-1" || got.Text() != "call me" {
		t.Fatalf("original book disturbed: %+v, %v", got, ferr)
	}
}

func TestZeroPageBookStaysReadable(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Insert(ctx, sample("Blank Slate", "h-blank"), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// the persisted record must stay schema-valid with no pages
	b, err := s.FindByTitle(ctx, "Blank Slate")
	if err != nil {
		t.Fatalf("find after zero-page write: %v", err)
	}
	if len(b.Pages) != 0 {
		t.Fatalf("pages = %+v", b.Pages)
	}
	books, err := s.ListAll(ctx)
	if err != nil || len(books) != 1 {
		t.Fatalf("list = %+v, %v", books, err)
	}
}

func TestWalkBooksStreamsAndStops(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for _, b := range []*domain.Book{
		sample("One", "wh1", "a"),
		sample("Two", "wh2", "b"),
		sample("Three", "wh3", "c"),
	} {
		if err := s.Insert(ctx, b, false); err != nil {
			t.Fatalf("insert %s: %v", b.Title, err)
		}
	}

	var seen []string
	if err := WalkBooks(dir, func(b *domain.Book) error {
		seen = append(seen, b.Title)
		return nil
	}); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("visited %d books: %v", len(seen), seen)
	}

	// a callback error stops the walk after the current file
	stop := errors.New("enough")
	n := 0
	err := WalkBooks(dir, func(*domain.Book) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("callback error lost: %v", err)
	}
	if n != 1 {
		t.Fatalf("walk continued past the stop: %d visits", n)
	}
}

func TestRemoveRefusesDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(dir); err == nil || !strings.Contains(err.Error(), "directory") {
		t.Fatalf("Remove(dir) = %v", err)
	}
	path := filepath.Join(dir, "one"+FileSuffix)
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if err := Remove(path); err == nil {
		t.Fatalf("remove of missing file should fail")
	}
}

func TestAddPagePersists(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	b := sample("Serial", "h", "chapter one")
	if err := s.Insert(ctx, b, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.AddPage(ctx, b.ID, domain.Page{Content: "chapter two"}); err != nil {
		t.Fatalf("add page: %v", err)
	}
	pages, err := s.PagesOf(ctx, "Serial")
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(pages) != 2 || pages[1].PageNumber != 2 || pages[1].Content != "chapter two" {
		t.Fatalf("pages = %+v", pages)
	}
	if err := s.AddPage(ctx, 404, domain.Page{Content: "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("add to missing book: %v", err)
	}
}

func TestDeletePagesOfIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Insert(ctx, sample("Pager", "h", "x", "y"), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeletePagesOf(ctx, "Pager"); err != nil {
		t.Fatalf("delete pages: %v", err)
	}
	if err := s.DeletePagesOf(ctx, "Pager"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := s.DeletePagesOf(ctx, "nobody"); err != nil {
		t.Fatalf("missing book should be a no-op: %v", err)
	}
	b, err := s.FindByTitle(ctx, "Pager")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(b.Pages) != 0 {
		t.Fatalf("pages survived: %+v", b.Pages)
	}
}
