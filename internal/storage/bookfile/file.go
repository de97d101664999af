/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package bookfile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"bookvault/internal/domain"
	applog "bookvault/internal/log"
)

// FileSuffix marks files the store recognizes as persisted books.
const FileSuffix = ".book.json"

//go:embed book.schema.json
var bookSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(bookSchema)

// record is the on-disk shape of a book. Field names are part of the
// persisted format; degraded marks a record written while the primary
// backend was unreachable.
type record struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	Hash     string        `json:"hash"`
	AuthorID string        `json:"authorId"`
	Degraded bool          `json:"degraded,omitempty"`
	Pages    []domain.Page `json:"pages"`
}

func toRecord(b *domain.Book, degraded bool) record {
	return record{ID: b.ID, Title: b.Title, Hash: b.Hash, AuthorID: b.AuthorID, Degraded: degraded, Pages: b.Pages}
}

func (r record) book() domain.Book {
	return domain.Book{ID: r.ID, Title: r.Title, Hash: r.Hash, AuthorID: r.AuthorID, Pages: r.Pages}
}

// decodeRecord validates raw bytes against the embedded book schema and
// decodes them. Validation failures are reported so callers can skip the
// file instead of trusting a partial decode.
func decodeRecord(data []byte) (record, error) {
	var rec record
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return rec, fmt.Errorf("schema validate: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return rec, fmt.Errorf("book file does not conform to schema: %s", strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode book: %w", err)
	}
	return rec, nil
}

func readRecord(path string) (record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return record{}, fmt.Errorf("read %s: %w", path, err)
	}
	return decodeRecord(data)
}

// writeRecord serializes rec to path transactionally: temp file in the
// same directory, fsync, rename. An existing file is kept as .bak first.
func writeRecord(path string, rec record) error {
	if rec.Pages == nil {
		// nil marshals as null, which the schema rejects on the next read
		rec.Pages = []domain.Page{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}
	data = append(data, '\n')

	if _, err := os.Stat(path); err == nil {
		if prev, rerr := os.ReadFile(path); rerr == nil {
			_ = os.WriteFile(path+".bak", prev, 0o644)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".book-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ReadBookFile loads a single persisted book from an arbitrary path,
// validating it against the book schema first.
func ReadBookFile(path string) (*domain.Book, error) {
	rec, err := readRecord(path)
	if err != nil {
		return nil, err
	}
	b := rec.book()
	return &b, nil
}

// WalkBooks recursively discovers every recognized book file under root
// and streams each decoded book to fn in walk order, one at a time, so
// callers never hold the whole directory in memory. Malformed files are
// skipped and logged, not fatal; an error from fn stops the walk.
func WalkBooks(root string, fn func(*domain.Book) error) error {
	l := applog.WithComponent("bookfile")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), FileSuffix) {
			return nil
		}
		b, rerr := ReadBookFile(path)
		if rerr != nil {
			l.Warn("skipping malformed book file", slog.String("path", path), slog.Any("err", rerr))
			return nil
		}
		return fn(b)
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	return nil
}

// ReadDirBooks loads every recognized book file under root into memory.
// Prefer WalkBooks when the set may be large.
func ReadDirBooks(root string) ([]domain.Book, error) {
	var out []domain.Book
	if err := WalkBooks(root, func(b *domain.Book) error {
		out = append(out, *b)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove deletes a single book file from disk. The path must name an
// existing regular file; directories are refused.
func Remove(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory, not a book file", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
