/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"bookvault/internal/domain"
	"bookvault/internal/storage"
	"bookvault/internal/storage/bookfile"
)

// BatchSize bounds how many books an import accumulates before flushing
// them to storage, keeping memory and transaction size bounded on large
// directory imports.
const BatchSize = 50

// ImportResult summarizes one import run. Partial progress is the
// expected outcome of a large import hitting a bad record.
type ImportResult struct {
	Imported int
	Skipped  int // duplicates, deduplicated by content hash
	Failed   int // per-book errors, logged and excluded
	Batches  int // flush operations performed
}

func (r ImportResult) String() string {
	return fmt.Sprintf("%d imported, %d duplicates skipped, %d failed (%d batches)",
		r.Imported, r.Skipped, r.Failed, r.Batches)
}

// Import loads books from path into the active backend. A directory is
// imported in batches of BatchSize with per-book error isolation; a single
// file goes through the same author-assignment, dedup and insert sequence
// without batching.
func (l *Library) Import(ctx context.Context, path string) (ImportResult, error) {
	var res ImportResult
	fi, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("import %s: %w", path, err)
	}

	dest := l.backend(ctx)
	degraded := l.env == Disconnected

	if !fi.IsDir() {
		b, err := bookfile.ReadBookFile(path)
		if err != nil {
			return res, fmt.Errorf("import %s: %w", path, err)
		}
		l.importOne(ctx, dest, b, degraded, &res)
		l.events.Record("import_finished", map[string]any{"path": path, "result": res.String()})
		return res, nil
	}

	// books are accumulated as the walk streams them in, so at most one
	// batch is resident regardless of directory size
	batch := make([]*domain.Book, 0, BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		for _, b := range batch {
			l.importOne(ctx, dest, b, degraded, &res)
		}
		res.Batches++
		batch = batch[:0]
	}
	err = bookfile.WalkBooks(path, func(b *domain.Book) error {
		batch = append(batch, b)
		if len(batch) == BatchSize {
			flush()
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("import %s: %w", path, err)
	}
	flush()

	l.log.Info("import finished", slog.String("path", path), slog.String("result", res.String()))
	l.events.Record("import_finished", map[string]any{"path": path, "result": res.String()})
	return res, nil
}

// importOne runs the author-assignment, dedup and insert sequence for a
// single book. Errors are logged with the offending title and counted;
// they never abort the surrounding batch.
func (l *Library) importOne(ctx context.Context, dest storage.Backend, b *domain.Book, degraded bool, res *ImportResult) {
	if b.AuthorID == "" {
		b.AuthorID = l.user
	}
	if b.Hash == "" {
		b.Hash = ContentHash(b)
	}
	exists, err := dest.HashExists(ctx, b.Hash)
	if err != nil {
		l.log.Warn("import: hash check failed", slog.String("title", b.Title), slog.Any("err", err))
		res.Failed++
		return
	}
	if exists {
		l.log.Info("import: duplicate skipped", slog.String("title", b.Title))
		res.Skipped++
		return
	}
	b.ID = 0
	if err := dest.Insert(ctx, b, degraded); err != nil {
		if errors.Is(err, storage.ErrDuplicateContent) {
			l.log.Info("import: duplicate skipped", slog.String("title", b.Title))
			res.Skipped++
			return
		}
		l.log.Warn("import: book failed", slog.String("title", b.Title), slog.Any("err", err))
		res.Failed++
		return
	}
	res.Imported++
}
