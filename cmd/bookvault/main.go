/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"bookvault/internal/analysis"
	"bookvault/internal/config"
	"bookvault/internal/crash"
	"bookvault/internal/export"
	"bookvault/internal/library"
	applog "bookvault/internal/log"
	"bookvault/internal/storage"
	"bookvault/internal/storage/bookfile"
	"bookvault/internal/storage/memstore"
	"bookvault/internal/storage/sqlstore"
	"bookvault/internal/telemetry"
	"bookvault/internal/version"
)

func usage() {
	fmt.Println("bookvault - personal text library")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bookvault version                       Show version")
	fmt.Println("  bookvault status                        Show backend and connectivity")
	fmt.Println("  bookvault list                          List all books")
	fmt.Println("  bookvault get <title>                   Show one book")
	fmt.Println("  bookvault import <path>                 Import a book file or a directory of them")
	fmt.Println("  bookvault export <title>                Export a book to the library directory")
	fmt.Println("  bookvault export-pdf <title> <out.pdf>  Render a book as PDF")
	fmt.Println("  bookvault delete <title-or-file>        Delete a library entry or an exported file")
	fmt.Println("  bookvault search <text>                 Search page content")
	fmt.Println("  bookvault search-title <text>           Search by title (same matching for now)")
	fmt.Println("  bookvault add-page <title> <content>    Append a page to a book")
	fmt.Printf("  bookvault analyze <title> <method>      Run an analysis (%s)\n", strings.Join(analysis.Methods(), ", "))
	fmt.Println("  bookvault set-password                  Store the database password in the OS keyring")
}

func main() {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	defer crash.Recover("")

	args := os.Args
	if len(args) < 2 {
		usage()
		return
	}
	cmd := args[1]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return
	case "help", "--help", "-h":
		usage()
		return
	case "set-password":
		if err := setPassword(); err != nil {
			fail(l, err)
		}
		return
	}

	// configuration is load-bearing: a broken config aborts startup
	cfg, err := config.Load()
	if err != nil {
		l.Error("configuration load failed", slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	events := telemetry.New(telemetry.Config{
		Enabled: cfg.General.TelemetryOptIn,
		Path:    cfg.General.TelemetryFile,
	})
	defer events.Close()

	ctx := context.Background()
	lib, primary, err := buildLibrary(ctx, cfg, events)
	if err != nil {
		fail(l, err)
	}
	if closer, ok := primary.(interface{ Close() error }); ok && closer != nil {
		defer func() { _ = closer.Close() }()
	}

	if err := run(ctx, lib, cfg.Backend.Driver, cmd, args[2:]); err != nil {
		fail(l, err)
	}
}

func fail(l *slog.Logger, err error) {
	l.Error("command failed", slog.Any("err", err))
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// buildLibrary constructs the configured primary backend plus the file
// store and wires the orchestrator. An unknown driver fails here, at
// construction, not somewhere down a call path.
func buildLibrary(ctx context.Context, cfg config.AppConfig, events *telemetry.Recorder) (*library.Library, storage.Backend, error) {
	files := bookfile.New(cfg.Library.Dir)

	var primary storage.Backend
	switch strings.ToLower(cfg.Backend.Driver) {
	case "postgres", "sqlite":
		dsn, err := config.ResolveDSN(cfg.Backend)
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlstore.New(cfg.Backend.Driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		// connectivity failures are tolerated; the library falls back
		// to the file store until the backend comes up
		if err := s.Connect(ctx); err != nil {
			applog.WithComponent("cli").Warn("primary backend unreachable", slog.Any("err", err))
		}
		primary = s
	case "file":
		dir := cfg.Backend.DSN
		if dir == "" {
			dir = filepath.Join(cfg.Library.Dir, "primary")
		}
		primary = bookfile.New(dir)
		if err := primary.Connect(ctx); err != nil {
			return nil, nil, err
		}
	case "memory":
		primary = memstore.New()
	default:
		return nil, nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
	}

	lib, err := library.New(ctx, library.Options{
		Primary: primary,
		Files:   files,
		User:    cfg.Library.User,
		Events:  events,
	})
	if err != nil {
		return nil, nil, err
	}
	return lib, primary, nil
}

func run(ctx context.Context, lib *library.Library, driver, cmd string, rest []string) error {
	need := func(n int, what string) error {
		if len(rest) < n {
			return fmt.Errorf("%s requires %s", cmd, what)
		}
		return nil
	}

	switch cmd {
	case "status":
		fmt.Printf("user: %s\n", lib.User())
		fmt.Printf("backend driver: %s\n", driver)
		if lib.Connected(ctx) {
			fmt.Println("primary backend: connected")
		} else {
			fmt.Println("primary backend: disconnected (file fallback active)")
		}
		books, err := lib.GetAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("books: %d\n", len(books))
		return nil

	case "list":
		books, err := lib.GetAll(ctx)
		if err != nil {
			return err
		}
		for _, b := range books {
			fmt.Printf("%4d  %-40s  %s  (%d pages)\n", b.ID, b.Title, b.AuthorID, len(b.Pages))
		}
		return nil

	case "get":
		if err := need(1, "<title>"); err != nil {
			return err
		}
		b, err := lib.GetByTitle(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s by %s (id %d, hash %.12s)\n", b.Title, b.AuthorID, b.ID, b.Hash)
		for _, p := range b.Pages {
			fmt.Printf("\n--- page %d ---\n%s\n", p.PageNumber, p.Content)
		}
		return nil

	case "import":
		if err := need(1, "<path>"); err != nil {
			return err
		}
		res, err := lib.Import(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Println(res)
		return nil

	case "export":
		if err := need(1, "<title>"); err != nil {
			return err
		}
		return lib.Export(ctx, rest[0])

	case "export-pdf":
		if err := need(2, "<title> <out.pdf>"); err != nil {
			return err
		}
		b, err := lib.GetByTitle(ctx, rest[0])
		if err != nil {
			return err
		}
		return export.BookPDF(b, rest[1], export.PDFOptions{TitlePage: true, PageHeader: true})

	case "delete":
		if err := need(1, "<title-or-file>"); err != nil {
			return err
		}
		return lib.Delete(ctx, rest[0])

	case "search", "search-title":
		if err := need(1, "<text>"); err != nil {
			return err
		}
		var (
			matches []storage.Match
			err     error
		)
		if cmd == "search-title" {
			matches, err = lib.SearchTitle(ctx, strings.Join(rest, " "))
		} else {
			matches, err = lib.SearchContent(ctx, strings.Join(rest, " "))
		}
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, m := range matches {
			fmt.Println(m)
		}
		return nil

	case "add-page":
		if err := need(2, "<title> <content>"); err != nil {
			return err
		}
		return lib.AddPage(ctx, rest[0], strings.Join(rest[1:], " "))

	case "analyze":
		if err := need(2, "<title> <method>"); err != nil {
			return err
		}
		report, err := lib.Analyze(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Print(report)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func setPassword() error {
	fmt.Print("Database password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		return errors.New("empty password not stored")
	}
	if err := config.SetDBPassword(string(pw)); err != nil {
		return err
	}
	fmt.Println("Password stored in the OS keyring.")
	return nil
}
