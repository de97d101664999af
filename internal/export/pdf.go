/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders books to portable formats for reading outside
// the library.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"bookvault/internal/domain"
)

// PDFOptions controls PDF rendering. Zero values give an A4 page with the
// built-in Helvetica face; the cp1252 translator covers Latin text, other
// scripts degrade to replacement glyphs until font embedding lands.
type PDFOptions struct {
	FontSize   float64
	MarginMM   float64
	TitlePage  bool
	PageHeader bool // "page N" header above each book page
}

func (o *PDFOptions) defaults() {
	if o.FontSize == 0 {
		o.FontSize = 11
	}
	if o.MarginMM == 0 {
		o.MarginMM = 20
	}
}

// BookPDF writes the book as a multi-page PDF at outPath, one PDF section
// per book page in reading order.
func BookPDF(b *domain.Book, outPath string, opt PDFOptions) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	opt.defaults()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(opt.MarginMM, opt.MarginMM, opt.MarginMM)
	pdf.SetAutoPageBreak(true, opt.MarginMM)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if opt.TitlePage {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 24)
		pdf.CellFormat(0, 40, tr(b.Title), "", 1, "C", false, 0, "")
		if b.AuthorID != "" {
			pdf.SetFont("Helvetica", "", 12)
			pdf.CellFormat(0, 10, tr(b.AuthorID), "", 1, "C", false, 0, "")
		}
	}

	pdf.SetFont("Helvetica", "", opt.FontSize)
	lineHeight := opt.FontSize * 0.5
	for _, p := range b.Pages {
		pdf.AddPage()
		if opt.PageHeader {
			pdf.SetFont("Helvetica", "I", opt.FontSize-2)
			pdf.CellFormat(0, lineHeight, tr(fmt.Sprintf("page %d", p.PageNumber)), "", 1, "R", false, 0, "")
			pdf.SetFont("Helvetica", "", opt.FontSize)
		}
		for _, para := range strings.Split(p.Content, "\n") {
			pdf.MultiCell(0, lineHeight, tr(para), "", "L", false)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
