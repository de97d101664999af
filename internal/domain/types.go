/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain defines the core data model for the personal library.
// Books and pages are plain data carriers; derived computation (content
// hashing, title validation) lives in the layers that persist or
// orchestrate them.
package domain

import "strings"

// Book is a titled, ordered collection of text pages owned by one author.
// IDs are assigned by whichever backend persists the book and are local to
// that backend; they are not globally unique across backends. Hash is the
// dedup key: a deterministic digest of the book's full text. Pages may be
// nil when the book is handled without its content loaded.
type Book struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Hash     string `json:"hash"`
	AuthorID string `json:"authorId"`
	Pages    []Page `json:"pages"`
}

// Page is a single unit of book text. PageNumber is 1-based reading order.
// Content is Unicode text and may carry lightweight markup; right-to-left
// scripts are first-class.
type Page struct {
	ID         int64  `json:"id"`
	BookID     int64  `json:"bookId"`
	PageNumber int    `json:"pageNumber"`
	Content    string `json:"content"`
}

// Same reports identity-plus-position equality: two Book values refer to
// the same record when id and title agree. Content equality is a separate
// concern handled via Hash.
func (b Book) Same(o Book) bool {
	return b.ID == o.ID && b.Title == o.Title
}

// Same reports identity-plus-position equality for pages: id, owning book
// and sequence number.
func (p Page) Same(o Page) bool {
	return p.ID == o.ID && p.BookID == o.BookID && p.PageNumber == o.PageNumber
}

// Text returns the book's full text: page contents joined in reading order
// separated by a single newline. Pages are assumed to be ordered already;
// backends return them sorted by page number.
func (b Book) Text() string {
	if len(b.Pages) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range b.Pages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p.Content)
	}
	return sb.String()
}

// Clone returns a deep copy of the book, detaching the page slice.
func (b Book) Clone() Book {
	c := b
	if b.Pages != nil {
		c.Pages = make([]Page, len(b.Pages))
		copy(c.Pages, b.Pages)
	}
	return c
}
