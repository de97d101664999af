/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package library

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"

	"bookvault/internal/domain"
)

// ContentHash computes the dedup key for a book: the SHA-256 digest of its
// full text, NFC-normalized first so the same text hashes identically
// regardless of how its combining characters were encoded. Stable for
// unchanged content; title and author do not participate.
func ContentHash(b *domain.Book) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(b.Text())))
	return hex.EncodeToString(sum[:])
}
