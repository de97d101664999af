/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package analysis

import (
	"fmt"
	"strings"

	"bookvault/internal/domain"
)

// hebrewLatin maps Hebrew letters to a simple Latin romanization. Final
// forms map like their regular counterparts. Niqqud is dropped by the
// rune filter below rather than mapped.
var hebrewLatin = map[rune]string{
	'א': "'", 'ב': "v", 'ג': "g", 'ד': "d", 'ה': "h", 'ו': "v",
	'ז': "z", 'ח': "ch", 'ט': "t", 'י': "y", 'כ': "kh", 'ך': "kh",
	'ל': "l", 'מ': "m", 'ם': "m", 'נ': "n", 'ן': "n", 'ס': "s",
	'ע': "'", 'פ': "p", 'ף': "f", 'צ': "ts", 'ץ': "ts", 'ק': "k",
	'ר': "r", 'ש': "sh", 'ת': "t",
}

// Transliterate renders the book's text with Hebrew letters romanized;
// all other runes pass through unchanged, so mixed-script books stay
// readable.
func Transliterate(b *domain.Book) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transliteration of %q\n", b.Title)
	for _, p := range b.Pages {
		fmt.Fprintf(&sb, "\n[page %d]\n", p.PageNumber)
		for _, r := range p.Content {
			if lat, ok := hebrewLatin[r]; ok {
				sb.WriteString(lat)
				continue
			}
			// drop combining points in the Hebrew block
			if r >= 0x0591 && r <= 0x05C7 {
				continue
			}
			sb.WriteRune(r)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
