/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package analysis provides the linguistic report generators the library
// dispatches to. Each is a pure function from a book to a formatted
// report string; none of them touches storage.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"bookvault/internal/domain"
)

// Func is the shape of every report generator.
type Func func(b *domain.Book) string

// Method names of the fixed analysis enumeration.
const (
	MethodTermFrequency     = "termfreq"
	MethodMutualInformation = "mutualinfo"
	MethodPhrases           = "phrases"
	MethodTransliterate     = "translit"
)

// Methods lists the recognized method names in display order.
func Methods() []string {
	return []string{MethodTermFrequency, MethodMutualInformation, MethodPhrases, MethodTransliterate}
}

const topN = 20

// tokenize splits text into lowercased word tokens. Anything that is not
// a letter or digit separates tokens, which keeps the tokenizer honest
// across Latin and right-to-left scripts alike.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}

type counted struct {
	key string
	n   int
}

func topCounts(counts map[string]int, limit int) []counted {
	out := make([]counted, 0, len(counts))
	for k, n := range counts {
		out = append(out, counted{key: k, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TermFrequency reports the most frequent terms of the book.
func TermFrequency(b *domain.Book) string {
	tokens := tokenize(b.Text())
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Term frequency for %q (%d tokens, %d distinct)\n", b.Title, len(tokens), len(counts))
	for i, c := range topCounts(counts, topN) {
		fmt.Fprintf(&sb, "%2d. %s: %d\n", i+1, c.key, c.n)
	}
	return sb.String()
}

// MutualInformation reports the adjacent word pairs with the highest
// pointwise mutual information. Pairs seen fewer than twice are ignored:
// with one observation PMI only measures corpus size.
func MutualInformation(b *domain.Book) string {
	tokens := tokenize(b.Text())
	if len(tokens) < 2 {
		return fmt.Sprintf("Mutual information for %q: not enough text\n", b.Title)
	}
	single := make(map[string]int, len(tokens))
	pairs := make(map[string]int)
	for i, t := range tokens {
		single[t]++
		if i > 0 {
			pairs[tokens[i-1]+" "+t]++
		}
	}
	total := float64(len(tokens))
	totalPairs := float64(len(tokens) - 1)

	type scored struct {
		pair string
		n    int
		pmi  float64
	}
	var all []scored
	for pair, n := range pairs {
		if n < 2 {
			continue
		}
		parts := strings.SplitN(pair, " ", 2)
		pJoint := float64(n) / totalPairs
		pLeft := float64(single[parts[0]]) / total
		pRight := float64(single[parts[1]]) / total
		all = append(all, scored{pair: pair, n: n, pmi: math.Log2(pJoint / (pLeft * pRight))})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].pmi != all[j].pmi {
			return all[i].pmi > all[j].pmi
		}
		return all[i].pair < all[j].pair
	})
	if len(all) > topN {
		all = all[:topN]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Mutual information for %q (pairs seen at least twice)\n", b.Title)
	for i, s := range all {
		fmt.Fprintf(&sb, "%2d. %s: pmi=%.3f count=%d\n", i+1, s.pair, s.pmi, s.n)
	}
	return sb.String()
}

// MinePhrases reports recurring word n-grams (2 and 3 words) that appear
// at least three times.
func MinePhrases(b *domain.Book) string {
	tokens := tokenize(b.Text())
	counts := make(map[string]int)
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			counts[strings.Join(tokens[i:i+n], " ")]++
		}
	}
	for phrase, n := range counts {
		if n < 3 {
			delete(counts, phrase)
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Recurring phrases for %q (seen at least 3 times)\n", b.Title)
	for i, c := range topCounts(counts, topN) {
		fmt.Fprintf(&sb, "%2d. %q: %d\n", i+1, c.key, c.n)
	}
	return sb.String()
}
