/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package bookfile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidTitle marks a title that is rejected before any filesystem
// interaction: traversal attempt, reserved name, excess length or emptiness.
// The operation fails; the title is never silently rewritten into a
// different destination.
var ErrInvalidTitle = errors.New("invalid title")

// maxTitleLen caps titles well under common filesystem name limits,
// leaving room for the file suffix.
const maxTitleLen = 180

var (
	invalidNameChars = regexp.MustCompile(`[<>:"|?*]`)
	controlChars     = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	multiSpace       = regexp.MustCompile(`\s+`)
)

// reservedNames are device names Windows refuses as file names regardless
// of extension.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// ValidateTitle rejects titles that could escape the store directory or
// cannot become a file name at all.
func ValidateTitle(title string) error {
	t := strings.TrimSpace(title)
	if t == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if utf8.RuneCountInString(t) > maxTitleLen {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidTitle, maxTitleLen)
	}
	if strings.ContainsAny(t, "/\\") {
		return fmt.Errorf("%w: contains a path separator", ErrInvalidTitle)
	}
	if strings.Contains(t, "..") {
		return fmt.Errorf("%w: contains a traversal sequence", ErrInvalidTitle)
	}
	if t == "." {
		return fmt.Errorf("%w: reserved name", ErrInvalidTitle)
	}
	base := strings.ToLower(t)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if _, ok := reservedNames[base]; ok {
		return fmt.Errorf("%w: reserved name %q", ErrInvalidTitle, t)
	}
	return nil
}

// sanitizeTitle derives a safe file-name stem from an already validated
// title. It strips characters that are invalid in file names on common
// filesystems and normalizes whitespace.
func sanitizeTitle(title string) string {
	t := invalidNameChars.ReplaceAllString(title, "")
	t = controlChars.ReplaceAllString(t, " ")
	t = multiSpace.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)
	if t == "" {
		t = "untitled"
	}
	return t
}
