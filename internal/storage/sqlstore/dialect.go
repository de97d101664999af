/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	// database/sql drivers for the supported dialects
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures the differences between the supported SQL engines:
// placeholder style, autoincrement primary keys, and how a unique-key
// violation surfaces. Queries are written with ? placeholders and rebound
// per dialect.
type dialect struct {
	name     string
	driver   string // database/sql driver name
	serialPK string // column definition for an autoincrement PK
	rebind   func(string) string
	// duplicate names the violated unique constraint, or returns ""
	// when err is not a unique-key violation. Callers inspect the name
	// to tell a hash dedup hit from a title conflict.
	duplicate func(error) string
}

var dialects = map[string]dialect{
	"postgres": {
		name:     "postgres",
		driver:   "pgx",
		serialPK: "BIGSERIAL PRIMARY KEY",
		rebind:   rebindDollar,
		duplicate: func(err error) string {
			var pgErr *pgconn.PgError
			// 23505 is unique_violation
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return pgErr.ConstraintName
			}
			return ""
		},
	},
	"sqlite": {
		name:     "sqlite",
		driver:   "sqlite",
		serialPK: "INTEGER PRIMARY KEY AUTOINCREMENT",
		rebind:   func(q string) string { return q },
		duplicate: func(err error) string {
			// sqlite reports the column or index name inside the message
			if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
				return err.Error()
			}
			return ""
		},
	},
}

// rebindDollar rewrites ? placeholders to $1..$n for postgres.
func rebindDollar(q string) string {
	var sb strings.Builder
	sb.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteString(fmt.Sprintf("$%d", n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// escapeLike escapes the pattern-match metacharacters of LIKE so caller
// input is matched literally. Used together with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
