package storage

import (
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour and driver of a repository.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) String() string {
	return string(d)
}

func (d Dialect) driverName() string {
	return string(d)
}

// rebind rewrites '?' placeholders to '$n' for PostgreSQL. Queries in this
// package never contain a literal '?', so no quoting rules are needed.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
