package dbutil

import (
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns a gendry-built query into one Postgres accepts: the
// MySQL-style `LIMIT ?,?` (offset, count) becomes `LIMIT ? OFFSET ?` with
// the two args swapped to match, then every '?' is rebound to $N.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := limitRegex.FindStringIndex(query); loc != nil {
		offsetIdx := strings.Count(query[:loc[0]], "?")
		if offsetIdx+1 < len(args) {
			args[offsetIdx], args[offsetIdx+1] = args[offsetIdx+1], args[offsetIdx]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

func IsConflict(err error) bool {
	if pgErr, ok := err.(*pq.Error); ok {
		return pgErr.Code == "23505"
	}
	return false
}
