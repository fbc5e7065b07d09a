package mariadb

import (
	"strconv"

	"github.com/skymond-software/mariadb-client/internal/result"
)

// cellString renders a DbResult cell the way the façade needs for DESCRIBE
// and scalar-aggregate parsing: a small package-local duplicate of
// result.DbResult's unexported cellString, kept separate rather than
// exported across the package boundary for four lines of type-switch code.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return result.FieldValue{Value: t}.String()
	}
}

// parseInt64 best-effort parses a DESCRIBE/COUNT(*) scalar cell, returning 0
// on a NULL or unparsable aggregate (e.g. SUM() over an empty database).
func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
