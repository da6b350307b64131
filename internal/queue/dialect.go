package queue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Driver selects the SQL backend the store runs against.
type Driver string

const (
	// DriverSQLite backs the queue with a local SQLite file. Claims are
	// atomic because SQLite serializes writers.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres backs the queue with PostgreSQL. Claims rely on
	// FOR UPDATE SKIP LOCKED row locking.
	DriverPostgres Driver = "postgres"
)

// ParseDriver converts a string into a known Driver.
func ParseDriver(value string) (Driver, bool) {
	switch Driver(strings.ToLower(strings.TrimSpace(value))) {
	case DriverSQLite:
		return DriverSQLite, true
	case DriverPostgres:
		return DriverPostgres, true
	default:
		return "", false
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTableName rejects table names that cannot be safely interpolated
// into statements. The table name is the only identifier that ever reaches
// SQL text; everything else is a bound parameter.
func ValidateTableName(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid pipeline table name %q", name)
	}
	return nil
}

// rebind rewrites ? placeholders into the $1..$n form PostgreSQL expects.
// SQLite statements pass through untouched.
func (d Driver) rebind(query string) string {
	if d != DriverPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// sqliteTimeLayout is fixed-width so the TEXT ordering SQLite compares with
// matches chronological order. RFC3339Nano trims trailing zeros and would
// sort "…00.15Z" before "…00.1Z".
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeValue encodes a timestamp the way the backend stores it: fixed-width
// UTC text for SQLite, native timestamptz for PostgreSQL.
func (d Driver) timeValue(t time.Time) any {
	if d == DriverPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

// parseTimeAny normalizes a scanned timestamp column across backends.
func parseTimeAny(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v.UTC(), true
	case string:
		return parseTimeString(v)
	case []byte:
		return parseTimeString(string(v))
	default:
		return time.Time{}, false
	}
}

func parseTimeString(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// stringAny normalizes a scanned text or JSON column across backends.
func stringAny(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
