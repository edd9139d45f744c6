package db

import (
	"fmt"
	"time"
)

// Dialect isolates the handful of SQL expressions that differ between the
// supported backends. Everything else the loader emits is portable SQL.
//
// Stored timestamps are UTC. LocalTime converts a timestamp column to wall
// clock time in loc on the database side so month and year boundaries
// follow the target zone rather than UTC.
type Dialect interface {
	// Name returns the driver name
	Name() string

	// LocalTime returns an expression for column converted to loc.
	// ref anchors zone offsets for dialects without time zone tables.
	LocalTime(column string, loc *time.Location, ref time.Time) (string, []interface{})

	// ZoneAware reports whether LocalTime applies each row's own offset.
	// When false, callers needing exact per-row conversion do it in Go.
	ZoneAware() bool

	// YearMonth formats a timestamp expression as "YYYY-MM"
	YearMonth(expr string) string

	// Year and Month extract integer parts from a timestamp expression
	Year(expr string) string
	Month(expr string) string

	// CreateView returns DDL creating (or replacing) a view
	CreateView(name, body string) string
}

// MySQLDialect targets MySQL 8 / MariaDB. CONVERT_TZ with named zones
// requires the server's time zone tables to be loaded.
type MySQLDialect struct{}

// Name returns "mysql"
func (MySQLDialect) Name() string { return DriverMySQL }

// LocalTime converts a UTC column with CONVERT_TZ
func (MySQLDialect) LocalTime(column string, loc *time.Location, _ time.Time) (string, []interface{}) {
	return fmt.Sprintf("CONVERT_TZ(%s, '+00:00', ?)", column), []interface{}{zoneName(loc)}
}

// ZoneAware is true: CONVERT_TZ follows the zone rules per row
func (MySQLDialect) ZoneAware() bool { return true }

// YearMonth formats with DATE_FORMAT
func (MySQLDialect) YearMonth(expr string) string {
	return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", expr)
}

// Year extracts the year
func (MySQLDialect) Year(expr string) string { return fmt.Sprintf("YEAR(%s)", expr) }

// Month extracts the month
func (MySQLDialect) Month(expr string) string { return fmt.Sprintf("MONTH(%s)", expr) }

// CreateView uses CREATE OR REPLACE VIEW
func (MySQLDialect) CreateView(name, body string) string {
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", name, body)
}

// SQLiteDialect targets SQLite. SQLite has no zone database, so LocalTime
// applies the fixed UTC offset loc has at ref; months that straddle a DST
// change may be off by the DST delta near their boundaries.
type SQLiteDialect struct{}

// Name returns "sqlite"
func (SQLiteDialect) Name() string { return DriverSQLite }

// LocalTime shifts the column by loc's offset at ref
func (SQLiteDialect) LocalTime(column string, loc *time.Location, ref time.Time) (string, []interface{}) {
	if loc == nil {
		loc = time.UTC
	}
	_, offset := ref.In(loc).Zone()
	return fmt.Sprintf("datetime(%s, ?)", column), []interface{}{fmt.Sprintf("%+d minutes", offset/60)}
}

// ZoneAware is false
func (SQLiteDialect) ZoneAware() bool { return false }

// YearMonth formats with strftime
func (SQLiteDialect) YearMonth(expr string) string {
	return fmt.Sprintf("strftime('%%Y-%%m', %s)", expr)
}

// Year extracts the year as an integer
func (SQLiteDialect) Year(expr string) string {
	return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", expr)
}

// Month extracts the month as an integer
func (SQLiteDialect) Month(expr string) string {
	return fmt.Sprintf("CAST(strftime('%%m', %s) AS INTEGER)", expr)
}

// CreateView uses CREATE VIEW IF NOT EXISTS
func (SQLiteDialect) CreateView(name, body string) string {
	return fmt.Sprintf("CREATE VIEW IF NOT EXISTS %s AS %s", name, body)
}

func zoneName(loc *time.Location) string {
	if loc == nil {
		return "UTC"
	}
	return loc.String()
}
