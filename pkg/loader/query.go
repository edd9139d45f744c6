package loader

import (
	"time"

	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/models"
)

const (
	postTenantColumn = models.TablePost + ".instance"
	postIDColumn     = models.TablePost + ".id"
)

// baseSelect returns the shared part of list and single-post queries:
// selected columns, field joins, tenant scope and the where fragment. The
// tenant column is always selected so loaded posts keep their tenant.
func baseSelect(cfg QueryConfig) (*db.Builder, error) {
	if err := cfg.validateSelect(); err != nil {
		return nil, err
	}
	b := db.NewBuilder(models.TablePost).Select(append(cfg.Fields.columns(), postTenantColumn)...)
	for _, j := range cfg.Fields.joins() {
		b.InnerJoin(j.table, j.condition)
	}
	b.WhereNullable(postTenantColumn, cfg.Tenant)
	b.WhereRaw(cfg.Where, cfg.WhereArgs...)
	return b, nil
}

// buildList renders the primary list query
func buildList(cfg QueryConfig) (string, []interface{}, error) {
	b, err := baseSelect(cfg)
	if err != nil {
		return "", nil, err
	}
	b.OrderByRaw(cfg.OrderBy)
	if cfg.Range != nil && cfg.Range.Limit > 0 {
		b.Limit(cfg.Range.Limit).Offset(cfg.Range.Offset)
	}
	sql, args := b.BuildSelect()
	return sql, args, nil
}

// buildCount renders the count query. Fields, order, range and
// associations do not affect it.
func buildCount(cfg QueryConfig) (string, []interface{}) {
	b := db.NewBuilder(models.TablePost).Select("count(1)")
	b.WhereNullable(postTenantColumn, cfg.Tenant)
	b.WhereRaw(cfg.Where, cfg.WhereArgs...)
	return b.BuildSelect()
}

// buildByID renders a single-post lookup by primary key
func buildByID(cfg QueryConfig, id int64) (string, []interface{}, error) {
	b, err := baseSelect(cfg)
	if err != nil {
		return "", nil, err
	}
	b.Where(postIDColumn, db.Equal, id).Limit(1)
	sql, args := b.BuildSelect()
	return sql, args, nil
}

// buildByNaturalKey renders a lookup of the post with shortname published
// in the calendar month of date. The month is read from date's own wall
// clock; only the stored column is converted to loc.
func buildByNaturalKey(cfg QueryConfig, dialect db.Dialect, loc *time.Location, date time.Time, shortname string) (string, []interface{}, error) {
	b, err := baseSelect(cfg)
	if err != nil {
		return "", nil, err
	}
	mid := time.Date(date.Year(), date.Month(), 15, 12, 0, 0, 0, loc)
	local, localArgs := dialect.LocalTime(models.TablePost+".publish_date", loc, mid)
	args := append(localArgs, date.Format(yearMonthLayout))

	b.Where(models.TablePost+".shortname", db.Equal, shortname)
	b.WhereRaw(dialect.YearMonth(local)+" = ?", args...)
	b.Limit(1)
	sql, sqlArgs := b.BuildSelect()
	return sql, sqlArgs, nil
}

// buildArchiveDates renders the publish dates of enabled posts, for
// dialects that cannot convert each row to loc in SQL
func buildArchiveDates(cfg QueryConfig) (string, []interface{}) {
	b := db.NewBuilder(models.TablePost).Select(models.TablePost + ".publish_date")
	b.WhereNullable(postTenantColumn, cfg.Tenant)
	b.Where(models.TablePost+".enabled", db.Equal, true)
	return b.BuildSelect()
}

// buildArchive renders the per-month count of enabled posts in loc
func buildArchive(cfg QueryConfig, dialect db.Dialect, loc *time.Location, ref time.Time) (string, []interface{}) {
	local, localArgs := dialect.LocalTime(models.TablePost+".publish_date", loc, ref)
	b := db.NewBuilder(models.TablePost).
		SelectExpr(dialect.Year(local)+" AS year", localArgs...).
		SelectExpr(dialect.Month(local)+" AS month", localArgs...).
		SelectExpr("count(1) AS post_count")
	b.WhereNullable(postTenantColumn, cfg.Tenant)
	b.Where(models.TablePost+".enabled", db.Equal, true)
	b.GroupBy("year", "month")
	b.OrderByRaw("year DESC, month DESC")
	return b.BuildSelect()
}

const yearMonthLayout = "2006-01"
