package loader

import (
	"context"
	"sort"
	"time"

	"github.com/ammar0144/postloader/pkg/models"
)

type archiveRow struct {
	Year      int `gorm:"column:year"`
	Month     int `gorm:"column:month"`
	PostCount int `gorm:"column:post_count"`
}

// ArchiveYears summarizes enabled posts per year and month, newest first.
// Months follow the loader's zone. Only the tenant of the configuration
// applies; fields, filters and range do not.
func (l *Loader) ArchiveYears(ctx context.Context) ([]models.ArchiveYear, error) {
	key := archiveKey(l.cfg, l.loc)

	var years []models.ArchiveYear
	if l.cacheGet(ctx, EntryArchive, key, &years) {
		return years, nil
	}

	rows, err := l.archiveRows(ctx)
	if err != nil {
		return nil, err
	}

	years = groupArchive(rows)
	l.cacheSet(ctx, EntryArchive, key, years)
	return years, nil
}

// archiveRows counts posts per month in the loader's zone. Dialects that
// cannot convert each row in SQL return the dates, which are bucketed here.
func (l *Loader) archiveRows(ctx context.Context) ([]archiveRow, error) {
	dialect := l.store.Dialect()
	if dialect.ZoneAware() {
		sql, args := buildArchive(l.cfg, dialect, l.loc, time.Now())
		var rows []archiveRow
		if err := l.query(ctx, queryArchive, &rows, sql, args...); err != nil {
			return nil, err
		}
		return rows, nil
	}

	sql, args := buildArchiveDates(l.cfg)
	var dates []archiveDate
	if err := l.query(ctx, queryArchive, &dates, sql, args...); err != nil {
		return nil, err
	}
	return bucketArchive(dates, l.loc), nil
}

type archiveDate struct {
	PublishDate time.Time `gorm:"column:publish_date"`
}

// bucketArchive counts dates per month in loc, newest month first
func bucketArchive(dates []archiveDate, loc *time.Location) []archiveRow {
	counts := make(map[[2]int]int)
	for _, d := range dates {
		local := d.PublishDate.In(loc)
		counts[[2]int{local.Year(), int(local.Month())}]++
	}

	rows := make([]archiveRow, 0, len(counts))
	for ym, n := range counts {
		rows = append(rows, archiveRow{Year: ym[0], Month: ym[1], PostCount: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year > rows[j].Year
		}
		return rows[i].Month > rows[j].Month
	})
	return rows
}

// groupArchive folds rows ordered by year and month descending into years
func groupArchive(rows []archiveRow) []models.ArchiveYear {
	years := []models.ArchiveYear{}
	for _, r := range rows {
		if n := len(years); n == 0 || years[n-1].Year != r.Year {
			years = append(years, models.ArchiveYear{Year: r.Year})
		}
		y := &years[len(years)-1]
		y.PostCount += r.PostCount
		y.Months = append(y.Months, models.ArchiveMonth{Month: r.Month, PostCount: r.PostCount})
	}
	return years
}
