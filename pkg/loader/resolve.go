package loader

import (
	"context"

	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/models"
)

// tagRow is a tag joined with the post it is bound to
type tagRow struct {
	models.Tag `gorm:"embedded"`
	PostID     int64 `gorm:"column:post"`
}

// resolveAssociations runs at most one query per requested association
func (l *Loader) resolveAssociations(ctx context.Context, set *models.PostSet) error {
	if set.Len() == 0 {
		return nil
	}
	if l.cfg.loadsAuthor() {
		if err := l.resolveAuthors(ctx, set); err != nil {
			return err
		}
	}
	if l.cfg.LoadFiles {
		if err := l.resolveFiles(ctx, set); err != nil {
			return err
		}
	}
	if l.cfg.LoadTags {
		if err := l.resolveTags(ctx, set); err != nil {
			return err
		}
	}
	return nil
}

// resolveAuthors loads the distinct authors of set with one IN query.
// Posts without an author keep a nil Author.
func (l *Loader) resolveAuthors(ctx context.Context, set *models.PostSet) error {
	seen := make(map[int64]bool)
	var ids []int64
	for _, p := range set.Posts() {
		if p.AuthorID != nil && !seen[*p.AuthorID] {
			seen[*p.AuthorID] = true
			ids = append(ids, *p.AuthorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	sql, args := db.NewBuilder(models.TableAuthor).
		Select("id", "name", "shortname", "visible").
		WhereNullable(models.TableAuthor+".instance", l.cfg.Tenant).
		Where(models.TableAuthor+".id", db.In, ids).
		BuildSelect()

	var authors []models.Author
	if err := l.query(ctx, queryAuthors, &authors, sql, args...); err != nil {
		return err
	}

	byID := make(map[int64]*models.Author, len(authors))
	for i := range authors {
		byID[authors[i].ID] = &authors[i]
	}
	posts := set.Posts()
	for i := range posts {
		if posts[i].AuthorID != nil {
			posts[i].Author = byID[*posts[i].AuthorID]
		}
	}
	return nil
}

// resolveFiles loads the visible files of every post in set
func (l *Loader) resolveFiles(ctx context.Context, set *models.PostSet) error {
	sql, args := db.NewBuilder(models.TableFile).
		Select(models.TableFile+".*").
		Where(models.TableFile+".post", db.In, set.IDs()).
		Where(models.TableFile+".visible", db.Equal, true).
		WhereNullable(models.TableFile+".instance", l.cfg.Tenant).
		OrderByRaw(models.TableFile + ".post, " + models.TableFile + ".create_date DESC").
		BuildSelect()

	var files []models.File
	if err := l.query(ctx, queryFiles, &files, sql, args...); err != nil {
		return err
	}

	attachChildren(set, files,
		func(f *models.File) (int64, bool) {
			if f.PostID == nil {
				return 0, false
			}
			return *f.PostID, true
		},
		func(f *models.File) models.File { return *f },
		func(p *models.Post) *[]models.File { return &p.Files },
	)
	return nil
}

// resolveTags loads the tags bound to every post in set
func (l *Loader) resolveTags(ctx context.Context, set *models.PostSet) error {
	binding := models.TablePostTagBinding
	sql, args := db.NewBuilder(models.TableTag).
		Select(models.TableTag+".*", binding+".post AS post").
		InnerJoin(binding, binding+".tag = "+models.TableTag+".id").
		Where(binding+".post", db.In, set.IDs()).
		WhereNullable(models.TableTag+".instance", l.cfg.Tenant).
		OrderByRaw(binding + ".post, " + models.TableTag + ".create_date DESC").
		BuildSelect()

	var rows []tagRow
	if err := l.query(ctx, queryTags, &rows, sql, args...); err != nil {
		return err
	}

	attachChildren(set, rows,
		func(r *tagRow) (int64, bool) { return r.PostID, true },
		func(r *tagRow) models.Tag { return r.Tag },
		func(p *models.Post) *[]models.Tag { return &p.Tags },
	)
	return nil
}

// attachChildren distributes rows ordered by parent id over the posts of
// set. Every post first gets an empty, non-nil collection; a cursor then
// follows the parent id and only looks the post up when it changes.
func attachChildren[R, C any](
	set *models.PostSet,
	rows []R,
	parentOf func(*R) (int64, bool),
	child func(*R) C,
	slot func(*models.Post) *[]C,
) {
	for i := 0; i < set.Len(); i++ {
		*slot(set.At(i)) = []C{}
	}

	var (
		current   *models.Post
		currentID int64
		started   bool
	)
	for i := range rows {
		id, ok := parentOf(&rows[i])
		if !ok {
			continue
		}
		if !started || id != currentID {
			current = set.Get(id)
			currentID = id
			started = true
		}
		if current == nil {
			continue
		}
		s := slot(current)
		*s = append(*s, child(&rows[i]))
	}
}
