package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrUnbound is returned when a post without a database binding is saved
var ErrUnbound = errors.New("post is not bound to a database")

// Post is the primary entity served by the loader.
//
// Author, Files and Tags are attached by the loader's batch resolver and are
// never read or written by gorm directly. A nil Files/Tags slice means the
// association was not requested; an empty one means the post has none.
type Post struct {
	ID                  int64     `gorm:"column:id;primaryKey" msgpack:"id" json:"id"`
	Instance            *int64    `gorm:"column:instance;index" msgpack:"instance" json:"-"`
	Shortname           string    `gorm:"column:shortname;size:255;index" msgpack:"shortname" json:"shortname"`
	Title               string    `gorm:"column:title;size:255" msgpack:"title" json:"title,omitempty"`
	Bodytext            string    `gorm:"column:bodytext;type:text" msgpack:"bodytext" json:"bodytext,omitempty"`
	ExtendedBodytext    string    `gorm:"column:extended_bodytext;type:text" msgpack:"extended_bodytext" json:"extended_bodytext,omitempty"`
	PublishDate         time.Time `gorm:"column:publish_date;index" msgpack:"publish_date" json:"publish_date,omitempty"`
	CreateDate          time.Time `gorm:"column:create_date" msgpack:"create_date" json:"create_date,omitempty"`
	ModifiedDate        time.Time `gorm:"column:modified_date" msgpack:"modified_date" json:"modified_date,omitempty"`
	Enabled             bool      `gorm:"column:enabled" msgpack:"enabled" json:"enabled"`
	CommentStatus       int       `gorm:"column:comment_status" msgpack:"comment_status" json:"comment_status,omitempty"`
	AuthorID            *int64    `gorm:"column:author;index" msgpack:"author_id" json:"author_id,omitempty"`
	VisibleCommentCount int       `gorm:"column:visible_comment_count;->;-:migration" msgpack:"visible_comment_count" json:"visible_comment_count"`

	Author *Author `gorm:"-" msgpack:"author" json:"author,omitempty"`
	Files  []File  `gorm:"-" msgpack:"files" json:"files,omitempty"`
	Tags   []Tag   `gorm:"-" msgpack:"tags" json:"tags,omitempty"`

	db      *gorm.DB
	columns []string
}

// TableName returns the database table name
func (Post) TableName() string { return TablePost }

// Bind attaches the post to a live database handle. Posts decoded from the
// cache are snapshots and must be rebound before Save.
//
// columns names the loaded columns Save may write. A nil slice means the
// post is complete and Save writes every column; a partially loaded post
// must list its columns so Save leaves the others untouched.
func (p *Post) Bind(db *gorm.DB, columns []string) {
	p.db = db
	p.columns = columns
}

// Bound reports whether the post has a database binding
func (p *Post) Bound() bool {
	return p.db != nil
}

// Save writes the post through its binding and stamps ModifiedDate.
// Associations and the read-only comment count are not written.
func (p *Post) Save(ctx context.Context) error {
	if p.db == nil {
		return ErrUnbound
	}
	p.ModifiedDate = time.Now().UTC()

	tx := p.db.WithContext(ctx)
	if p.columns == nil {
		tx = tx.Omit("visible_comment_count").Save(p)
	} else {
		tx = tx.Model(p).Select(p.saveColumns()).Updates(p)
	}
	if err := tx.Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

func (p *Post) saveColumns() []string {
	cols := append(make([]string, 0, len(p.columns)+1), p.columns...)
	for _, c := range cols {
		if c == "modified_date" {
			return cols
		}
	}
	return append(cols, "modified_date")
}
