// Package models holds the blog entities read by the loader and written by
// the admin service. Struct tags serve three readers: gorm (column mapping),
// msgpack (cache payloads) and encoding/json (HTTP responses).
package models

import (
	"time"
)

// Table and view names
const (
	TablePost                   = "blorg_post"
	TableAuthor                 = "blorg_author"
	TableFile                   = "blorg_file"
	TableTag                    = "blorg_tag"
	TablePostTagBinding         = "blorg_post_tag_binding"
	TableComment                = "blorg_comment"
	ViewPostVisibleCommentCount = "blorg_post_visible_comment_count_view"
)

// Comment status values
const (
	CommentStatusPending     = 0
	CommentStatusPublished   = 1
	CommentStatusUnpublished = 2
)

// Author writes posts. Loaded by the batch resolver when requested.
type Author struct {
	ID        int64  `gorm:"column:id;primaryKey" msgpack:"id" json:"id"`
	Instance  *int64 `gorm:"column:instance;index" msgpack:"instance" json:"-"`
	Name      string `gorm:"column:name;size:255" msgpack:"name" json:"name"`
	Shortname string `gorm:"column:shortname;size:255" msgpack:"shortname" json:"shortname"`
	Visible   bool   `gorm:"column:visible" msgpack:"visible" json:"visible"`
}

// TableName returns the database table name
func (Author) TableName() string { return TableAuthor }

// File is an attachment owned by a post. Only visible files are loaded.
type File struct {
	ID          int64     `gorm:"column:id;primaryKey" msgpack:"id" json:"id"`
	Instance    *int64    `gorm:"column:instance;index" msgpack:"instance" json:"-"`
	PostID      *int64    `gorm:"column:post;index" msgpack:"post" json:"post,omitempty"`
	Filename    string    `gorm:"column:filename;size:255" msgpack:"filename" json:"filename"`
	Description string    `gorm:"column:description;size:255" msgpack:"description" json:"description"`
	Mimetype    string    `gorm:"column:mime_type;size:255" msgpack:"mime_type" json:"mime_type"`
	Filesize    int64     `gorm:"column:filesize" msgpack:"filesize" json:"filesize"`
	Visible     bool      `gorm:"column:visible" msgpack:"visible" json:"visible"`
	CreateDate  time.Time `gorm:"column:create_date" msgpack:"create_date" json:"create_date"`
}

// TableName returns the database table name
func (File) TableName() string { return TableFile }

// Tag labels posts through PostTagBinding.
type Tag struct {
	ID         int64     `gorm:"column:id;primaryKey" msgpack:"id" json:"id"`
	Instance   *int64    `gorm:"column:instance;index" msgpack:"instance" json:"-"`
	Shortname  string    `gorm:"column:shortname;size:255" msgpack:"shortname" json:"shortname"`
	Title      string    `gorm:"column:title;size:255" msgpack:"title" json:"title"`
	CreateDate time.Time `gorm:"column:create_date" msgpack:"create_date" json:"create_date"`
}

// TableName returns the database table name
func (Tag) TableName() string { return TableTag }

// PostTagBinding links posts and tags.
type PostTagBinding struct {
	PostID int64 `gorm:"column:post;primaryKey;autoIncrement:false"`
	TagID  int64 `gorm:"column:tag;primaryKey;autoIncrement:false"`
}

// TableName returns the database table name
func (PostTagBinding) TableName() string { return TablePostTagBinding }

// Comment belongs to a post. Comments carry no tenant column of their own;
// ownership is checked through the post.
type Comment struct {
	ID         int64     `gorm:"column:id;primaryKey" json:"id"`
	PostID     int64     `gorm:"column:post;index" json:"post"`
	Fullname   string    `gorm:"column:fullname;size:255" json:"fullname"`
	Bodytext   string    `gorm:"column:bodytext;type:text" json:"bodytext"`
	Status     int       `gorm:"column:status" json:"status"`
	Spam       bool      `gorm:"column:spam" json:"spam"`
	CreateDate time.Time `gorm:"column:create_date" json:"create_date"`
}

// TableName returns the database table name
func (Comment) TableName() string { return TableComment }

// ArchiveMonth is the number of enabled posts published in one month
type ArchiveMonth struct {
	Month     int `msgpack:"month" json:"month"`
	PostCount int `msgpack:"post_count" json:"post_count"`
}

// ArchiveYear groups archive months, newest first
type ArchiveYear struct {
	Year      int            `msgpack:"year" json:"year"`
	PostCount int            `msgpack:"post_count" json:"post_count"`
	Months    []ArchiveMonth `msgpack:"months" json:"months"`
}

// All returns every persisted model, in migration order
func All() []interface{} {
	return []interface{}{
		&Author{},
		&Post{},
		&File{},
		&Tag{},
		&PostTagBinding{},
		&Comment{},
	}
}
