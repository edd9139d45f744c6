// Package testdb provides a migrated SQLite database and fixture helpers
// for package tests.
package testdb

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/models"
)

// New returns a manager for a fresh, migrated SQLite database in a
// temporary directory. It is closed when the test ends.
func New(t testing.TB) *db.Manager {
	t.Helper()
	m, err := db.NewSQLiteManager(filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Migrate(context.Background()))
	return m
}

// Tenant returns a pointer to id
func Tenant(id int64) *int64 {
	return &id
}

// Fixtures inserts rows with generated ids
type Fixtures struct {
	t  testing.TB
	m  *db.Manager
	id atomic.Int64
}

// NewFixtures wraps m
func NewFixtures(t testing.TB, m *db.Manager) *Fixtures {
	return &Fixtures{t: t, m: m}
}

func (f *Fixtures) nextID() int64 {
	return f.id.Add(1)
}

func (f *Fixtures) create(v interface{}) {
	f.t.Helper()
	require.NoError(f.t, f.m.DB().Create(v).Error)
}

// Post inserts an enabled post published at publish
func (f *Fixtures) Post(tenant *int64, shortname string, publish time.Time, mods ...func(*models.Post)) *models.Post {
	f.t.Helper()
	p := &models.Post{
		ID:           f.nextID(),
		Instance:     tenant,
		Shortname:    shortname,
		Title:        shortname,
		PublishDate:  publish.UTC(),
		CreateDate:   publish.UTC(),
		ModifiedDate: publish.UTC(),
		Enabled:      true,
	}
	for _, mod := range mods {
		mod(p)
	}
	f.create(p)
	return p
}

// Author inserts a visible author
func (f *Fixtures) Author(tenant *int64, name string) *models.Author {
	f.t.Helper()
	a := &models.Author{ID: f.nextID(), Instance: tenant, Name: name, Shortname: name, Visible: true}
	f.create(a)
	return a
}

// File inserts a file attached to post
func (f *Fixtures) File(tenant *int64, post int64, name string, created time.Time, visible bool) *models.File {
	f.t.Helper()
	file := &models.File{
		ID:         f.nextID(),
		Instance:   tenant,
		PostID:     &post,
		Filename:   name,
		Visible:    visible,
		CreateDate: created.UTC(),
	}
	f.create(file)
	return file
}

// Tag inserts a tag and binds it to posts
func (f *Fixtures) Tag(tenant *int64, shortname string, created time.Time, posts ...int64) *models.Tag {
	f.t.Helper()
	tag := &models.Tag{ID: f.nextID(), Instance: tenant, Shortname: shortname, Title: shortname, CreateDate: created.UTC()}
	f.create(tag)
	for _, p := range posts {
		f.create(&models.PostTagBinding{PostID: p, TagID: tag.ID})
	}
	return tag
}

// Comment inserts a comment on post
func (f *Fixtures) Comment(post int64, status int, spam bool) *models.Comment {
	f.t.Helper()
	c := &models.Comment{ID: f.nextID(), PostID: post, Status: status, Spam: spam, CreateDate: time.Now().UTC()}
	f.create(c)
	return c
}
