package admin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/postloader/internal/testdb"
	"github.com/ammar0144/postloader/pkg/cache"
	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/loader"
	"github.com/ammar0144/postloader/pkg/models"
)

var jan = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

// flushCounter counts flushes of the wrapped cache
type flushCounter struct {
	cache.Cache

	mu      sync.Mutex
	flushes map[string]int
	fail    error
}

func (c *flushCounter) FlushNamespace(ctx context.Context, ns string) error {
	c.mu.Lock()
	c.flushes[ns]++
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return fail
	}
	return c.Cache.FlushNamespace(ctx, ns)
}

func (c *flushCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes[loader.Namespace]
}

type recordingRemover struct {
	removed []string
	fail    error
}

func (r *recordingRemover) RemoveFile(_ context.Context, f models.File) error {
	if r.fail != nil {
		return r.fail
	}
	r.removed = append(r.removed, f.Filename)
	return nil
}

type env struct {
	db       *db.Manager
	cache    *flushCounter
	fixtures *testdb.Fixtures
}

func newEnv(t *testing.T) *env {
	t.Helper()
	m := testdb.New(t)
	mem, err := cache.NewMemory(cache.DefaultMemoryConfig())
	require.NoError(t, err)
	return &env{
		db:       m,
		cache:    &flushCounter{Cache: mem, flushes: map[string]int{}},
		fixtures: testdb.NewFixtures(t, m),
	}
}

func (e *env) rows(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.DB().Table(table).Count(&n).Error)
	return n
}

func TestDeletePosts(t *testing.T) {
	e := newEnv(t)
	f := e.fixtures
	keep := f.Post(nil, "keep", jan)
	gone := f.Post(nil, "gone", jan.Add(time.Hour))
	other := f.Post(testdb.Tenant(1), "other", jan)
	f.File(nil, gone.ID, "gone.png", jan, true)
	f.File(nil, keep.ID, "keep.png", jan, true)
	f.Comment(gone.ID, models.CommentStatusPublished, false)
	f.Tag(nil, "go", jan, gone.ID, keep.ID)
	ctx := context.Background()

	l := loader.New(e.db, loader.WithCache(e.cache))
	set, err := l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	remover := &recordingRemover{}
	s := NewService(e.db, e.cache, WithFileRemover(remover))
	n, err := s.DeletePosts(ctx, []int64{gone.ID, other.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{"gone.png"}, remover.removed)
	assert.Equal(t, 1, e.cache.count())

	assert.Equal(t, int64(2), e.rows(t, models.TablePost))
	assert.Equal(t, int64(1), e.rows(t, models.TableFile))
	assert.Equal(t, int64(0), e.rows(t, models.TableComment))
	assert.Equal(t, int64(1), e.rows(t, models.TablePostTagBinding))

	set, err = loader.New(e.db, loader.WithCache(e.cache)).List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, keep.ID, set.First().ID)
}

func TestDeletePostsRollsBackOnRemoverFailure(t *testing.T) {
	e := newEnv(t)
	p := e.fixtures.Post(nil, "p", jan)
	e.fixtures.File(nil, p.ID, "f.png", jan, true)

	s := NewService(e.db, e.cache, WithFileRemover(&recordingRemover{fail: errors.New("disk full")}))
	_, err := s.DeletePosts(context.Background(), []int64{p.ID})
	require.ErrorIs(t, err, ErrFileRemoval)

	assert.Equal(t, int64(1), e.rows(t, models.TablePost))
	assert.Equal(t, int64(1), e.rows(t, models.TableFile))
	assert.Equal(t, 0, e.cache.count())
}

func TestDeletePostsEmpty(t *testing.T) {
	e := newEnv(t)
	n, err := NewService(e.db, e.cache).DeletePosts(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, e.cache.count())
}

func TestDeleteCommentsIsTenantChecked(t *testing.T) {
	e := newEnv(t)
	mine := e.fixtures.Post(testdb.Tenant(1), "mine", jan)
	theirs := e.fixtures.Post(testdb.Tenant(2), "theirs", jan)
	c1 := e.fixtures.Comment(mine.ID, models.CommentStatusPublished, false)
	c2 := e.fixtures.Comment(theirs.ID, models.CommentStatusPublished, false)
	ctx := context.Background()

	l := loader.New(e.db, loader.WithCache(e.cache), loader.WithTenant(testdb.Tenant(1)))
	require.NoError(t, l.AddField(loader.FieldVisibleCommentCount))
	post, err := l.ByID(ctx, mine.ID)
	require.NoError(t, err)
	require.Equal(t, 1, post.VisibleCommentCount)

	s := NewService(e.db, e.cache, WithTenant(testdb.Tenant(1)))
	n, err := s.DeleteComments(ctx, []int64{c1.ID, c2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), e.rows(t, models.TableComment))

	post, err = l.ByID(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, post.VisibleCommentCount)
}

func TestAttachDetachFlushOnlyOnChange(t *testing.T) {
	e := newEnv(t)
	p := e.fixtures.Post(nil, "p", jan)
	file := e.fixtures.File(nil, p.ID, "f.png", jan, false)
	ctx := context.Background()
	s := NewService(e.db, e.cache)

	l := loader.New(e.db, loader.WithCache(e.cache))
	require.NoError(t, l.SetLoadAssociation(loader.AssociationFiles, true))
	set, err := l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, set.First().Files)

	changed, err := s.AttachFile(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, e.cache.count())

	set, err = l.List(ctx)
	require.NoError(t, err)
	require.Len(t, set.First().Files, 1)

	changed, err = s.AttachFile(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, e.cache.count())

	changed, err = NewService(e.db, e.cache, WithTenant(testdb.Tenant(5))).DetachFile(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.DetachFile(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, e.cache.count())
}

func TestDeleteFile(t *testing.T) {
	e := newEnv(t)
	p := e.fixtures.Post(nil, "p", jan)
	file := e.fixtures.File(nil, p.ID, "f.png", jan, true)
	ctx := context.Background()
	remover := &recordingRemover{}
	s := NewService(e.db, e.cache, WithFileRemover(remover))

	ok, err := NewService(e.db, e.cache, WithTenant(testdb.Tenant(1))).DeleteFile(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteFile(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"f.png"}, remover.removed)
	assert.Equal(t, int64(0), e.rows(t, models.TableFile))
	assert.Equal(t, 1, e.cache.count())

	ok, err = s.DeleteFile(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSavePost(t *testing.T) {
	e := newEnv(t)
	p := e.fixtures.Post(nil, "p", jan)
	ctx := context.Background()
	s := NewService(e.db, e.cache)

	p.Title = "Renamed"
	require.NoError(t, s.SavePost(ctx, p))
	assert.Equal(t, 1, e.cache.count())

	got, err := loader.New(e.db, loader.WithCache(e.cache), loader.WithConfig(loader.QueryConfig{
		Fields: loader.NewFieldSet(loader.FieldID, loader.FieldTitle),
	})).ByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	foreign := NewService(e.db, e.cache, WithTenant(testdb.Tenant(3)))
	assert.ErrorIs(t, foreign.SavePost(ctx, p), ErrTenantMismatch)
}

func TestSavePostLoadedFromTenant(t *testing.T) {
	e := newEnv(t)
	p := e.fixtures.Post(testdb.Tenant(7), "scoped", jan, func(p *models.Post) {
		p.Bodytext = "body"
	})
	ctx := context.Background()

	l := loader.New(e.db, loader.WithCache(e.cache), loader.WithTenant(testdb.Tenant(7)))
	require.NoError(t, l.SetFields(loader.FieldID, loader.FieldTitle))
	got, err := l.ByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	got.Title = "Renamed"
	require.NoError(t, NewService(e.db, e.cache, WithTenant(testdb.Tenant(7))).SavePost(ctx, got))
	assert.ErrorIs(t, NewService(e.db, e.cache).SavePost(ctx, got), ErrTenantMismatch)

	var row models.Post
	require.NoError(t, e.db.DB().First(&row, p.ID).Error)
	require.NotNil(t, row.Instance)
	assert.Equal(t, int64(7), *row.Instance)
	assert.Equal(t, "Renamed", row.Title)
	assert.Equal(t, "body", row.Bodytext)
	assert.Equal(t, "scoped", row.Shortname)
}

func TestFlushFailureIsReported(t *testing.T) {
	e := newEnv(t)
	p := e.fixtures.Post(nil, "p", jan)
	e.cache.fail = errors.New("redis down")

	n, err := NewService(e.db, e.cache).DeletePosts(context.Background(), []int64{p.ID})
	assert.Equal(t, int64(1), n)
	assert.True(t, IsFlushFailed(err))
	assert.Equal(t, int64(0), e.rows(t, models.TablePost))
}
