// Package loader loads blog posts with a bounded number of SQL queries and a
// read-through cache.
//
// A Loader holds one query configuration: the selected fields, an optional
// where fragment, ordering, range and the associations to resolve. Every
// load first consults the cache under a key derived from the full
// configuration. On a miss it runs one primary query and at most one batch
// query per association, then populates the cache. All entries live in the
// Namespace, which writers flush after any change that could alter a
// result.
//
// Loaders are cheap, per-request values and must not be mutated
// concurrently. The Store and Cache they share are safe for concurrent use.
package loader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ammar0144/postloader/pkg/cache"
	"github.com/ammar0144/postloader/pkg/models"
)

// Loader is the post loading facade
type Loader struct {
	store   Store
	cache   cache.Cache
	loc     *time.Location
	logger  *zap.Logger
	metrics *Metrics
	cfg     QueryConfig
}

// Option configures a Loader
type Option func(*Loader)

// WithCache sets the cache. A nil cache disables caching.
func WithCache(c cache.Cache) Option {
	return func(l *Loader) { l.cache = cache.OrNop(c) }
}

// WithTenant scopes every query to tenant; nil selects rows without a tenant
func WithTenant(tenant *int64) Option {
	return func(l *Loader) {
		if tenant == nil {
			l.cfg.Tenant = nil
			return
		}
		t := *tenant
		l.cfg.Tenant = &t
	}
}

// WithTimeZone sets the zone months are computed in for natural keys and
// the archive. Defaults to UTC.
func WithTimeZone(loc *time.Location) Option {
	return func(l *Loader) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithLogger sets the logger for degraded cache operations
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithConfig replaces the query configuration. The tenant of cfg is kept
// unless a later WithTenant overrides it.
func WithConfig(cfg QueryConfig) Option {
	return func(l *Loader) { l.cfg = cfg.Clone() }
}

// New creates a loader with the default configuration: fields id and
// shortname, newest first, no range and no associations
func New(store Store, opts ...Option) *Loader {
	l := &Loader{
		store:  store,
		cache:  cache.Nop{},
		loc:    time.UTC,
		logger: zap.NewNop(),
		cfg:    DefaultQueryConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns a copy of the current query configuration
func (l *Loader) Config() QueryConfig {
	return l.cfg.Clone()
}

// Location returns the zone used for month computations
func (l *Loader) Location() *time.Location {
	return l.loc
}

// AddField selects f
func (l *Loader) AddField(f Field) error {
	if !f.Valid() {
		return fmt.Errorf("%w: unknown field %d", ErrConfiguration, uint8(f))
	}
	l.cfg.Fields = l.cfg.Fields.With(f)
	return nil
}

// RemoveField deselects f. Removing the author field also stops author
// resolution.
func (l *Loader) RemoveField(f Field) {
	l.cfg.Fields = l.cfg.Fields.Without(f)
}

// SetFields replaces the selected fields
func (l *Loader) SetFields(fields ...Field) error {
	var s FieldSet
	for _, f := range fields {
		if !f.Valid() {
			return fmt.Errorf("%w: unknown field %d", ErrConfiguration, uint8(f))
		}
		s = s.With(f)
	}
	l.cfg.Fields = s
	return nil
}

// SetWhere sets the trusted where fragment and its bound arguments.
// An empty fragment clears the filter.
func (l *Loader) SetWhere(fragment string, args ...interface{}) {
	l.cfg.Where = fragment
	if fragment == "" {
		args = nil
	}
	l.cfg.WhereArgs = append([]interface{}(nil), args...)
	if len(l.cfg.WhereArgs) == 0 {
		l.cfg.WhereArgs = nil
	}
}

// SetOrderBy sets the trusted order fragment. Empty disables ordering.
func (l *Loader) SetOrderBy(fragment string) {
	l.cfg.OrderBy = fragment
}

// SetRange limits list results. A zero limit removes the range.
func (l *Loader) SetRange(limit, offset int) error {
	if limit < 0 || offset < 0 {
		return fmt.Errorf("%w: range limit %d offset %d", ErrConfiguration, limit, offset)
	}
	if limit == 0 {
		l.cfg.Range = nil
		return nil
	}
	l.cfg.Range = &Range{Limit: limit, Offset: offset}
	return nil
}

// ClearRange removes the range
func (l *Loader) ClearRange() {
	l.cfg.Range = nil
}

// SetLoadAssociation turns resolution of a for loaded posts on or off.
// Enabling the author association also selects the author field.
func (l *Loader) SetLoadAssociation(a Association, enabled bool) error {
	switch a {
	case AssociationAuthor:
		l.cfg.LoadAuthor = enabled
		if enabled {
			l.cfg.Fields = l.cfg.Fields.With(FieldAuthor)
		}
	case AssociationFiles:
		l.cfg.LoadFiles = enabled
	case AssociationTags:
		l.cfg.LoadTags = enabled
	default:
		return fmt.Errorf("%w: unknown association %d", ErrConfiguration, uint8(a))
	}
	return nil
}

// List returns the posts matching the configuration, in query order
func (l *Loader) List(ctx context.Context) (*models.PostSet, error) {
	if err := l.cfg.validateSelect(); err != nil {
		return nil, err
	}
	key := KeyFor(EntryList, l.cfg)

	if set, ok := l.cachedList(ctx, key); ok {
		l.bindAll(set)
		return set, nil
	}

	sql, args, err := buildList(l.cfg)
	if err != nil {
		return nil, err
	}
	var rows []models.Post
	if err := l.query(ctx, queryList, &rows, sql, args...); err != nil {
		return nil, err
	}
	set := models.NewPostSet(rows)
	if err := l.resolveAssociations(ctx, set); err != nil {
		return nil, err
	}

	l.storeList(ctx, key, set)
	l.bindAll(set)
	return set, nil
}

// Count returns the number of posts matching the tenant and where fragment
func (l *Loader) Count(ctx context.Context) (int64, error) {
	key := countKey(l.cfg)

	var count int64
	if l.cacheGet(ctx, EntryCount, key, &count) {
		return count, nil
	}

	sql, args := buildCount(l.cfg)
	if err := l.query(ctx, queryCount, &count, sql, args...); err != nil {
		return 0, err
	}
	l.cacheSet(ctx, EntryCount, key, count)
	return count, nil
}

// ByID returns the post with id, or nil when no post matches
func (l *Loader) ByID(ctx context.Context, id int64) (*models.Post, error) {
	if err := l.cfg.validateSelect(); err != nil {
		return nil, err
	}
	key := postKey(l.cfg, id)
	return l.single(ctx, EntryPost, key, func() (string, []interface{}, error) {
		return buildByID(l.cfg, id)
	})
}

// ByNaturalKey returns the post with shortname published in the calendar
// month of date, or nil when none matches. The month is date's own; publish
// dates are converted to the loader's zone before comparing.
func (l *Loader) ByNaturalKey(ctx context.Context, date time.Time, shortname string) (*models.Post, error) {
	if err := l.cfg.validateSelect(); err != nil {
		return nil, err
	}
	key := naturalKey(l.cfg, l.loc, date, shortname)
	return l.single(ctx, EntryNaturalKey, key, func() (string, []interface{}, error) {
		return buildByNaturalKey(l.cfg, l.store.Dialect(), l.loc, date, shortname)
	})
}

// singleEnvelope caches single-post results, including "not found"
type singleEnvelope struct {
	Found bool         `msgpack:"found"`
	Post  *models.Post `msgpack:"post"`
}

func (l *Loader) single(ctx context.Context, entry, key string, build func() (string, []interface{}, error)) (*models.Post, error) {
	var env singleEnvelope
	if l.cacheGet(ctx, entry, key, &env) {
		if !env.Found || env.Post == nil {
			return nil, nil
		}
		l.normalize(env.Post)
		l.bind(env.Post)
		return env.Post, nil
	}

	sql, args, err := build()
	if err != nil {
		return nil, err
	}
	var rows []models.Post
	if err := l.query(ctx, querySingle, &rows, sql, args...); err != nil {
		return nil, err
	}
	set := models.NewPostSet(rows)
	if err := l.resolveAssociations(ctx, set); err != nil {
		return nil, err
	}

	post := set.First()
	l.cacheSet(ctx, entry, key, singleEnvelope{Found: post != nil, Post: post})
	if post != nil {
		l.bind(post)
	}
	return post, nil
}

// cachedList reads a two-tier list entry: an index of ids plus one entry
// per post. A list with any member missing counts as a miss.
func (l *Loader) cachedList(ctx context.Context, key string) (*models.PostSet, bool) {
	var ids []int64
	if !l.cacheGet(ctx, EntryList, key, &ids) {
		return nil, false
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = memberKey(key, id)
	}
	members, err := l.cache.GetMany(ctx, Namespace, keys)
	if err != nil {
		l.metrics.lookup(EntryList, outcomeError)
		l.logger.Warn("cache get many failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if len(members) != len(keys) {
		l.metrics.lookup(EntryList, outcomePartial)
		return nil, false
	}

	set := &models.PostSet{}
	for _, k := range keys {
		var post models.Post
		if err := decodePayload(members[k], &post); err != nil {
			l.metrics.lookup(EntryList, outcomeError)
			l.logger.Warn("discarding undecodable cached post", zap.String("key", k), zap.Error(err))
			return nil, false
		}
		l.normalize(&post)
		set.Add(post)
	}
	return set, true
}

// storeList writes members before the index so a reader never sees an
// index whose members were not written yet
func (l *Loader) storeList(ctx context.Context, key string, set *models.PostSet) {
	posts := set.Posts()
	for i := range posts {
		if !l.cacheSet(ctx, EntryList, memberKey(key, posts[i].ID), &posts[i]) {
			return
		}
	}
	l.cacheSet(ctx, EntryList, key, set.IDs())
}

// cacheGet decodes the entry at key into dest. Cache failures degrade to
// a miss.
func (l *Loader) cacheGet(ctx context.Context, entry, key string, dest interface{}) bool {
	data, found, err := l.cache.Get(ctx, Namespace, key)
	if err != nil {
		l.metrics.lookup(entry, outcomeError)
		l.logger.Warn("cache get failed", zap.String("entry", entry), zap.String("key", key), zap.Error(err))
		return false
	}
	if !found {
		l.metrics.lookup(entry, outcomeMiss)
		return false
	}
	if err := decodePayload(data, dest); err != nil {
		l.metrics.lookup(entry, outcomeError)
		l.logger.Warn("discarding undecodable cache entry", zap.String("entry", entry), zap.String("key", key), zap.Error(err))
		return false
	}
	l.metrics.lookup(entry, outcomeHit)
	return true
}

// cacheSet stores value at key. Failures are logged and reported as false.
func (l *Loader) cacheSet(ctx context.Context, entry, key string, value interface{}) bool {
	data, err := encodePayload(value)
	if err == nil {
		err = l.cache.Set(ctx, Namespace, key, data)
	}
	l.metrics.write(entry, err)
	if err != nil {
		l.logger.Warn("cache set failed", zap.String("entry", entry), zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// query runs one SQL statement against the store
func (l *Loader) query(ctx context.Context, kind string, dest interface{}, sql string, args ...interface{}) error {
	l.metrics.query(kind)
	if err := l.store.Select(ctx, dest, sql, args...); err != nil {
		return storeError(kind+" query", err)
	}
	return nil
}

// bind attaches p to the store, limiting Save to the selected columns
func (l *Loader) bind(p *models.Post) {
	p.Bind(l.store.DB(), l.cfg.Fields.storedColumns())
}

func (l *Loader) bindAll(set *models.PostSet) {
	handle := l.store.DB()
	cols := l.cfg.Fields.storedColumns()
	for i := 0; i < set.Len(); i++ {
		set.At(i).Bind(handle, cols)
	}
}

// normalize restores what the payload codec does not carry: UTC locations
// and empty, non-nil collections for requested associations
func (l *Loader) normalize(p *models.Post) {
	p.PublishDate = p.PublishDate.UTC()
	p.CreateDate = p.CreateDate.UTC()
	p.ModifiedDate = p.ModifiedDate.UTC()
	if l.cfg.LoadFiles && p.Files == nil {
		p.Files = []models.File{}
	}
	if l.cfg.LoadTags && p.Tags == nil {
		p.Tags = []models.Tag{}
	}
}
