package loader

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForIsDeterministic(t *testing.T) {
	a := DefaultQueryConfig()
	a.Fields = NewFieldSet(FieldTitle, FieldID, FieldBodytext)
	a.Tenant = tenant(1)
	a.Where = "blorg_post.enabled = ?"
	a.WhereArgs = []interface{}{true}

	b := DefaultQueryConfig()
	b.Fields = NewFieldSet(FieldBodytext, FieldID, FieldTitle)
	b.Tenant = tenant(1)
	b.Where = "blorg_post.enabled = ?"
	b.WhereArgs = []interface{}{true}

	assert.Equal(t, KeyFor(EntryList, a), KeyFor(EntryList, b))
	assert.True(t, strings.HasPrefix(KeyFor(EntryList, a), EntryList+":"))
}

func TestKeyForDistinguishesEveryParameter(t *testing.T) {
	base := DefaultQueryConfig()
	base.Fields = base.Fields.With(FieldAuthor)

	variants := map[string]func(*QueryConfig){
		"tenant":       func(c *QueryConfig) { c.Tenant = tenant(1) },
		"tenant zero":  func(c *QueryConfig) { c.Tenant = tenant(0) },
		"fields":       func(c *QueryConfig) { c.Fields = c.Fields.With(FieldTitle) },
		"where":        func(c *QueryConfig) { c.Where = "blorg_post.enabled = 1" },
		"where args":   func(c *QueryConfig) { c.Where = "blorg_post.id > ?"; c.WhereArgs = []interface{}{5} },
		"order":        func(c *QueryConfig) { c.OrderBy = "blorg_post.id" },
		"range":        func(c *QueryConfig) { c.Range = &Range{Limit: 10} },
		"range offset": func(c *QueryConfig) { c.Range = &Range{Limit: 10, Offset: 10} },
		"author":       func(c *QueryConfig) { c.LoadAuthor = true },
		"files":        func(c *QueryConfig) { c.LoadFiles = true },
		"tags":         func(c *QueryConfig) { c.LoadTags = true },
	}

	seen := map[string]string{"base": KeyFor(EntryList, base)}
	for name, mutate := range variants {
		cfg := base.Clone()
		mutate(&cfg)
		key := KeyFor(EntryList, cfg)
		for other, otherKey := range seen {
			assert.NotEqual(t, otherKey, key, "%s collides with %s", name, other)
		}
		seen[name] = key
	}
}

func TestKeyForSeparatesWhereArgValues(t *testing.T) {
	a := DefaultQueryConfig()
	a.Where = "blorg_post.id > ?"
	a.WhereArgs = []interface{}{5}
	b := a.Clone()
	b.WhereArgs = []interface{}{6}

	assert.NotEqual(t, KeyFor(EntryList, a), KeyFor(EntryList, b))
}

func TestKeyForIgnoresAuthorFlagWithoutAuthorField(t *testing.T) {
	a := DefaultQueryConfig()
	b := a.Clone()
	b.LoadAuthor = true

	assert.Equal(t, KeyFor(EntryList, a), KeyFor(EntryList, b))
}

func TestKeyForSeparatesEntries(t *testing.T) {
	cfg := DefaultQueryConfig()
	assert.NotEqual(t, KeyFor(EntryList, cfg), KeyFor(EntryPost, cfg))
	assert.NotEqual(t, postKey(cfg, 1), postKey(cfg, 2))
}

func TestCountKeyUsesProjection(t *testing.T) {
	a := DefaultQueryConfig()
	a.Tenant = tenant(4)
	a.Where = "blorg_post.enabled = ?"
	a.WhereArgs = []interface{}{true}

	b := a.Clone()
	b.Fields = NewFieldSet(FieldID, FieldBodytext)
	b.OrderBy = ""
	b.Range = &Range{Limit: 3}
	b.LoadTags = true

	assert.Equal(t, countKey(a), countKey(b))

	c := a.Clone()
	c.Tenant = tenant(5)
	assert.NotEqual(t, countKey(a), countKey(c))
}

func TestNaturalKeyUsesWallClockMonth(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cfg := DefaultQueryConfig()

	firstUTC := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	midMarch := time.Date(2024, 3, 15, 12, 0, 0, 0, newYork)
	lastFeb := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, naturalKey(cfg, newYork, firstUTC, "a"), naturalKey(cfg, newYork, midMarch, "a"))
	assert.NotEqual(t, naturalKey(cfg, newYork, firstUTC, "a"), naturalKey(cfg, newYork, lastFeb, "a"))
	assert.NotEqual(t, naturalKey(cfg, berlin, firstUTC, "a"), naturalKey(cfg, time.UTC, firstUTC, "a"))
	assert.NotEqual(t, naturalKey(cfg, berlin, firstUTC, "a"), naturalKey(cfg, berlin, firstUTC, "b"))
}

func TestArchiveKeyUsesTenantAndZone(t *testing.T) {
	a := DefaultQueryConfig()
	b := a.Clone()
	b.Fields = b.Fields.With(FieldTitle)
	b.Where = "1 = 1"

	assert.Equal(t, archiveKey(a, time.UTC), archiveKey(b, time.UTC))

	b.Tenant = tenant(1)
	assert.NotEqual(t, archiveKey(a, time.UTC), archiveKey(b, time.UTC))
}

func TestMemberKey(t *testing.T) {
	assert.Equal(t, "posts:abc_12", memberKey("posts:abc", 12))
}
