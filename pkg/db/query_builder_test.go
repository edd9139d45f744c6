package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderSelectDefaults(t *testing.T) {
	sql, args := NewBuilder("blorg_post").BuildSelect()
	assert.Equal(t, "SELECT * FROM blorg_post", sql)
	assert.Empty(t, args)
}

func TestBuilderWhereAndPaging(t *testing.T) {
	sql, args := NewBuilder("blorg_post").
		Select("blorg_post.id", "blorg_post.shortname").
		Where("blorg_post.enabled", Equal, true).
		OrderByRaw("blorg_post.publish_date DESC").
		Limit(10).
		Offset(20).
		BuildSelect()

	assert.Equal(t, "SELECT blorg_post.id, blorg_post.shortname FROM blorg_post "+
		"WHERE blorg_post.enabled = ? ORDER BY blorg_post.publish_date DESC LIMIT 10 OFFSET 20", sql)
	assert.Equal(t, []interface{}{true}, args)
}

func TestBuilderOffsetWithoutLimitIsDropped(t *testing.T) {
	sql, _ := NewBuilder("t").Offset(5).BuildSelect()
	assert.Equal(t, "SELECT * FROM t", sql)
}

func TestBuilderWhereNullable(t *testing.T) {
	sql, args := NewBuilder("t").WhereNullable("t.instance", nil).BuildSelect()
	assert.Equal(t, "SELECT * FROM t WHERE t.instance IS NULL", sql)
	assert.Empty(t, args)

	tenant := int64(7)
	sql, args = NewBuilder("t").WhereNullable("t.instance", &tenant).BuildSelect()
	assert.Equal(t, "SELECT * FROM t WHERE t.instance = ?", sql)
	assert.Equal(t, []interface{}{int64(7)}, args)
}

func TestBuilderWhereRaw(t *testing.T) {
	sql, args := NewBuilder("t").
		Where("a", Equal, 1).
		WhereRaw("b = ? OR c = ?", 2, 3).
		WhereRaw("   ").
		BuildSelect()

	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND (b = ? OR c = ?)", sql)
	assert.Equal(t, []interface{}{1, 2, 3}, args)
}

func TestBuilderSelectExprArgsComeFirst(t *testing.T) {
	sql, args := NewBuilder("t").
		SelectExpr("datetime(t.d, ?) AS local_d", "+60 minutes").
		Where("t.id", Equal, 4).
		BuildSelect()

	assert.Equal(t, "SELECT datetime(t.d, ?) AS local_d FROM t WHERE t.id = ?", sql)
	assert.Equal(t, []interface{}{"+60 minutes", 4}, args)
}

func TestBuilderInExpansion(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		wantSQL  string
		wantArgs []interface{}
	}{
		{"slice", []int64{1, 2, 3}, "SELECT * FROM t WHERE id IN (?, ?, ?)", []interface{}{int64(1), int64(2), int64(3)}},
		{"empty slice", []int64{}, "SELECT * FROM t WHERE 1 = 0", nil},
		{"nil", nil, "SELECT * FROM t WHERE 1 = 0", nil},
		{"scalar", int64(5), "SELECT * FROM t WHERE id IN (?)", []interface{}{int64(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := NewBuilder("t").Where("id", In, tt.value).BuildSelect()
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuilderJoinsAndGroups(t *testing.T) {
	sql, args := NewBuilder("blorg_tag").
		Select("blorg_tag.*", "blorg_post_tag_binding.post").
		InnerJoin("blorg_post_tag_binding", "blorg_post_tag_binding.tag = blorg_tag.id").
		Where("blorg_post_tag_binding.post", In, []int64{1, 2}).
		GroupBy("blorg_tag.id").
		BuildSelect()

	assert.Equal(t, "SELECT blorg_tag.*, blorg_post_tag_binding.post FROM blorg_tag "+
		"INNER JOIN blorg_post_tag_binding ON blorg_post_tag_binding.tag = blorg_tag.id "+
		"WHERE blorg_post_tag_binding.post IN (?, ?) GROUP BY blorg_tag.id", sql)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, args)
}

func TestBuilderNegativeLimitOffset(t *testing.T) {
	sql, _ := NewBuilder("t").Limit(-1).Offset(-4).BuildSelect()
	assert.Equal(t, "SELECT * FROM t", sql)
}

func TestBuilderOrderByRaw(t *testing.T) {
	sql, _ := NewBuilder("t").OrderByRaw("publish_date desc, id").OrderByRaw("").BuildSelect()
	assert.Equal(t, "SELECT * FROM t ORDER BY publish_date desc, id", sql)
}
