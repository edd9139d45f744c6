package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostSetKeepsOrderAndIndex(t *testing.T) {
	s := NewPostSet([]Post{{ID: 3, Shortname: "c"}, {ID: 1, Shortname: "a"}, {ID: 3, Shortname: "dup"}})

	require.Equal(t, 2, s.Len())
	assert.Equal(t, []int64{3, 1}, s.IDs())
	assert.Equal(t, "c", s.First().Shortname)
	assert.Equal(t, "a", s.At(1).Shortname)
	assert.Equal(t, "a", s.Get(1).Shortname)
	assert.Nil(t, s.Get(2))

	s.Get(1).Title = "changed"
	assert.Equal(t, "changed", s.Posts()[1].Title)

	assert.True(t, s.Add(Post{ID: 2}))
	assert.False(t, s.Add(Post{ID: 2}))
	assert.Equal(t, []int64{3, 1, 2}, s.IDs())
}

func TestPostSetZeroValues(t *testing.T) {
	var nilSet *PostSet
	assert.Equal(t, 0, nilSet.Len())
	assert.Nil(t, nilSet.First())
	assert.Nil(t, nilSet.Get(1))
	assert.Nil(t, nilSet.Posts())
	assert.Nil(t, nilSet.IDs())

	var empty PostSet
	assert.True(t, empty.Add(Post{ID: 7}))
	assert.Equal(t, 7, int(empty.First().ID))
}
