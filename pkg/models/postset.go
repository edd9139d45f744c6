package models

// PostSet is an ordered collection of posts stored contiguously with an
// id -> position index. Pointers returned by Get and At stay valid until the
// next Add.
type PostSet struct {
	items []Post
	index map[int64]int
}

// NewPostSet builds a set from rows in their query order. Later duplicates
// of an id are dropped.
func NewPostSet(rows []Post) *PostSet {
	s := &PostSet{
		items: make([]Post, 0, len(rows)),
		index: make(map[int64]int, len(rows)),
	}
	for i := range rows {
		s.Add(rows[i])
	}
	return s
}

// Add appends a post unless its id is already present
func (s *PostSet) Add(p Post) bool {
	if s.index == nil {
		s.index = make(map[int64]int)
	}
	if _, ok := s.index[p.ID]; ok {
		return false
	}
	s.index[p.ID] = len(s.items)
	s.items = append(s.items, p)
	return true
}

// Len returns the number of posts
func (s *PostSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// At returns the i-th post in order
func (s *PostSet) At(i int) *Post {
	return &s.items[i]
}

// Get returns the post with the given id, or nil
func (s *PostSet) Get(id int64) *Post {
	if s == nil {
		return nil
	}
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	return &s.items[i]
}

// First returns the first post, or nil for an empty set
func (s *PostSet) First() *Post {
	if s.Len() == 0 {
		return nil
	}
	return &s.items[0]
}

// IDs returns post ids in order
func (s *PostSet) IDs() []int64 {
	if s == nil {
		return nil
	}
	ids := make([]int64, len(s.items))
	for i := range s.items {
		ids[i] = s.items[i].ID
	}
	return ids
}

// Posts returns the backing slice in order. Callers must not append to it.
func (s *PostSet) Posts() []Post {
	if s == nil {
		return nil
	}
	return s.items
}
