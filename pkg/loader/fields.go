package loader

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/ammar0144/postloader/pkg/models"
)

// Field is a selectable post column
type Field uint8

const (
	FieldID Field = iota
	FieldShortname
	FieldTitle
	FieldBodytext
	FieldExtendedBodytext
	FieldPublishDate
	FieldCreateDate
	FieldModifiedDate
	FieldEnabled
	FieldCommentStatus
	FieldAuthor
	FieldVisibleCommentCount

	fieldCount
)

type fieldSpec struct {
	name   string
	column string
	// join is emitted once when any selected field needs it
	join *joinSpec
}

type joinSpec struct {
	table     string
	condition string
}

var visibleCommentCountJoin = &joinSpec{
	table:     models.ViewPostVisibleCommentCount,
	condition: fmt.Sprintf(
		"%[1]s.id = %[2]s.post AND (%[1]s.instance = %[2]s.instance OR (%[1]s.instance IS NULL AND %[2]s.instance IS NULL))",
		models.TablePost, models.ViewPostVisibleCommentCount),
}

var fieldSpecs = [fieldCount]fieldSpec{
	FieldID:               {name: "id", column: models.TablePost + ".id"},
	FieldShortname:        {name: "shortname", column: models.TablePost + ".shortname"},
	FieldTitle:            {name: "title", column: models.TablePost + ".title"},
	FieldBodytext:         {name: "bodytext", column: models.TablePost + ".bodytext"},
	FieldExtendedBodytext: {name: "extended_bodytext", column: models.TablePost + ".extended_bodytext"},
	FieldPublishDate:      {name: "publish_date", column: models.TablePost + ".publish_date"},
	FieldCreateDate:       {name: "create_date", column: models.TablePost + ".create_date"},
	FieldModifiedDate:     {name: "modified_date", column: models.TablePost + ".modified_date"},
	FieldEnabled:          {name: "enabled", column: models.TablePost + ".enabled"},
	FieldCommentStatus:    {name: "comment_status", column: models.TablePost + ".comment_status"},
	FieldAuthor:           {name: "author", column: models.TablePost + ".author"},
	FieldVisibleCommentCount: {
		name:   "visible_comment_count",
		column: models.ViewPostVisibleCommentCount + ".visible_comment_count",
		join:   visibleCommentCountJoin,
	},
}

// Valid reports whether f is a known field
func (f Field) Valid() bool {
	return f < fieldCount
}

// String returns the field's name
func (f Field) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Field(%d)", uint8(f))
	}
	return fieldSpecs[f].name
}

// ParseField looks a field up by name
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f := Field(0); f < fieldCount; f++ {
		if fieldSpecs[f].name == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown field %q", ErrConfiguration, name)
}

// FieldSet is a set of fields
type FieldSet uint32

// NewFieldSet builds a set from fields. Unknown fields are ignored.
func NewFieldSet(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s = s.With(f)
	}
	return s
}

// With returns s plus f
func (s FieldSet) With(f Field) FieldSet {
	if !f.Valid() {
		return s
	}
	return s | 1<<f
}

// Without returns s minus f
func (s FieldSet) Without(f Field) FieldSet {
	if !f.Valid() {
		return s
	}
	return s &^ (1 << f)
}

// Has reports whether f is in s
func (s FieldSet) Has(f Field) bool {
	return f.Valid() && s&(1<<f) != 0
}

// Len returns the number of fields in s
func (s FieldSet) Len() int {
	return bits.OnesCount32(uint32(s))
}

// Fields returns the members of s in declaration order
func (s FieldSet) Fields() []Field {
	fields := make([]Field, 0, s.Len())
	for f := Field(0); f < fieldCount; f++ {
		if s.Has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// Names returns the member names sorted lexicographically
func (s FieldSet) Names() []string {
	names := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		names = append(names, f.String())
	}
	sort.Strings(names)
	return names
}

func (s FieldSet) columns() []string {
	cols := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		cols = append(cols, fieldSpecs[f].column)
	}
	return cols
}

// storedColumns returns the bare post columns of s a loaded post may write
// back. The id and columns of joined views are excluded. The result is
// never nil.
func (s FieldSet) storedColumns() []string {
	prefix := models.TablePost + "."
	cols := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		col := fieldSpecs[f].column
		if f == FieldID || !strings.HasPrefix(col, prefix) {
			continue
		}
		cols = append(cols, strings.TrimPrefix(col, prefix))
	}
	return cols
}

func (s FieldSet) joins() []*joinSpec {
	var joins []*joinSpec
	seen := make(map[*joinSpec]bool)
	for _, f := range s.Fields() {
		if j := fieldSpecs[f].join; j != nil && !seen[j] {
			seen[j] = true
			joins = append(joins, j)
		}
	}
	return joins
}
