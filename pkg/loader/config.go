package loader

import (
	"fmt"

	"github.com/ammar0144/postloader/pkg/models"
)

// Association is an optional related collection resolved in one batch
type Association uint8

const (
	AssociationAuthor Association = iota
	AssociationFiles
	AssociationTags
)

// String returns the association name
func (a Association) String() string {
	switch a {
	case AssociationAuthor:
		return "author"
	case AssociationFiles:
		return "files"
	case AssociationTags:
		return "tags"
	default:
		return fmt.Sprintf("Association(%d)", uint8(a))
	}
}

// ParseAssociation looks an association up by name
func ParseAssociation(name string) (Association, error) {
	switch name {
	case "author":
		return AssociationAuthor, nil
	case "files":
		return AssociationFiles, nil
	case "tags":
		return AssociationTags, nil
	default:
		return 0, fmt.Errorf("%w: unknown association %q", ErrConfiguration, name)
	}
}

// Range limits a list query. A zero Limit means no limit.
type Range struct {
	Limit  int
	Offset int
}

// DefaultOrderBy sorts newest posts first
const DefaultOrderBy = models.TablePost + ".publish_date DESC"

// DefaultFields is the field set of a fresh loader
var DefaultFields = NewFieldSet(FieldID, FieldShortname)

// QueryConfig is the complete parameter set of a loader. Two configs that
// are equal produce the same cache keys.
type QueryConfig struct {
	// Tenant scopes every query; nil selects rows without a tenant
	Tenant *int64

	Fields FieldSet

	// Where is a trusted SQL fragment AND-ed to the tenant scope.
	// User input goes in WhereArgs only.
	Where     string
	WhereArgs []interface{}

	// OrderBy is a trusted ORDER BY fragment; empty omits the clause
	OrderBy string

	// Range is nil when the list is unbounded
	Range *Range

	LoadAuthor bool
	LoadFiles  bool
	LoadTags   bool
}

// DefaultQueryConfig returns the configuration of a fresh loader
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Fields:  DefaultFields,
		OrderBy: DefaultOrderBy,
	}
}

// Clone returns a deep copy of c
func (c QueryConfig) Clone() QueryConfig {
	out := c
	if c.Tenant != nil {
		t := *c.Tenant
		out.Tenant = &t
	}
	if c.WhereArgs != nil {
		out.WhereArgs = append([]interface{}(nil), c.WhereArgs...)
	}
	if c.Range != nil {
		r := *c.Range
		out.Range = &r
	}
	return out
}

// validateSelect checks the config for queries that return posts
func (c QueryConfig) validateSelect() error {
	if c.Fields.Len() == 0 {
		return fmt.Errorf("%w: no fields selected", ErrConfiguration)
	}
	if !c.Fields.Has(FieldID) {
		return fmt.Errorf("%w: the id field is required", ErrConfiguration)
	}
	if c.Range != nil && (c.Range.Limit < 0 || c.Range.Offset < 0) {
		return fmt.Errorf("%w: negative range", ErrConfiguration)
	}
	return nil
}

// loadsAuthor reports whether authors are resolved. The author column must
// be selected for the batch query to have ids to work with.
func (c QueryConfig) loadsAuthor() bool {
	return c.LoadAuthor && c.Fields.Has(FieldAuthor)
}

// countProjection keeps only what affects a count
func (c QueryConfig) countProjection() QueryConfig {
	return QueryConfig{
		Tenant:    c.Tenant,
		Where:     c.Where,
		WhereArgs: c.WhereArgs,
	}
}
