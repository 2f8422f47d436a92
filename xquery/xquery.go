// Package xquery builds the XQuery text used to query records stored as XML.
//
// The builder is plain string assembly, no escaping is done: filter values are interpolated
// as given, so callers must not pass untrusted input as filter values.
package xquery

import (
	"regexp"
	"strings"

	"github.com/birdie-ai/xmlstore/xmlmodel"
)

type (
	// Query is the description of a FLWOR query over a collection.
	// The only product of a Query is its text, see [Query.String].
	Query struct {
		// Collection is the collection path, like "/db/bookshop/novels".
		Collection string
		// Entity is the element name of the records, like "book".
		// When empty every resource of the collection is returned.
		Entity string
		// Filters are AND-joined in order.
		Filters []Filter
		// GroupBy and OrderBy are optional field names.
		GroupBy string
		OrderBy string
		// Fields projects the result into a <result> element holding only these fields.
		// Results of projected queries must be mapped with the "result" entity tag.
		Fields []string
	}

	// Filter is a single predicate of the where clause.
	Filter struct {
		Field string
		Op    Operator
		Value string
		// Quote wraps the value in single quotes.
		Quote bool
	}

	// Operator is a comparison operator: "=", "<", ">" or "!=".
	Operator string
)

// Supported operators.
const (
	Eq  Operator = "="
	Neq Operator = "!="
	Lt  Operator = "<"
	Gt  Operator = ">"
)

// ResultTag is the element name wrapping each projected result.
const ResultTag = "result"

const item = "$item"

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Build returns the text of a query over the collection at path.
// Filters are parsed with [ParseFilter], malformed filters are skipped.
// Empty entity, groupBy and orderBy are omitted from the query.
func Build(path, entity string, filters []string, groupBy, orderBy string) string {
	return Query{
		Collection: path,
		Entity:     entity,
		Filters:    ParseFilters(filters),
		GroupBy:    groupBy,
		OrderBy:    orderBy,
	}.String()
}

// For creates a [Query] for records of type T stored in the collection at path.
func For[T any](path string, filters ...Filter) Query {
	return Query{
		Collection: path,
		Entity:     xmlmodel.EntityTagOf[T](),
		Filters:    filters,
	}
}

// Where creates a filter comparing field with value as is (numbers, XQuery expressions).
func Where(field string, op Operator, value string) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Equals creates a filter comparing field with the string literal value.
func Equals(field, value string) Filter {
	return Filter{Field: field, Op: Eq, Value: value, Quote: true}
}

// ParseFilter parses a filter in one of the forms:
//
//   - "field operator value": exactly three whitespace separated tokens, the operator being one of
//     "=", "<", ">" or "!=". The value is used as is.
//   - "field=value": equality shorthand, the value is compared as a string literal.
//
// The first form has precedence, so any operator other than "=" must use it.
// It returns false if s matches none of the forms.
func ParseFilter(s string) (Filter, bool) {
	if tokens := strings.Fields(s); len(tokens) == 3 {
		if op := Operator(tokens[1]); op.Valid() {
			return Where(tokens[0], op, tokens[2]), true
		}
	}
	if strings.Count(s, "=") != 1 {
		return Filter{}, false
	}
	field, value, _ := strings.Cut(s, "=")
	field = strings.TrimSpace(field)
	if !fieldName.MatchString(field) || value == "" {
		return Filter{}, false
	}
	return Equals(field, value), true
}

// ParseFilters parses each filter with [ParseFilter], skipping malformed ones.
func ParseFilters(filters []string) []Filter {
	var parsed []Filter
	for _, s := range filters {
		if f, ok := ParseFilter(s); ok {
			parsed = append(parsed, f)
		}
	}
	return parsed
}

// Valid returns true if o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case Eq, Neq, Lt, Gt:
		return true
	}
	return false
}

// String returns the filter as an XQuery comparison, like "$item/year < 1950".
func (f Filter) String() string {
	value := f.Value
	if f.Quote {
		value = "'" + value + "'"
	}
	return item + "/" + f.Field + " " + string(f.Op) + " " + value
}

// String returns the query text:
//
//	for $item in collection('path')//entity where f1 and f2 group by $item/g order by $item/o return $item
func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString("for " + item + " in collection('" + q.Collection + "')")
	if q.Entity != "" {
		sb.WriteString("//" + q.Entity)
	}
	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" where ")
		} else {
			sb.WriteString(" and ")
		}
		sb.WriteString(f.String())
	}
	if q.GroupBy != "" {
		sb.WriteString(" group by " + item + "/" + q.GroupBy)
	}
	if q.OrderBy != "" {
		sb.WriteString(" order by " + item + "/" + q.OrderBy)
	}
	sb.WriteString(" return ")
	if len(q.Fields) == 0 {
		sb.WriteString(item)
		return sb.String()
	}
	sb.WriteString("<" + ResultTag + ">")
	for _, f := range q.Fields {
		sb.WriteString("<" + f + ">{" + item + "/" + f + "}</" + f + ">")
	}
	sb.WriteString("</" + ResultTag + ">")
	return sb.String()
}

// Projected returns true if the query results are <result> projections instead of whole records.
func (q Query) Projected() bool {
	return len(q.Fields) > 0
}
