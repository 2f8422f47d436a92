// Package xmlmodel maps Go structs to XML documents and back.
//
// Only types that opt in can be mapped, see [Register] and [Serializable].
// A record of type Book is mapped to a <book> element, a list of books to a <books> root element
// and each field to a child element named after the field with its first letter lowercased:
//
//	<books>
//	  <book>
//	    <title>1984</title>
//	    <author>Orwell</author>
//	    <year>1949</year>
//	  </book>
//	</books>
//
// Field element names can be changed with an `xml:"name"` struct tag and `xml:"-"` skips a field.
// Only flat scalar fields are supported: strings, integers, floats, booleans and dates ([time.Time]).
// Pointer fields are nullable, nil fields are omitted from the document.
package xmlmodel

type (
	// Option configures [Marshal] and [Unmarshal].
	Option func(*options)

	options struct {
		rootTag   string
		entityTag string
	}
)

// WithRootTag sets the root element name used by [Marshal].
// The default is the collection tag of the record type (see [CollectionTag]).
func WithRootTag(tag string) Option {
	return func(o *options) {
		o.rootTag = tag
	}
}

// WithEntityTag sets the element name that [Marshal] uses for each record and that [Unmarshal] searches for.
// The default is the entity tag of the record type (see [EntityTag]).
func WithEntityTag(tag string) Option {
	return func(o *options) {
		o.entityTag = tag
	}
}

func newOptions(desc *Descriptor, opts []Option) options {
	o := options{
		rootTag:   desc.CollectionTag,
		entityTag: desc.EntityTag,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
