package xmlmodel

import (
	"errors"
	"fmt"
	"reflect"
)

// Error kinds. Detailed errors returned by this package are tagged with one of these, so
// callers can check the kind with [errors.Is] and get the details with [errors.As].
var (
	ErrNotSerializable      = errors.New("type is not serializable to XML")
	ErrParseFailure         = errors.New("malformed XML payload")
	ErrMalformedValue       = errors.New("malformed field value")
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	ErrInvalidTag           = errors.New("invalid XML tag")
	ErrNoRecords            = errors.New("no records to serialize")
	ErrNilRecord            = errors.New("nil record")
	ErrInvalidText          = errors.New("text can't be represented in XML")
)

type (
	// ParseError is returned by [Unmarshal] when the payload is not well formed XML.
	ParseError struct {
		// Err is the error reported by the XML parser.
		Err error
		// Data is the payload that failed to parse, useful for debugging.
		Data string
	}

	// ValueError is returned by [Unmarshal] when the text of a field element does not match
	// the textual grammar of the field kind.
	ValueError struct {
		Field string
		Kind  Kind
		Text  string
		Err   error
	}

	// TextError is returned by [Marshal] when a string field holds invalid UTF-8 or a character
	// that XML 1.0 doesn't allow, like most control characters.
	TextError struct {
		Record int
		Field  string
		// Offset is the byte offset of the invalid character in the field value.
		Offset int
	}

	// FieldTypeError is returned when a field has a Go type that has no XML conversion rule.
	// It is a programming error, the type must be changed.
	FieldTypeError struct {
		Type   reflect.Type
		Field  string
		GoType reflect.Type
	}
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing XML: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("field %q: can't convert %q to %s: %v", e.Field, e.Text, e.Kind, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

func (e *TextError) Error() string {
	return fmt.Sprintf("record %d field %q: invalid XML character at byte %d", e.Record, e.Field, e.Offset)
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("%s.%s: field type %s has no XML conversion", e.Type, e.Field, e.GoType)
}

// tag tags err with the given kind. The message of err is kept as is but
// errors.Is(err, kind) is true, and errors.As dispatches to the kind first.
func tag(err, kind error) error {
	return tagged{err, kind}
}

type tagged struct {
	err  error
	kind error
}

func (t tagged) Is(target error) bool {
	if errors.Is(t.kind, target) {
		return true
	}
	return errors.Is(t.err, target)
}

func (t tagged) As(target any) bool {
	if errors.As(t.kind, target) {
		return true
	}
	return errors.As(t.err, target)
}

func (t tagged) Error() string {
	return t.err.Error()
}
