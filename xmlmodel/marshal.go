package xmlmodel

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
)

// indent is the number of spaces used to indent documents written by [Encode] and [MarshalString].
const indent = 2

// Marshal creates an XML document with one element per record.
// The root element is named after the collection tag of T unless [WithRootTag] is given.
// Either all records are converted or an error is returned.
//
// T must be a serializable struct or a pointer to one, or else an error
// matching [ErrNotSerializable] is returned. An empty records list is an error ([ErrNoRecords]).
// Strings that can't be represented in XML fail with a [TextError] matching [ErrInvalidText].
// Carriage returns are written as character references, so they are read back unchanged.
func Marshal[T any](records []T, opts ...Option) (*etree.Document, error) {
	desc, err := describeRecord[T]()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoRecords, desc.Type)
	}
	o := newOptions(desc, opts)
	if err := validTags(o); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalText = true
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(o.rootTag)

	for i := range records {
		rv := reflect.ValueOf(&records[i]).Elem()
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil, fmt.Errorf("%w: record %d", ErrNilRecord, i)
			}
			rv = rv.Elem()
		}
		if err := appendRecord(root.CreateElement(o.entityTag), desc, rv); err != nil {
			var textErr *TextError
			if errors.As(err, &textErr) {
				textErr.Record = i
			}
			return nil, err
		}
	}
	return doc, nil
}

// MarshalString calls [Marshal] and returns the document as indented text.
func MarshalString[T any](records []T, opts ...Option) (string, error) {
	doc, err := Marshal(records, opts...)
	if err != nil {
		return "", err
	}
	doc.Indent(indent)
	return doc.WriteToString()
}

// Encode calls [Marshal] and writes the document as indented UTF-8 text to w.
func Encode[T any](w io.Writer, records []T, opts ...Option) error {
	doc, err := Marshal(records, opts...)
	if err != nil {
		return err
	}
	doc.Indent(indent)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("writing XML document: %w", err)
	}
	return nil
}

func appendRecord(el *etree.Element, desc *Descriptor, rv reflect.Value) error {
	for _, f := range desc.Fields {
		fv := rv.Field(f.Index)
		if f.Nullable {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		text := formatValue(f.Kind, fv)
		if offset := invalidChar(text); offset >= 0 {
			return tag(&TextError{Field: f.Name, Offset: offset}, ErrInvalidText)
		}
		el.CreateElement(f.Tag).SetText(text)
	}
	return nil
}

// invalidChar returns the byte offset of the first character of s outside the XML 1.0 Char
// production (or of the first invalid UTF-8 sequence), or -1 if all characters are valid.
func invalidChar(s string) int {
	for i, r := range s {
		switch {
		case r == utf8.RuneError:
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return i
			}
		case r == '\t' || r == '\n' || r == '\r':
		case r < 0x20, r > 0xD7FF && r < 0xE000, r == 0xFFFE || r == 0xFFFF:
			return i
		}
	}
	return -1
}

func formatValue(kind Kind, v reflect.Value) string {
	switch kind {
	case KindInt, KindLong:
		if v.CanInt() {
			return strconv.FormatInt(v.Int(), 10)
		}
		return strconv.FormatUint(v.Uint(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits())
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindDate:
		return v.Interface().(time.Time).Format(DateLayout)
	default:
		return v.String()
	}
}

// describeRecord returns the descriptor of T, which must be a struct or a pointer to a struct.
func describeRecord[T any]() (*Descriptor, error) {
	t := reflect.TypeFor[T]()
	desc, err := Describe(t)
	if err != nil {
		return nil, err
	}
	if t != desc.Type && (t.Kind() != reflect.Pointer || t.Elem() != desc.Type) {
		return nil, fmt.Errorf("%w: records must be %v or *%v, got %v", ErrNotSerializable, desc.Type, desc.Type, t)
	}
	return desc, nil
}

func validTags(o options) error {
	if !xmlName.MatchString(o.rootTag) {
		return fmt.Errorf("%w: root tag %q", ErrInvalidTag, o.rootTag)
	}
	if !xmlName.MatchString(o.entityTag) {
		return fmt.Errorf("%w: entity tag %q", ErrInvalidTag, o.entityTag)
	}
	return nil
}
