package xmlmodel

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

var errBoolLiteral = errors.New(`want "true" or "false"`)

// Unmarshal parses payload and returns one record of type T for each element named after
// the entity tag of T (or the tag given with [WithEntityTag]), in document order.
// Entity elements are searched at any depth, not only as children of the root element.
//
// For each field the first descendant element named after the field tag is used, later
// duplicates are ignored. Fields without an element keep their zero value.
//
// Malformed XML results in an error matching [ErrParseFailure] (see [ParseError]) and
// a field text that can't be converted to the field kind in an error matching
// [ErrMalformedValue] (see [ValueError]). In both cases no records are returned.
func Unmarshal[T any](payload []byte, opts ...Option) ([]T, error) {
	desc, err := describeRecord[T]()
	if err != nil {
		return nil, err
	}
	o := newOptions(desc, opts)
	if !xmlName.MatchString(o.entityTag) {
		return nil, fmt.Errorf("%w: entity tag %q", ErrInvalidTag, o.entityTag)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return nil, tag(&ParseError{Err: err, Data: string(payload)}, ErrParseFailure)
	}

	ptr := reflect.TypeFor[T]().Kind() == reflect.Pointer
	var records []T
	for _, el := range findAll(&doc.Element, o.entityTag, nil) {
		rv := reflect.New(desc.Type)
		if err := populate(rv.Elem(), desc, el); err != nil {
			return nil, err
		}
		if ptr {
			records = append(records, rv.Interface().(T))
		} else {
			records = append(records, rv.Elem().Interface().(T))
		}
	}
	return records, nil
}

// UnmarshalString is [Unmarshal] for string payloads.
func UnmarshalString[T any](payload string, opts ...Option) ([]T, error) {
	return Unmarshal[T]([]byte(payload), opts...)
}

func populate(rv reflect.Value, desc *Descriptor, el *etree.Element) error {
	for _, f := range desc.Fields {
		fe := findFirst(el, f.Tag)
		if fe == nil {
			continue
		}
		if err := setValue(rv.Field(f.Index), f, textContent(fe)); err != nil {
			return err
		}
	}
	return nil
}

func setValue(fv reflect.Value, f Field, text string) error {
	target := fv
	if f.Nullable {
		target = reflect.New(f.typ).Elem()
	}
	if err := parseValue(target, f.Kind, text); err != nil {
		return tag(&ValueError{Field: f.Name, Kind: f.Kind, Text: text, Err: err}, ErrMalformedValue)
	}
	if f.Nullable {
		fv.Set(target.Addr())
	}
	return nil
}

func parseValue(v reflect.Value, kind Kind, text string) error {
	switch kind {
	case KindString:
		v.SetString(text)
	case KindInt, KindLong:
		if v.CanInt() {
			n, err := strconv.ParseInt(text, 10, v.Type().Bits())
			if err != nil {
				return err
			}
			v.SetInt(n)
			return nil
		}
		n, err := strconv.ParseUint(text, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case KindFloat:
		n, err := strconv.ParseFloat(text, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(n)
	case KindBool:
		switch text {
		case "true":
			v.SetBool(true)
		case "false":
			v.SetBool(false)
		default:
			return errBoolLiteral
		}
	case KindDate:
		t, err := time.Parse(DateLayout, text)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(t))
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedFieldType, kind)
	}
	return nil
}

// findAll appends to found every descendant of e with the given name, in document order.
func findAll(e *etree.Element, name string, found []*etree.Element) []*etree.Element {
	for _, c := range e.ChildElements() {
		if c.Tag == name {
			found = append(found, c)
		}
		found = findAll(c, name, found)
	}
	return found
}

// findFirst returns the first descendant of e with the given name, in document order.
func findFirst(e *etree.Element, name string) *etree.Element {
	for _, c := range e.ChildElements() {
		if c.Tag == name {
			return c
		}
		if found := findFirst(c, name); found != nil {
			return found
		}
	}
	return nil
}

func textContent(e *etree.Element) string {
	var sb strings.Builder
	writeText(&sb, e)
	return sb.String()
}

func writeText(sb *strings.Builder, e *etree.Element) {
	for _, t := range e.Child {
		switch t := t.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			writeText(sb, t)
		}
	}
}
