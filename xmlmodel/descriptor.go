package xmlmodel

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

type (
	// Kind is the XML conversion kind of a field.
	Kind int

	// Field describes a single mapped field of a struct.
	Field struct {
		// Name is the Go field name.
		Name string
		// Tag is the name of the XML element holding the field value.
		Tag  string
		Kind Kind
		// Index is the index of the field in the struct, usable with [reflect.Value.Field].
		Index int
		// Nullable is true for pointer fields. A nil field is omitted from the XML document.
		Nullable bool

		typ reflect.Type
	}

	// Descriptor holds the XML mapping metadata of a struct type.
	// Descriptors are built once per type and shared, they must not be modified.
	Descriptor struct {
		Type reflect.Type
		// EntityTag is the element name of one record: the type name lowercased.
		EntityTag string
		// CollectionTag is the default root element name: EntityTag + "s".
		CollectionTag string
		// Fields are in declaration order.
		Fields []Field
	}
)

// Supported field kinds.
const (
	KindString Kind = iota
	KindInt
	KindLong
	KindFloat
	KindBool
	KindDate
)

// DateLayout is the wire format of [KindDate] fields.
const DateLayout = "2006-01-02"

var (
	descriptors sync.Map
	timeType    = reflect.TypeFor[time.Time]()
	xmlName     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)
)

type describeResult struct {
	desc *Descriptor
	err  error
}

// Describe returns the [Descriptor] of t, which must be a serializable struct or a pointer to one.
// Descriptors (and failures to build them) are cached, it is cheap to call Describe repeatedly.
func Describe(t reflect.Type) (*Descriptor, error) {
	if !IsSerializable(t) {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, t)
	}
	t = baseType(t)
	if v, ok := descriptors.Load(t); ok {
		r := v.(describeResult)
		return r.desc, r.err
	}
	desc, err := describe(t)
	v, _ := descriptors.LoadOrStore(t, describeResult{desc, err})
	r := v.(describeResult)
	return r.desc, r.err
}

// DescriptorOf is the generic version of [Describe].
func DescriptorOf[T any]() (*Descriptor, error) {
	return Describe(reflect.TypeFor[T]())
}

// EntityTag returns the element name of a record of type t: its type name lowercased.
func EntityTag(t reflect.Type) string {
	return strings.ToLower(baseType(t).Name())
}

// EntityTagOf is the generic version of [EntityTag].
func EntityTagOf[T any]() string {
	return EntityTag(reflect.TypeFor[T]())
}

// CollectionTag returns the default root element name for records of type t.
func CollectionTag(t reflect.Type) string {
	return EntityTag(t) + "s"
}

func describe(t reflect.Type) (*Descriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct", ErrNotSerializable, t)
	}
	entity := EntityTag(t)
	if !xmlName.MatchString(entity) {
		return nil, fmt.Errorf("%w: entity tag %q of %v", ErrInvalidTag, entity, t)
	}
	desc := &Descriptor{
		Type:          t,
		EntityTag:     entity,
		CollectionTag: entity + "s",
	}

	var errs []error
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name, ok := fieldTag(sf)
		if !ok {
			continue
		}
		if !xmlName.MatchString(name) {
			errs = append(errs, fmt.Errorf("%w: field %s tag %q", ErrInvalidTag, sf.Name, name))
			continue
		}
		ft := sf.Type
		nullable := ft.Kind() == reflect.Pointer
		if nullable {
			ft = ft.Elem()
		}
		kind, ok := kindOf(ft)
		if !ok {
			errs = append(errs, tag(&FieldTypeError{Type: t, Field: sf.Name, GoType: sf.Type}, ErrUnsupportedFieldType))
			continue
		}
		desc.Fields = append(desc.Fields, Field{
			Name:     sf.Name,
			Tag:      name,
			Kind:     kind,
			Index:    i,
			Nullable: nullable,
			typ:      ft,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return desc, nil
}

func fieldTag(sf reflect.StructField) (string, bool) {
	name, _, _ := strings.Cut(sf.Tag.Get("xml"), ",")
	if name == "-" {
		return "", false
	}
	if name != "" {
		return name, true
	}
	r, size := utf8.DecodeRuneInString(sf.Name)
	return string(unicode.ToLower(r)) + sf.Name[size:], true
}

func kindOf(t reflect.Type) (Kind, bool) {
	if t == timeType {
		return KindDate, true
	}
	switch t.Kind() {
	case reflect.String:
		return KindString, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return KindInt, true
	case reflect.Int64, reflect.Uint64:
		return KindLong, true
	case reflect.Float32, reflect.Float64:
		return KindFloat, true
	case reflect.Bool:
		return KindBool, true
	default:
		return 0, false
	}
}

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
