package xmlmodel

import (
	"reflect"
	"sync"
)

// Serializable is implemented by types that opt in to XML mapping.
// It is an alternative to calling [Register], the method is never called:
//
//	type Book struct {
//		Title  string
//		Author string
//		Year   int
//	}
//
//	func (Book) XMLSerializable() {}
type Serializable interface {
	XMLSerializable()
}

var (
	registry         sync.Map
	serializableType = reflect.TypeFor[Serializable]()
)

// Register opts the type T in to XML mapping. Registering T or *T is equivalent.
// It is safe to call Register multiple times and concurrently.
func Register[T any]() {
	registry.Store(baseType(reflect.TypeFor[T]()), struct{}{})
}

// IsSerializable returns true if t (or the type it points to) was registered with [Register]
// or implements [Serializable].
func IsSerializable(t reflect.Type) bool {
	if t == nil {
		return false
	}
	t = baseType(t)
	if _, ok := registry.Load(t); ok {
		return true
	}
	return t.Implements(serializableType) || reflect.PointerTo(t).Implements(serializableType)
}

// IsSerializableType is the generic version of [IsSerializable].
func IsSerializableType[T any]() bool {
	return IsSerializable(reflect.TypeFor[T]())
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
