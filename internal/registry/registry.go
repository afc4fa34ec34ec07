// Package registry keeps registered modules in order of registration.
package registry

import (
	"errors"
	"reflect"

	"github.com/rs/xid"
)

var (
	// ErrAlreadyRegistered is returned when item is already in registry.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrOutOfRange is returned when index is out of registry range.
	ErrOutOfRange = errors.New("out of range")
)

// Handle is an opaque stable identifier of registered item.
type Handle string

// NewHandle returns new unique handle.
func NewHandle() Handle {
	return Handle(xid.New().String())
}

// Entry is a registered item with its handle.
type Entry[T any] struct {
	Handle Handle
	Item   T
}

// Registry is an ordered set of items. It's not safe for concurrent use.
type Registry[T any] struct {
	entries []Entry[T]
}

// Add registers item and returns its new handle.
func (r *Registry[T]) Add(item T) (Handle, error) {
	for _, e := range r.entries {
		if same(e.Item, item) {
			return "", ErrAlreadyRegistered
		}
	}
	h := NewHandle()
	r.entries = append(r.entries, Entry[T]{Handle: h, Item: item})
	return h, nil
}

// At returns entry by index.
func (r *Registry[T]) At(i int) (Entry[T], error) {
	if i < 0 || i >= len(r.entries) {
		return Entry[T]{}, ErrOutOfRange
	}
	return r.entries[i], nil
}

// Lookup returns item by handle.
func (r *Registry[T]) Lookup(h Handle) (T, bool) {
	for _, e := range r.entries {
		if e.Handle == h {
			return e.Item, true
		}
	}
	var zero T
	return zero, false
}

// Len returns number of registered items.
func (r *Registry[T]) Len() int {
	return len(r.entries)
}

// Entries returns registered entries in order of registration.
func (r *Registry[T]) Entries() []Entry[T] {
	return append([]Entry[T](nil), r.entries...)
}

// Items returns registered items in order of registration.
func (r *Registry[T]) Items() []T {
	items := make([]T, 0, len(r.entries))
	for _, e := range r.entries {
		items = append(items, e.Item)
	}
	return items
}

// Reset removes all items.
func (r *Registry[T]) Reset() {
	r.entries = nil
}

// same compares items by identity. Only pointers, maps, channels and
// unsafe pointers have identity, items of other kinds are never the same,
// even if they are equal.
func same[T any](a, b T) bool {
	va, vb := reflect.ValueOf(any(a)), reflect.ValueOf(any(b))
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	return false
}
