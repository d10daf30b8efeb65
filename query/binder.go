package query

import (
	"sort"
)

// Binder holds the values bound to a statement's placeholders. Values are
// validated and classified on Put; a Binder never holds an invalid value.
type Binder struct {
	values map[string]Value
}

// NewBinder creates an empty binder
func NewBinder() *Binder {
	return &Binder{values: make(map[string]Value)}
}

// Put validates v and stores it under name, overwriting any previous value.
func (b *Binder) Put(name string, v interface{}) error {
	val, err := classify(name, v)
	if err != nil {
		return err
	}
	b.values[name] = val
	return nil
}

// Get returns the value bound to name. ok is false when nothing is bound;
// a value bound to null is present with KindNull.
func (b *Binder) Get(name string) (Value, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Has reports whether name is bound
func (b *Binder) Has(name string) bool {
	_, ok := b.values[name]
	return ok
}

// Names returns the bound names in sorted order
func (b *Binder) Names() []string {
	names := make([]string, 0, len(b.values))
	for name := range b.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bound values
func (b *Binder) Len() int {
	return len(b.values)
}

// Vars returns the bound values as JSON-native values keyed by name.
func (b *Binder) Vars() map[string]interface{} {
	vars := make(map[string]interface{}, len(b.values))
	for name, v := range b.values {
		vars[name] = v.Interface()
	}
	return vars
}

func (b *Binder) set(name string, v Value) {
	b.values[name] = v
}
