package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Reducer merges a step's incoming value for a field with the field's
// previous value. The engine applies reducers during the post-step merge;
// steps themselves never mutate state directly.
type Reducer[T any] func(previous, incoming T) T

// Schema declares the complete set of state fields a graph operates on.
// Every field carries a default and a reducer, so any state built from the
// schema is fully populated before the first step runs and merges are
// deterministic per field.
//
// Declare fields once at wiring time with Define and share the handles with
// the steps that read and write them:
//
//	schema := graph.NewSchema()
//	places := graph.Define(schema, "places", []Place(nil), graph.Append[Place]())
//	radius := graph.Define[float64](schema, "radius_m", 800, nil)
type Schema struct {
	fields map[string]*fieldSpec
	order  []string
	errs   []error
}

// fieldSpec is the untyped registration record behind a Field handle. The
// closures capture the concrete type, keeping the schema itself free of
// type parameters.
type fieldSpec struct {
	name         string
	defaultValue any
	reduce       func(previous, incoming any) any
	restore      func(raw any) (any, error)
}

// NewSchema creates an empty state schema.
func NewSchema() *Schema {
	return &Schema{fields: make(map[string]*fieldSpec)}
}

// Field is a typed handle to one declared state field. Handles are the only
// way to read or write the field, which makes undeclared state writes
// impossible to express.
type Field[T any] struct {
	schema *Schema
	name   string
}

// Name returns the declared field name.
func (f Field[T]) Name() string { return f.name }

// Define registers a field on the schema and returns its typed handle.
// A nil reducer means the incoming value wins, except that a nil incoming
// value of a reference kind (pointer, slice, map) keeps the previous value,
// mirroring the usual "unset does not erase" merge expectation.
//
// Duplicate names and empty names are definition errors, accumulated on the
// schema and reported when a graph is built from it.
func Define[T any](schema *Schema, name string, defaultValue T, reducer Reducer[T]) Field[T] {
	if name == "" {
		schema.errs = append(schema.errs, errors.New("field name must not be empty"))
		return Field[T]{schema: schema, name: name}
	}

	if _, exists := schema.fields[name]; exists {
		schema.errs = append(schema.errs, fmt.Errorf("duplicate field %q", name))
		return Field[T]{schema: schema, name: name}
	}

	if reducer == nil {
		reducer = lastWriteWins[T]
	}

	schema.fields[name] = &fieldSpec{
		name:         name,
		defaultValue: defaultValue,
		reduce: func(previous, incoming any) any {
			previousTyped, _ := previous.(T)
			incomingTyped, ok := incoming.(T)
			if !ok {
				// Field handles make this unreachable through the public
				// API; keep the previous value rather than corrupt state.
				return previous
			}
			return reducer(previousTyped, incomingTyped)
		},
		restore: func(raw any) (any, error) {
			if typed, ok := raw.(T); ok {
				return typed, nil
			}
			// Values coming back from a checkpoint backend arrive as
			// generic JSON/msgpack shapes; round-trip through JSON to
			// coerce them to the declared type.
			encoded, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			var value T
			if err := json.Unmarshal(encoded, &value); err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			return value, nil
		},
	}
	schema.order = append(schema.order, name)

	return Field[T]{schema: schema, name: name}
}

// Append returns a reducer that concatenates incoming elements onto the
// previous slice. An empty incoming slice keeps the previous value.
func Append[E any]() Reducer[[]E] {
	return func(previous, incoming []E) []E {
		if len(incoming) == 0 {
			return previous
		}
		merged := make([]E, 0, len(previous)+len(incoming))
		merged = append(merged, previous...)
		return append(merged, incoming...)
	}
}

// lastWriteWins is the default reducer: incoming replaces previous unless
// incoming is a nil reference value.
func lastWriteWins[T any](previous, incoming T) T {
	if isNilReference(incoming) {
		return previous
	}
	return incoming
}

func isNilReference(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// Err reports field definition problems accumulated by Define calls, joined
// into one error. Builders surface it at Build time.
func (s *Schema) Err() error {
	if len(s.errs) == 0 {
		return nil
	}
	return errors.Join(s.errs...)
}

// newValues builds a value map with every declared field set to its default.
func (s *Schema) newValues() map[string]any {
	values := make(map[string]any, len(s.fields))
	for name, spec := range s.fields {
		values[name] = spec.defaultValue
	}
	return values
}

// apply merges an update into values through each written field's reducer.
// Writes are applied in the order they were recorded. An update built
// against a different schema is rejected, since its reducers and types
// cannot be trusted here.
func (s *Schema) apply(values map[string]any, update *Update) error {
	if update == nil {
		return nil
	}

	for _, w := range update.writes {
		if w.schema != s {
			return configErrorf("update writes field %q from a different schema", w.name)
		}
		spec := s.fields[w.name]
		if spec == nil {
			return configErrorf("update writes undeclared field %q", w.name)
		}
		values[w.name] = spec.reduce(values[w.name], w.value)
	}

	return nil
}

// Restore rebuilds a State from a raw snapshot, typically loaded from a
// checkpoint backend. Unknown keys are ignored, missing fields take their
// defaults, and present values are coerced to the declared field types.
func (s *Schema) Restore(raw map[string]any) (*State, error) {
	values := s.newValues()

	for name, spec := range s.fields {
		stored, present := raw[name]
		if !present || stored == nil {
			continue
		}
		value, err := spec.restore(stored)
		if err != nil {
			return nil, fmt.Errorf("restoring state: %w", err)
		}
		values[name] = value
	}

	return &State{schema: s, values: values}, nil
}

// State is one snapshot of the graph's shared data: every declared field,
// fully populated. Steps receive the current state read-only and describe
// their writes with an Update; the engine performs the merge between steps,
// so concurrent reads within a step are safe.
type State struct {
	schema *Schema
	values map[string]any
}

// NewState builds a state with every field at its default. Graph runs
// construct their own state internally; this is exported for tests and for
// preparing seed snapshots.
func NewState(schema *Schema) *State {
	return &State{schema: schema, values: schema.newValues()}
}

// Get reads a field from the state. It returns the field's zero value when
// the handle does not belong to this state's schema.
func Get[T any](state *State, field Field[T]) T {
	var zero T
	if state == nil || field.schema != state.schema {
		return zero
	}
	value, ok := state.values[field.name].(T)
	if !ok {
		return zero
	}
	return value
}

// Snapshot returns a shallow copy of the state's values keyed by field
// name, suitable for checkpointing. Reference values are shared with the
// live state; persistence backends serialize them before the state can
// change again.
func (s *State) Snapshot() map[string]any {
	snapshot := make(map[string]any, len(s.values))
	for name, value := range s.values {
		snapshot[name] = value
	}
	return snapshot
}

// Update is an ordered set of field writes produced by one step. Zero or
// nil updates are valid and merge to nothing.
type Update struct {
	writes []write
}

type write struct {
	schema *Schema
	name   string
	value  any
}

// NewUpdate creates an empty update.
func NewUpdate() *Update {
	return &Update{}
}

// Set records a write of value to the field and returns the update for
// chaining. Multiple writes to the same field are reduced in order during
// the merge.
func Set[T any](update *Update, field Field[T], value T) *Update {
	update.writes = append(update.writes, write{
		schema: field.schema,
		name:   field.name,
		value:  value,
	})
	return update
}
