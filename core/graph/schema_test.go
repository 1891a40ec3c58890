package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testStop mirrors the structured values tour state carries, so restore
// coverage exercises struct coercion and not just scalars.
type testStop struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// --- Field Definition Tests ---

func TestDefine_EmptyNameIsSchemaError(testCase *testing.T) {
	schema := NewSchema()
	Define(schema, "", "default", nil)

	err := schema.Err()
	if err == nil {
		testCase.Fatal("expected schema error for empty field name, got nil")
	}
	if !strings.Contains(err.Error(), "must not be empty") {
		testCase.Errorf("expected 'must not be empty' error, got: %v", err)
	}
}

func TestDefine_DuplicateNameIsSchemaError(testCase *testing.T) {
	schema := NewSchema()
	Define(schema, "status", "", nil)
	Define(schema, "status", 0, nil)

	err := schema.Err()
	if err == nil {
		testCase.Fatal("expected schema error for duplicate field, got nil")
	}
	if !strings.Contains(err.Error(), `duplicate field "status"`) {
		testCase.Errorf("expected duplicate field error, got: %v", err)
	}
}

func TestNewState_FieldsTakeDefaults(testCase *testing.T) {
	schema := NewSchema()
	status := Define(schema, "status", "pending", nil)
	radius := Define[float64](schema, "radius_m", 800, nil)
	stops := Define(schema, "stops", []testStop(nil), Append[testStop]())

	state := NewState(schema)

	if got := Get(state, status); got != "pending" {
		testCase.Errorf("expected default status 'pending', got %q", got)
	}
	if got := Get(state, radius); got != 800 {
		testCase.Errorf("expected default radius 800, got %v", got)
	}
	if got := Get(state, stops); got != nil {
		testCase.Errorf("expected nil default for stops, got %v", got)
	}
}

// --- Merge Semantics Tests ---

func TestApply_LastWriteWinsByDefault(testCase *testing.T) {
	schema := NewSchema()
	status := Define(schema, "status", "pending", nil)
	state := NewState(schema)

	update := Set(Set(NewUpdate(), status, "collecting"), status, "generating")
	if err := schema.apply(state.values, update); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}

	if got := Get(state, status); got != "generating" {
		testCase.Errorf("expected last write to win, got %q", got)
	}
}

func TestApply_NilIncomingReferenceKeepsPrevious(testCase *testing.T) {
	schema := NewSchema()
	current := Define[*testStop](schema, "current_stop", nil, nil)
	state := NewState(schema)

	if err := schema.apply(state.values, Set(NewUpdate(), current, &testStop{ID: "louvre"})); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}
	if err := schema.apply(state.values, Set(NewUpdate(), current, nil)); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}

	got := Get(state, current)
	if got == nil || got.ID != "louvre" {
		testCase.Errorf("nil write must not erase the previous value, got %+v", got)
	}
}

func TestApply_AppendReducerConcatenates(testCase *testing.T) {
	schema := NewSchema()
	visited := Define(schema, "visited", []string(nil), Append[string]())
	state := NewState(schema)

	if err := schema.apply(state.values, Set(NewUpdate(), visited, []string{"resolve_area"})); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}
	if err := schema.apply(state.values, Set(NewUpdate(), visited, []string{"collect_places", "generate"})); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}

	expected := []string{"resolve_area", "collect_places", "generate"}
	if diff := cmp.Diff(expected, Get(state, visited)); diff != "" {
		testCase.Errorf("visited mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_EmptyIncomingSliceKeepsPrevious(testCase *testing.T) {
	schema := NewSchema()
	visited := Define(schema, "visited", []string(nil), Append[string]())
	state := NewState(schema)

	if err := schema.apply(state.values, Set(NewUpdate(), visited, []string{"generate"})); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}
	if err := schema.apply(state.values, Set(NewUpdate(), visited, []string{})); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}

	if diff := cmp.Diff([]string{"generate"}, Get(state, visited)); diff != "" {
		testCase.Errorf("empty append must keep previous (-want +got):\n%s", diff)
	}
}

func TestApply_WritesReduceInRecordedOrder(testCase *testing.T) {
	schema := NewSchema()
	visited := Define(schema, "visited", []string(nil), Append[string]())
	state := NewState(schema)

	update := NewUpdate()
	Set(update, visited, []string{"first"})
	Set(update, visited, []string{"second"})

	if err := schema.apply(state.values, update); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}

	if diff := cmp.Diff([]string{"first", "second"}, Get(state, visited)); diff != "" {
		testCase.Errorf("write order not preserved (-want +got):\n%s", diff)
	}
}

func TestApply_ForeignSchemaRejected(testCase *testing.T) {
	schema := NewSchema()
	Define(schema, "status", "", nil)

	otherSchema := NewSchema()
	foreignStatus := Define(otherSchema, "status", "", nil)

	state := NewState(schema)
	err := schema.apply(state.values, Set(NewUpdate(), foreignStatus, "smuggled"))

	if err == nil {
		testCase.Fatal("expected error for foreign-schema write, got nil")
	}
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		testCase.Errorf("expected a ConfigError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "different schema") {
		testCase.Errorf("expected 'different schema' error, got: %v", err)
	}
}

func TestApply_NilUpdateIsNoOp(testCase *testing.T) {
	schema := NewSchema()
	status := Define(schema, "status", "pending", nil)
	state := NewState(schema)

	if err := schema.apply(state.values, nil); err != nil {
		testCase.Fatalf("nil update must be a no-op, got: %v", err)
	}
	if got := Get(state, status); got != "pending" {
		testCase.Errorf("state changed by nil update: %q", got)
	}
}

// --- State Access Tests ---

func TestGet_ForeignSchemaReturnsZero(testCase *testing.T) {
	schema := NewSchema()
	Define(schema, "count", 41, nil)

	otherSchema := NewSchema()
	foreignCount := Define(otherSchema, "count", 99, nil)

	state := NewState(schema)
	if got := Get(state, foreignCount); got != 0 {
		testCase.Errorf("expected zero value for foreign handle, got %d", got)
	}
}

func TestGet_NilStateReturnsZero(testCase *testing.T) {
	schema := NewSchema()
	status := Define(schema, "status", "pending", nil)

	if got := Get(nil, status); got != "" {
		testCase.Errorf("expected zero value for nil state, got %q", got)
	}
}

func TestSnapshot_KeysEveryFieldAndIsStable(testCase *testing.T) {
	schema := NewSchema()
	status := Define(schema, "status", "pending", nil)
	count := Define(schema, "count", 0, nil)
	state := NewState(schema)

	if err := schema.apply(state.values, Set(Set(NewUpdate(), status, "done"), count, 41)); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}

	snapshot := state.Snapshot()
	if len(snapshot) != 2 {
		testCase.Fatalf("expected 2 snapshot keys, got %d: %v", len(snapshot), snapshot)
	}
	if snapshot["status"] != "done" || snapshot["count"] != 41 {
		testCase.Errorf("unexpected snapshot contents: %v", snapshot)
	}

	// Later writes must not show up in an already taken snapshot.
	if err := schema.apply(state.values, Set(NewUpdate(), count, 7)); err != nil {
		testCase.Fatalf("unexpected apply error: %v", err)
	}
	if snapshot["count"] != 41 {
		testCase.Errorf("snapshot mutated by later write: %v", snapshot["count"])
	}
}

// --- Restore Tests ---

func TestRestore_CoercesGenericShapes(testCase *testing.T) {
	schema := NewSchema()
	count := Define(schema, "count", 0, nil)
	stops := Define(schema, "stops", []testStop(nil), Append[testStop]())
	status := Define(schema, "status", "pending", nil)

	// Values come back from checkpoint backends as generic JSON shapes.
	raw := map[string]any{
		"count":  float64(41),
		"stops":  []any{map[string]any{"id": "louvre", "title": "The Louvre"}},
		"status": "planned",
	}

	state, err := schema.Restore(raw)
	if err != nil {
		testCase.Fatalf("unexpected restore error: %v", err)
	}

	if got := Get(state, count); got != 41 {
		testCase.Errorf("expected count 41, got %d", got)
	}
	if got := Get(state, status); got != "planned" {
		testCase.Errorf("expected status 'planned', got %q", got)
	}
	expected := []testStop{{ID: "louvre", Title: "The Louvre"}}
	if diff := cmp.Diff(expected, Get(state, stops)); diff != "" {
		testCase.Errorf("stops mismatch (-want +got):\n%s", diff)
	}
}

func TestRestore_MissingFieldTakesDefault(testCase *testing.T) {
	schema := NewSchema()
	status := Define(schema, "status", "pending", nil)
	Define(schema, "count", 0, nil)

	state, err := schema.Restore(map[string]any{"count": float64(3)})
	if err != nil {
		testCase.Fatalf("unexpected restore error: %v", err)
	}

	if got := Get(state, status); got != "pending" {
		testCase.Errorf("missing field must take its default, got %q", got)
	}
}

func TestRestore_UnknownKeysIgnored(testCase *testing.T) {
	schema := NewSchema()
	status := Define(schema, "status", "pending", nil)

	state, err := schema.Restore(map[string]any{
		"status":        "planned",
		"dropped_field": "left over from an older schema",
	})
	if err != nil {
		testCase.Fatalf("unexpected restore error: %v", err)
	}
	if got := Get(state, status); got != "planned" {
		testCase.Errorf("expected status 'planned', got %q", got)
	}
}

func TestRestore_IncompatibleValueFails(testCase *testing.T) {
	schema := NewSchema()
	Define(schema, "count", 0, nil)

	_, err := schema.Restore(map[string]any{"count": "forty-one"})
	if err == nil {
		testCase.Fatal("expected restore error for incompatible value, got nil")
	}
	if !strings.Contains(err.Error(), `"count"`) {
		testCase.Errorf("expected error to name the field, got: %v", err)
	}
}
