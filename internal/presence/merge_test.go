package presence

import (
	"reflect"
	"testing"
)

func TestDeepMergeNestedPatchWins(t *testing.T) {
	base := map[string]any{
		"name": "Sample Device",
		"data": map[string]any{
			"current_app": map[string]any{
				"name":             "VSCode",
				"last_change_time": float64(1000),
			},
		},
	}
	patch := map[string]any{
		"data": map[string]any{
			"current_app": map[string]any{
				"name": "IntelliJ IDEA",
			},
		},
	}

	merged := DeepMerge(base, patch)

	app, ok := merged["data"].(map[string]any)["current_app"].(map[string]any)
	if !ok {
		t.Fatalf("current_app missing from merged result: %#v", merged)
	}
	if app["name"] != "IntelliJ IDEA" {
		t.Errorf("name = %v, want IntelliJ IDEA", app["name"])
	}
	// The timestamp was not in the patch, so it must survive.
	if app["last_change_time"] != float64(1000) {
		t.Errorf("last_change_time = %v, want 1000", app["last_change_time"])
	}
	if merged["name"] != "Sample Device" {
		t.Errorf("untouched top-level field changed: %v", merged["name"])
	}
}

func TestDeepMergeScalarReplacesDocument(t *testing.T) {
	base := map[string]any{"data": map[string]any{"k": "v"}}
	patch := map[string]any{"data": "flat"}

	merged := DeepMerge(base, patch)
	if merged["data"] != "flat" {
		t.Errorf("data = %v, want flat", merged["data"])
	}
}

func TestDeepMergeDocumentReplacesScalar(t *testing.T) {
	base := map[string]any{"data": "flat"}
	patch := map[string]any{"data": map[string]any{"k": "v"}}

	merged := DeepMerge(base, patch)
	doc, ok := merged["data"].(map[string]any)
	if !ok || doc["k"] != "v" {
		t.Errorf("data = %#v, want {k: v}", merged["data"])
	}
}

func TestDeepMergeExplicitNullClears(t *testing.T) {
	base := map[string]any{"description": "old", "idle": true}
	patch := map[string]any{"description": nil}

	merged := DeepMerge(base, patch)
	v, present := merged["description"]
	if !present || v != nil {
		t.Errorf("description = %v (present=%v), want explicit nil", v, present)
	}
	if merged["idle"] != true {
		t.Errorf("omitted field was touched: idle = %v", merged["idle"])
	}
}

func TestDeepMergeNeverDeletesKeys(t *testing.T) {
	base := map[string]any{"a": 1, "b": map[string]any{"c": 2}}
	patch := map[string]any{"b": map[string]any{"d": 3}}

	merged := DeepMerge(base, patch)
	inner := merged["b"].(map[string]any)
	if inner["c"] != 1 && inner["c"] != 2 {
		t.Errorf("key c deleted by merge: %#v", inner)
	}
	if inner["d"] != 3 {
		t.Errorf("patch key missing: %#v", inner)
	}
}

func TestDeepMergeLeftToRight(t *testing.T) {
	base := map[string]any{"x": "base"}
	merged := DeepMerge(base,
		map[string]any{"x": "first"},
		map[string]any{"x": "second"},
	)
	if merged["x"] != "second" {
		t.Errorf("x = %v, want second (later patches win)", merged["x"])
	}
}

func TestDeepMergeIdempotent(t *testing.T) {
	base := map[string]any{
		"name": "dev",
		"data": map[string]any{"current_app": map[string]any{"name": "a"}},
	}
	patch := map[string]any{
		"data": map[string]any{"current_app": map[string]any{"name": "b"}},
	}

	once := DeepMerge(base, patch)
	twice := DeepMerge(once, patch)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"data": map[string]any{"k": "v"}}
	patch := map[string]any{"data": map[string]any{"k2": "v2"}}

	merged := DeepMerge(base, patch)
	merged["data"].(map[string]any)["k"] = "mutated"

	if base["data"].(map[string]any)["k"] != "v" {
		t.Error("mutating the result leaked into the base")
	}
	if _, ok := base["data"].(map[string]any)["k2"]; ok {
		t.Error("merge mutated the base document")
	}
}

func TestDeepMergeNilBase(t *testing.T) {
	merged := DeepMerge(nil, map[string]any{"a": 1})
	if merged["a"] != 1 {
		t.Errorf("merge into nil base = %#v", merged)
	}
}
