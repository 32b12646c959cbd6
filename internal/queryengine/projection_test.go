package queryengine

import "testing"

func TestValidateProjectionRejectsMixedModes(t *testing.T) {
	err := ValidateProjection(map[string]int{"name": 1, "age": 0})
	if err == nil {
		t.Error("expected a query-shape error for mixed 0/1 projection")
	}
}

func TestValidateProjectionAllowsMetadataAlongsideInclude(t *testing.T) {
	if err := ValidateProjection(map[string]int{"name": 1, "id": 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestProjectIncludeMode(t *testing.T) {
	doc := map[string]interface{}{"id": "1", "name": "Alice", "age": float64(30)}
	out := Project(doc, map[string]int{"name": 1})
	if _, ok := out["age"]; ok {
		t.Error("expected age to be excluded in include mode")
	}
	if out["name"] != "Alice" {
		t.Error("expected name to be included")
	}
	if _, ok := out["id"]; ok {
		t.Error("expected metadata field id to be excluded unless explicitly named")
	}
}

func TestProjectExcludeMode(t *testing.T) {
	doc := map[string]interface{}{"id": "1", "name": "Alice", "age": float64(30)}
	out := Project(doc, map[string]int{"age": 0})
	if _, ok := out["age"]; ok {
		t.Error("expected age to be dropped in exclude mode")
	}
	if out["name"] != "Alice" || out["id"] != "1" {
		t.Error("expected name and id to remain in exclude mode")
	}
}

func TestProjectMetadataOnlyIncludeMode(t *testing.T) {
	doc := map[string]interface{}{"id": "1", "name": "Alice", "age": float64(30)}
	out := Project(doc, map[string]int{"id": 1})
	if len(out) != 1 || out["id"] != "1" {
		t.Errorf("expected only id to survive a metadata-only include projection, got %+v", out)
	}
}

func TestProjectEmptySpecIsNoOp(t *testing.T) {
	doc := map[string]interface{}{"name": "Alice"}
	out := Project(doc, nil)
	if out["name"] != "Alice" {
		t.Error("expected no-op projection to preserve fields")
	}
}
