package api_test

import (
	"testing"
)

func TestEnsureMedicineIdempotent(t *testing.T) {
	name := uniqueName("Testicillin")
	body := map[string]interface{}{
		"name":     name,
		"strength": "250mg",
		"form":     "capsule",
		"stock":    40,
	}

	first := makeRequest("POST", "/medicines", body)
	if !first.IsSuccess() {
		t.Fatalf("ensure failed: %s", first.Message)
	}
	id := first.GetString("id")
	if id == "" {
		t.Fatal("expected a medicine id")
	}

	// Same natural key again: same record, stock untouched.
	body["stock"] = 999
	second := makeRequest("POST", "/medicines", body)
	if !second.IsSuccess() {
		t.Fatalf("re-ensure failed: %s", second.Message)
	}
	if second.GetString("id") != id {
		t.Errorf("expected the same id, got %s and %s", id, second.GetString("id"))
	}
	if second.GetFloat("stock") != 40 {
		t.Errorf("expected stock 40, got %v", second.Data["stock"])
	}
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	body := map[string]interface{}{
		"name":     uniqueName("Clampicillin"),
		"strength": "100mg",
		"form":     "tablet",
		"stock":    5,
	}

	created := makeRequest("POST", "/medicines", body)
	if !created.IsSuccess() {
		t.Fatalf("ensure failed: %s", created.Message)
	}
	id := created.GetString("id")

	resp := makeRequest("PATCH", "/medicines/"+id+"/stock", map[string]interface{}{"delta": -50})
	if !resp.IsSuccess() {
		t.Fatalf("adjust failed: %s", resp.Message)
	}

	got := makeRequest("GET", "/medicines/"+id, nil)
	if !got.IsSuccess() {
		t.Fatalf("get failed: %s", got.Message)
	}
	if got.GetFloat("stock") != 0 {
		t.Errorf("expected stock clamped to 0, got %v", got.Data["stock"])
	}
}
