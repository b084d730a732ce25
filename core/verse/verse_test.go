package verse

import (
	"encoding/json"
	"testing"
)

func TestRefOrdering(t *testing.T) {
	tests := []struct {
		a, b Ref
		want int
	}{
		{Ref{1, 1}, Ref{1, 1}, 0},
		{Ref{1, 1}, Ref{1, 2}, -1},
		{Ref{1, 2}, Ref{1, 1}, 1},
		{Ref{1, 9}, Ref{2, 1}, -1},
		{Ref{3, 1}, Ref{2, 16}, 1},
	}

	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := tt.a.Less(tt.b); got != (tt.want < 0) {
			t.Errorf("Less(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want < 0)
		}
	}
}

func TestRefIsValid(t *testing.T) {
	tests := []struct {
		ref  Ref
		want bool
	}{
		{Ref{1, 1}, true},
		{Ref{1430, 19}, true},
		{Ref{0, 1}, false},
		{Ref{1, 0}, false},
		{Ref{-1, 4}, false},
	}

	for _, tt := range tests {
		if got := tt.ref.IsValid(); got != tt.want {
			t.Errorf("IsValid(%v) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestRefString(t *testing.T) {
	ref := Ref{Page: 12, Line: 3}
	if got := ref.String(); got != "(12-3)" {
		t.Errorf("String() = %q, want %q", got, "(12-3)")
	}
}

func TestRecordJSON(t *testing.T) {
	rec := Record{
		ID:          7,
		Gurmukhi:    "ਆਦਿ ਸਚੁ ਜੁਗਾਦਿ ਸਚੁ ॥",
		Normalized:  "should not appear",
		Page:        1,
		Line:        4,
		Translation: "True in the beginning, True throughout the ages.",
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}

	if decoded["gurmukhi_text"] != rec.Gurmukhi {
		t.Errorf("gurmukhi_text = %v, want %q", decoded["gurmukhi_text"], rec.Gurmukhi)
	}
	if decoded["page_number"] != float64(1) {
		t.Errorf("page_number = %v, want 1", decoded["page_number"])
	}
	if decoded["line_number"] != float64(4) {
		t.Errorf("line_number = %v, want 4", decoded["line_number"])
	}
	if _, leaked := decoded["Normalized"]; leaked {
		t.Error("Normalized field must not be serialized")
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("ਸਚੁ ਨਾਮੁ")
	h2 := ContentHash("ਸਚੁ ਨਾਮੁ")
	h3 := ContentHash("ਹਰਿ ਨਾਮੁ")

	if h1 != h2 {
		t.Errorf("hash not deterministic: %s != %s", h1, h2)
	}
	if h1 == h3 {
		t.Errorf("distinct texts must not collide: %s", h1)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
}
