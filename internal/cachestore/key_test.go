package cachestore

import "testing"

func TestKeyDeterminism(t *testing.T) {
	params := map[string]any{
		"model":    "gemini-3-flash-preview",
		"question": "What is photosynthesis?",
		"answer":   "Plants make food from light",
		"marks":    5.0,
	}

	k1 := Key(CategoryGradeAnswer, params)
	k2 := Key(CategoryGradeAnswer, map[string]any{
		"answer":   "Plants make food from light",
		"marks":    5.0,
		"question": "What is photosynthesis?",
		"model":    "gemini-3-flash-preview",
	})

	if k1 != k2 {
		t.Errorf("identical semantic params produced different keys:\n%s\n%s", k1, k2)
	}
	if len(k1) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(k1))
	}
}

func TestKeySensitivity(t *testing.T) {
	base := map[string]any{
		"model":       "gemini-3-flash-preview",
		"prompt":      "extract the text",
		"temperature": 0.0,
	}
	baseKey := Key(CategoryOCR, base)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"prompt text", func(p map[string]any) { p["prompt"] = "extract the text!" }},
		{"model", func(p map[string]any) { p["model"] = "gemini-3-pro-preview" }},
		{"temperature", func(p map[string]any) { p["temperature"] = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := map[string]any{}
			for k, v := range base {
				params[k] = v
			}
			tt.mutate(params)
			if Key(CategoryOCR, params) == baseKey {
				t.Errorf("changing %s did not change the key", tt.name)
			}
		})
	}

	t.Run("category", func(t *testing.T) {
		if Key(CategoryGradeAnswer, base) == baseKey {
			t.Error("changing category did not change the key")
		}
	})
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("scanned page"))
	b := HashBytes([]byte("scanned page"))
	c := HashBytes([]byte("scanned pagf"))

	if a != b {
		t.Error("identical content produced different hashes")
	}
	if a == c {
		t.Error("different content produced the same hash")
	}
}
