package command

import "testing"

func TestSchemaValidate(t *testing.T) {
	s := Schema{
		{Name: "find_pattern", Type: ArgString, Required: true},
		{Name: "file_pattern", Type: ArgString, Required: false, Default: "*"},
		{Name: "max_count", Type: ArgInt, Required: false, Default: 0},
	}

	t.Run("applies defaults for missing optional fields", func(t *testing.T) {
		out, err := s.Validate(map[string]any{"find_pattern": "world"})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if out["file_pattern"] != "*" {
			t.Fatalf("file_pattern = %v, want '*'", out["file_pattern"])
		}
	})

	t.Run("missing required field fails", func(t *testing.T) {
		if _, err := s.Validate(map[string]any{}); err == nil {
			t.Fatal("expected error for missing required field")
		}
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"find_pattern": "x", "bogus": "y"})
		if err == nil {
			t.Fatal("expected error for unknown key")
		}
	})

	t.Run("coerces JSON float into int", func(t *testing.T) {
		out, err := s.Validate(map[string]any{"find_pattern": "x", "max_count": float64(3)})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if out["max_count"] != 3 {
			t.Fatalf("max_count = %v, want 3", out["max_count"])
		}
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"find_pattern": 5})
		if err == nil {
			t.Fatal("expected type error")
		}
	})
}
