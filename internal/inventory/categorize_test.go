package inventory

import "testing"

func TestCategorize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Milk", "Dairy"},
		{"eggs", "Dairy"},
		{"Rice", "Grains & Pantry"},
		{"apples", "Produce"},
		{"  Bread ", "Bakery"},
		{"chicken thighs", "Meat & Seafood"},
		{"vanilla ice cream", "Frozen"},
		{"sour cream", "Dairy"},
		{"canned black beans", "Grains & Pantry"},
		{"leftover chicken curry", "Prepared Meals"},
		{"orange juice", "Beverages"},
		{"dark chocolate", "Snacks"},
		{"dragonfruit", "Produce"},
		{"", Fallback},
		{"   ", Fallback},
		{"xyzzy", Fallback},
	}
	for _, tt := range tests {
		if got := Categorize(tt.input); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
