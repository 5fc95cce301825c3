package similarity

import (
	"math"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Apple Inc", "Apple Inc", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "abc", "", 0.0},
		{"single substitution", "kitten", "mitten", 5.0 / 6.0},
		{"case sensitive", "ACME LLC", "acme llc", 1.0 / 8.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ratio(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRatioDissimilar(t *testing.T) {
	if got := Ratio("abc", "xyz"); got > 0.34 {
		t.Errorf("expected low similarity for disjoint strings, got %v", got)
	}
}

func TestRatioSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Northwind Traders", "Northwind Trading"},
		{"Globex", "Initech"},
		{"a", "ab"},
	}
	for _, p := range pairs {
		if Ratio(p[0], p[1]) != Ratio(p[1], p[0]) {
			t.Errorf("Ratio not symmetric for %q, %q", p[0], p[1])
		}
	}
}
