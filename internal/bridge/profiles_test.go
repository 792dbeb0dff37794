package bridge

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct{ v, lo, hi, want float64 }{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
	}
	for _, c := range cases {
		if got := clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clamp(%v,%v,%v) = %v, want %v", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := []struct{ v, want float64 }{
		{1234.5678, 1234.57},
		{1000, 1000},
		{1234.001, 1234},
	}
	for _, c := range cases {
		if got := round2(c.v); got != c.want {
			t.Errorf("round2(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestChargerIDFromPath(t *testing.T) {
	cases := map[string]string{
		"/CP001":        "CP001",
		"/nested/CP002": "nested/CP002",
		"":               "",
		"/":              "",
	}
	for path, want := range cases {
		if got := chargerIDFromPath(path); got != want {
			t.Errorf("chargerIDFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
