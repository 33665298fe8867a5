package tokenizer

import "testing"

func TestHeuristicCount(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
		{"abcdefghi", 3},
	}
	for _, tc := range cases {
		if got := heuristicCount(tc.text); got != tc.want {
			t.Errorf("heuristicCount(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestCountEmptyText(t *testing.T) {
	e := NewTiktokenEstimator("")
	if got := e.Count("any-model", ""); got != 0 {
		t.Errorf("Count of empty text = %d, want 0", got)
	}
}
