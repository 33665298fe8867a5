package agent

import (
	"testing"
)

func TestCalculateCredits(t *testing.T) {
	tests := []struct {
		tokens int
		want   float64
	}{
		{0, 0},
		{1, 0.001},
		{500, 0.5},
		{1000, 1},
		{1500, 1.5},
		{123456, 123.456},
	}
	for _, tt := range tests {
		if got := CalculateCredits(tt.tokens); got != tt.want {
			t.Errorf("CalculateCredits(%d) = %v, want %v", tt.tokens, got, tt.want)
		}
	}
}

func TestSubtractionAmount(t *testing.T) {
	tests := []struct {
		credits float64
		want    int
	}{
		{0.001, 1},
		{0.5, 1},
		{1, 1},
		{1.0001, 2},
		{2.5, 3},
		{10, 10},
	}
	for _, tt := range tests {
		got := SubtractionAmount(tt.credits)
		if got != tt.want {
			t.Errorf("SubtractionAmount(%v) = %d, want %d", tt.credits, got, tt.want)
		}
		if got < 1 {
			t.Errorf("SubtractionAmount(%v) = %d, must never be below 1", tt.credits, got)
		}
	}
}

func TestTurnContextAccumulatesTokens(t *testing.T) {
	tc := NewTurnContext("s1", "t1", "u1", "o1", "", "", nil)
	tc.RecordTokens(100, 50)
	tc.RecordTokens(30, 20)
	if got := tc.TokensUsed(); got != 200 {
		t.Errorf("TokensUsed = %d, want 200", got)
	}
	if tc.Canceled() {
		t.Error("nil probe must never report canceled")
	}
}
