package agent

import (
	"math"
)

// CalculateCredits converts metered tokens to fractional credits.
// 1000 tokens = 1 credit, exactly.
func CalculateCredits(tokens int) float64 {
	return float64(tokens) / 1000.0
}

// SubtractionAmount is the integer amount sent to the balance
// subtraction endpoint. Ceiling-rounded so the organization is never
// undercharged, and never less than 1 for a turn that consumed anything.
func SubtractionAmount(credits float64) int {
	amount := int(math.Ceil(credits))
	if amount < 1 {
		amount = 1
	}
	return amount
}
