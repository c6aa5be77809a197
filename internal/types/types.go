// README: Common value objects shared across modules.
package types

import "math"

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Location struct {
	Point   Point  `json:"point"`
	Address string `json:"address"`
}

// Money is an amount in cents to keep arithmetic exact.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MoneyFromDollars converts a decimal dollar amount to Money,
// rounding half-up to the nearest cent.
func MoneyFromDollars(dollars float64, currency string) Money {
	cents := int64(math.Floor(dollars*100 + 0.5))
	return Money{Amount: cents, Currency: currency}
}

// Dollars returns the amount as a float for display and comparison.
func (m Money) Dollars() float64 {
	return float64(m.Amount) / 100
}
