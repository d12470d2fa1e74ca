package domain

import "fmt"

// Money is an amount in minor units of a currency. Monetary terms on
// agreements and charges compare by value, never by float arithmetic.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func GBP(minor int64) Money { return Money{Amount: minor, Currency: "GBP"} }

func (m Money) IsZero() bool { return m.Amount == 0 && m.Currency == "" }

func (m Money) Equal(o Money) bool { return m == o }

// Add panics on currency mismatch; callers validate currencies at the edge.
func (m Money) Add(o Money) Money {
	if m.Currency != o.Currency {
		panic(fmt.Sprintf("currency mismatch: %s vs %s", m.Currency, o.Currency))
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}
}

func (m Money) String() string {
	minor := m.Amount
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, m.Currency)
}
