package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DayKeyLayout formats the calendar day keys of an InterestRates table
	DayKeyLayout = "20060102"

	// interestOffset separates an Interest or Fees record from the Balance record of the same day
	interestOffset = 100 * time.Millisecond

	// MaxStatementDays bounds the span of a statement query
	MaxStatementDays = 100
)

var (
	// MaxTransactionValue is the largest amount a single movement may carry
	MaxTransactionValue = decimal.NewFromInt(1_000_000_000)

	// MaxOverdraftLimit is the largest overdraft limit an account may be opened with
	MaxOverdraftLimit = decimal.NewFromInt(1_000_000_000)

	// MinOperationalDate is the first day the ledger accepts
	MinOperationalDate = time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
)

// RoundMoney rounds to cents using round-half-to-even
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// StartOfDay truncates t to midnight in t's own location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayKey returns the yyyyMMdd key of t's calendar day
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// InterestRates maps a calendar day key to that day's rate.
// A day missing from the table does not accrue.
type InterestRates map[string]decimal.Decimal

// Rate returns the rate of day, zero when the day is absent
func (r InterestRates) Rate(day time.Time) decimal.Decimal {
	rate, ok := r[DayKey(day)]
	if !ok {
		return decimal.Zero
	}
	return rate
}

// Set records the rate of day
func (r InterestRates) Set(day time.Time, rate decimal.Decimal) {
	r[DayKey(day)] = rate
}

func beforeMinOperationalDate(t time.Time) bool {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Before(MinOperationalDate)
}
