package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
)

// FlatProvider applies the same rate to every calendar day
type FlatProvider struct {
	Rate decimal.Decimal
}

func NewFlatProvider(rate decimal.Decimal) (*FlatProvider, error) {
	if rate.IsNegative() {
		return nil, fmt.Errorf("negative flat rate %s", rate)
	}
	return &FlatProvider{Rate: rate}, nil
}

func (p *FlatProvider) InterestRates(ctx context.Context, start, end time.Time) (domain.InterestRates, error) {
	rates := make(domain.InterestRates)
	if p.Rate.IsZero() {
		return rates, nil
	}

	for day := domain.StartOfDay(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		rates.Set(day, p.Rate)
	}
	return rates, nil
}
