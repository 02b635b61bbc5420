package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
	"github.com/tirasundara/ledger-service/pkg/fileutil"
)

var rateHeaderFields = []string{"date", "rate"}

// CSVProvider reads daily rates from a CSV file with a date,rate header.
// Rates are fractions (0.0005 is 0.05% a day).
type CSVProvider struct {
	FilePath   string
	DateFormat string
	logger     log.Logger
}

// NewCSVProvider creates a new CSVProvider
func NewCSVProvider(filePath, dateFormat string, logger log.Logger) *CSVProvider {
	if dateFormat == "" {
		dateFormat = "2006-01-02" // Default format
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &CSVProvider{
		FilePath:   filePath,
		DateFormat: dateFormat,
		logger:     logger,
	}
}

func (p *CSVProvider) InterestRates(ctx context.Context, start, end time.Time) (domain.InterestRates, error) {
	first, last := domain.StartOfDay(start), domain.StartOfDay(end)
	rates := make(domain.InterestRates)

	skip := func(line int, err error) error {
		level.Warn(p.logger).Log("msg", "skipping rate row", "file", p.FilePath, "line", line, "err", err)
		return nil
	}

	err := fileutil.NewCSVReader(p.FilePath).ReadRows(rateHeaderFields, func(row fileutil.Row) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		day, err := time.ParseInLocation(p.DateFormat, row.Get("date"), start.Location())
		if err != nil {
			return skip(row.Line, fmt.Errorf("invalid date: %w", err))
		}

		day = domain.StartOfDay(day)
		if day.Before(first) || day.After(last) {
			return nil
		}

		rate, err := decimal.NewFromString(row.Get("rate"))
		if err != nil {
			return skip(row.Line, fmt.Errorf("invalid rate: %w", err))
		}
		if rate.IsNegative() {
			return fmt.Errorf("negative rate %s on line %d", rate, row.Line)
		}

		rates.Set(day, rate)
		return nil
	}, skip)
	if err != nil {
		return nil, fmt.Errorf("reading rates from %s: %w", p.FilePath, err)
	}

	return rates, nil
}
