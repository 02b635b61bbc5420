package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
)

// DefaultBCBURL is the daily SELIC series (SGS 11) of the Brazilian central bank
const DefaultBCBURL = "https://api.bcb.gov.br/dados/serie/bcdata.sgs.11/dados"

const bcbDateFormat = "02/01/2006"

var hundred = decimal.NewFromInt(100)

// BCBProvider fetches daily rates from a central-bank SGS series. The series
// publishes business days only, so weekends and holidays come back absent.
type BCBProvider struct {
	BaseURL string
	client  *http.Client
}

type bcbEntry struct {
	Date  string `json:"data"`
	Value string `json:"valor"`
}

// NewBCBProvider creates a BCBProvider for baseURL
func NewBCBProvider(baseURL string, timeout time.Duration) *BCBProvider {
	if baseURL == "" {
		baseURL = DefaultBCBURL
	}
	return &BCBProvider{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *BCBProvider) InterestRates(ctx context.Context, start, end time.Time) (domain.InterestRates, error) {
	query := url.Values{}
	query.Set("formato", "json")
	query.Set("dataInicial", start.Format(bcbDateFormat))
	query.Set("dataFinal", end.Format(bcbDateFormat))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("requesting rates: unexpected status %d: %s", resp.StatusCode, body)
	}

	var entries []bcbEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding rates: %w", err)
	}

	rates := make(domain.InterestRates, len(entries))
	for _, e := range entries {
		day, err := time.Parse(bcbDateFormat, e.Date)
		if err != nil {
			return nil, fmt.Errorf("parsing rate date %q: %w", e.Date, err)
		}

		percent, err := decimal.NewFromString(e.Value)
		if err != nil {
			return nil, fmt.Errorf("parsing rate of %s: %w", e.Date, err)
		}
		if percent.IsNegative() {
			return nil, fmt.Errorf("negative rate %s on %s", percent, e.Date)
		}

		rates.Set(day, percent.Div(hundred))
	}

	return rates, nil
}
