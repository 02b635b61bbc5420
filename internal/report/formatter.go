package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
	"github.com/tirasundara/ledger-service/pkg/fileutil"
)

// OutputFormatter defines the interface for formatting account statements
type OutputFormatter interface {
	Format(txns []*domain.Transaction) ([]byte, error)
	FileExtension() string
}

// StatementLine is one rendered statement row
type StatementLine struct {
	Date      time.Time       `json:"date"`
	Type      string          `json:"type"`
	Reference string          `json:"reference,omitempty"`
	Value     decimal.Decimal `json:"value"`
	Balance   decimal.Decimal `json:"balance"`
}

// Label is the type name followed by the counterparty when there is one
func (l StatementLine) Label() string {
	if l.Reference == "" {
		return l.Type
	}
	return fmt.Sprintf("%s %s", l.Type, l.Reference)
}

// Lines converts ledger records into statement rows, keeping their order
func Lines(txns []*domain.Transaction) []StatementLine {
	lines := make([]StatementLine, 0, len(txns))
	for _, txn := range txns {
		lines = append(lines, StatementLine{
			Date:      txn.Date(),
			Type:      txn.Type().Name(),
			Reference: txn.Reference(),
			Value:     txn.Value(),
			Balance:   txn.Balance(),
		})
	}
	return lines
}

// JSONFormatter formats statements as JSON
type JSONFormatter struct {
	PrettyPrint bool
}

func NewJSONFormatter(prettyPrint bool) *JSONFormatter {
	return &JSONFormatter{
		PrettyPrint: prettyPrint,
	}
}

// Format implements the OutputFormatter interface for JSON
func (f *JSONFormatter) Format(txns []*domain.Transaction) ([]byte, error) {
	lines := Lines(txns)
	if f.PrettyPrint {
		return json.MarshalIndent(lines, "", "  ")
	}
	return json.Marshal(lines)
}

func (f *JSONFormatter) FileExtension() string {
	return "json"
}

// CSVFormatter formats statements as CSV with a header row
type CSVFormatter struct {
	DateFormat string
}

func NewCSVFormatter(dateFormat string) *CSVFormatter {
	if dateFormat == "" {
		dateFormat = time.RFC3339
	}
	return &CSVFormatter{DateFormat: dateFormat}
}

// Format implements the OutputFormatter interface for CSV
func (f *CSVFormatter) Format(txns []*domain.Transaction) ([]byte, error) {
	rows := make([][]string, 0, len(txns))
	for _, line := range Lines(txns) {
		rows = append(rows, []string{
			line.Date.Format(f.DateFormat),
			line.Label(),
			line.Value.StringFixed(2),
			line.Balance.StringFixed(2),
		})
	}

	var buf bytes.Buffer
	if err := fileutil.WriteCSV(&buf, []string{"date", "description", "value", "balance"}, rows); err != nil {
		return nil, fmt.Errorf("formatting statement: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *CSVFormatter) FileExtension() string {
	return "csv"
}
