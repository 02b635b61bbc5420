package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
)

func parseTime(t *testing.T, value string) time.Time {
	t.Helper()
	layout := "2006-01-02T15:04:05"
	if len(value) == len("2006-01-02") {
		layout = "2006-01-02"
	}
	parsed, err := time.Parse(layout, value)
	if err != nil {
		t.Fatalf("Failed to parse time %s: %v", value, err)
	}
	return parsed
}

func newAccount(t *testing.T, id int64, overdraftLimit, overdraftTax string) *domain.Account {
	t.Helper()
	return domain.RestoreAccount(id, "Jane Doe",
		decimal.RequireFromString(overdraftLimit), decimal.RequireFromString(overdraftTax),
		"hash", parseTime(t, "2024-01-01"))
}

func TestNewAccount(t *testing.T) {
	now := parseTime(t, "2025-01-15T10:00:00")

	account, err := domain.NewAccount("  Jane Doe  ", decimal.NewFromInt(100), decimal.RequireFromString("0.012"),
		"secret", "hash", parseTime(t, "2025-01-10"), now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if account.Name() != "Jane Doe" {
		t.Errorf("Expected trimmed name 'Jane Doe', got '%s'", account.Name())
	}

	if !account.IsTransient() {
		t.Errorf("Expected new account to be transient, got id %d", account.ID())
	}

	if !account.OverdraftLimit().Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected overdraft limit 100, got %s", account.OverdraftLimit())
	}
}

func TestNewAccount_AccumulatesViolations(t *testing.T) {
	now := parseTime(t, "2025-01-15T10:00:00")

	_, err := domain.NewAccount(strings.Repeat("x", 51), decimal.NewFromInt(-1), decimal.RequireFromString("1.5"),
		"ab", " ", parseTime(t, "2025-02-01"), now)

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("Expected DomainError, got %v", err)
	}

	fields := make(map[string]int)
	for _, v := range domainErr.Errors {
		fields[v.Field]++
	}

	for _, field := range []string{"Name", "OverdraftLimit", "OverdraftTax", "CredentialHash", "OpeningDate", "Password"} {
		if fields[field] != 1 {
			t.Errorf("Expected one violation on %s, got %d", field, fields[field])
		}
	}

	if len(domainErr.Errors) != 6 {
		t.Errorf("Expected 6 violations, got %d", len(domainErr.Errors))
	}
}

func TestNewAccount_OpeningDateBounds(t *testing.T) {
	now := parseTime(t, "2025-01-15T10:00:00")

	testCases := []struct {
		name        string
		openingDate time.Time
		wantErr     bool
	}{
		{"minimum date", parseTime(t, "2020-03-01"), false},
		{"before minimum date", parseTime(t, "2020-02-29"), true},
		{"now", now, false},
		{"future", now.Add(time.Second), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.NewAccount("Jane", decimal.Zero, decimal.Zero, "secret", "hash", tc.openingDate, now)
			if (err != nil) != tc.wantErr {
				t.Errorf("Expected error %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	testCases := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"   ", true},
		{"ab", true},
		{"abc", false},
	}

	for _, tc := range testCases {
		err := domain.ValidatePassword(tc.password)
		if (err != nil) != tc.wantErr {
			t.Errorf("Password %q: expected error %v, got %v", tc.password, tc.wantErr, err)
		}
	}
}

func TestAccountEquality(t *testing.T) {
	a := newAccount(t, 7, "0", "0")
	b := newAccount(t, 7, "50", "0.1")
	c := newAccount(t, 8, "0", "0")

	if !a.Equal(b) {
		t.Errorf("Expected accounts with the same identity to be equal")
	}

	if a.Equal(c) {
		t.Errorf("Expected accounts with different identities to differ")
	}

	transient1, _ := domain.NewAccount("Jane", decimal.Zero, decimal.Zero, "secret", "hash", parseTime(t, "2024-01-01"), time.Now())
	transient2, _ := domain.NewAccount("Jane", decimal.Zero, decimal.Zero, "secret", "hash", parseTime(t, "2024-01-01"), time.Now())

	if transient1.Equal(transient2) {
		t.Errorf("Expected transient accounts to differ even with identical fields")
	}

	if !transient1.Equal(transient1) {
		t.Errorf("Expected a transient account to equal itself")
	}
}

func TestEntity_AssignID(t *testing.T) {
	account, _ := domain.NewAccount("Jane", decimal.Zero, decimal.Zero, "secret", "hash", parseTime(t, "2024-01-01"), time.Now())

	if err := account.AssignID(3); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if account.ID() != 3 {
		t.Errorf("Expected id 3, got %d", account.ID())
	}

	if err := account.AssignID(4); err == nil {
		t.Errorf("Expected error when assigning identity twice")
	}
}
