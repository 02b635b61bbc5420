package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	accountSource    = "Account"
	maxNameLength    = 50
	minPasswordChars = 3
)

// Account is the aggregate root holding a client's current-account terms.
// It never changes after construction apart from identity assignment.
type Account struct {
	Entity
	name           string
	openingDate    time.Time
	overdraftLimit decimal.Decimal
	overdraftTax   decimal.Decimal
	credentialHash string
}

// NewAccount validates every rule and returns all violations at once.
// The plaintext password is only validated, never stored.
func NewAccount(
	name string,
	overdraftLimit, overdraftTax decimal.Decimal,
	password, credentialHash string,
	openingDate, now time.Time,
) (*Account, error) {
	name = strings.TrimSpace(name)

	var errs []ValidationError

	switch {
	case name == "":
		errs = append(errs, ValidationError{"name is required", "Name", accountSource})
	case utf8.RuneCountInString(name) > maxNameLength:
		errs = append(errs, ValidationError{"name must have at most 50 characters", "Name", accountSource})
	}

	if overdraftLimit.IsNegative() || overdraftLimit.GreaterThan(MaxOverdraftLimit) {
		errs = append(errs, ValidationError{"overdraft limit must be between 0 and 1000000000", "OverdraftLimit", accountSource})
	}

	if overdraftTax.IsNegative() || overdraftTax.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, ValidationError{"overdraft tax must be between 0 and 1", "OverdraftTax", accountSource})
	}

	if strings.TrimSpace(credentialHash) == "" {
		errs = append(errs, ValidationError{"credential hash is required", "CredentialHash", accountSource})
	}

	if openingDate.After(now) {
		errs = append(errs, ValidationError{"opening date cannot be in the future", "OpeningDate", accountSource})
	}

	if beforeMinOperationalDate(openingDate) {
		errs = append(errs, ValidationError{"opening date cannot be before " + MinOperationalDate.Format("2006-01-02"), "OpeningDate", accountSource})
	}

	errs = append(errs, passwordErrors(password)...)

	if len(errs) > 0 {
		return nil, NewDomainError("invalid account", errs...)
	}

	return &Account{
		name:           name,
		openingDate:    openingDate,
		overdraftLimit: overdraftLimit,
		overdraftTax:   overdraftTax,
		credentialHash: credentialHash,
	}, nil
}

// RestoreAccount rebuilds a persisted account without re-running validation
func RestoreAccount(
	id int64,
	name string,
	overdraftLimit, overdraftTax decimal.Decimal,
	credentialHash string,
	openingDate time.Time,
) *Account {
	return &Account{
		Entity:         Entity{id: id},
		name:           name,
		openingDate:    openingDate,
		overdraftLimit: overdraftLimit,
		overdraftTax:   overdraftTax,
		credentialHash: credentialHash,
	}
}

// ValidatePassword checks the shape of a plaintext password
func ValidatePassword(password string) error {
	if errs := passwordErrors(password); len(errs) > 0 {
		return NewDomainError("invalid password", errs...)
	}
	return nil
}

func passwordErrors(password string) []ValidationError {
	switch {
	case strings.TrimSpace(password) == "":
		return []ValidationError{{"password is required", "Password", accountSource}}
	case utf8.RuneCountInString(password) < minPasswordChars:
		return []ValidationError{{"password must have at least 3 characters", "Password", accountSource}}
	}
	return nil
}

func (a *Account) Name() string {
	return a.name
}

func (a *Account) OpeningDate() time.Time {
	return a.openingDate
}

func (a *Account) OverdraftLimit() decimal.Decimal {
	return a.overdraftLimit
}

func (a *Account) OverdraftTax() decimal.Decimal {
	return a.overdraftTax
}

func (a *Account) CredentialHash() string {
	return a.credentialHash
}

// Equal compares identities only. A transient account equals nothing but itself.
func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a == other {
		return true
	}
	return a.sameIdentity(other.Entity)
}
