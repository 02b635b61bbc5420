package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const transactionSource = "Transaction"

// Transaction is an immutable ledger record. Records of one account form an
// append-only log addressed by Seq; the record with the highest Seq is the
// chain tail and holds the current balance.
type Transaction struct {
	Entity
	account   *Account
	seq       uint64
	date      time.Time
	typ       TransactionType
	value     decimal.Decimal
	balance   decimal.Decimal
	reference string
	next      uint64
}

func newTransaction(
	account *Account,
	seq uint64,
	date time.Time,
	typ TransactionType,
	value, balance decimal.Decimal,
	reference string,
	now time.Time,
) (*Transaction, error) {
	var errs []ValidationError

	if account == nil {
		errs = append(errs, ValidationError{"account is required", "Account", transactionSource})
	}

	if date.After(now) {
		errs = append(errs, ValidationError{"transaction date cannot be in the future", "Date", transactionSource})
	}

	if !typ.Valid() {
		errs = append(errs, ValidationError{"invalid transaction type", "Type", transactionSource})
	}

	if len(errs) > 0 {
		return nil, NewDomainError("invalid transaction", errs...)
	}

	return &Transaction{
		account:   account,
		seq:       seq,
		date:      date,
		typ:       typ,
		value:     RoundMoney(value),
		balance:   RoundMoney(balance),
		reference: reference,
	}, nil
}

// NewOpeningTransaction starts the chain of a freshly opened account
func NewOpeningTransaction(account *Account, date time.Time, initialDeposit decimal.Decimal, now time.Time) (*Transaction, error) {
	if initialDeposit.Abs().GreaterThan(MaxTransactionValue) {
		return nil, NewDomainError("invalid initial deposit",
			ValidationError{"initial deposit cannot exceed 1000000000 in either direction", "Value", transactionSource})
	}
	return newTransaction(account, 1, date, Opening, initialDeposit, initialDeposit, "", now)
}

// RestoreTransaction rebuilds a persisted record without re-running validation
func RestoreTransaction(
	id int64,
	account *Account,
	seq uint64,
	date time.Time,
	typ TransactionType,
	value, balance decimal.Decimal,
	reference string,
	next uint64,
) *Transaction {
	return &Transaction{
		Entity:    Entity{id: id},
		account:   account,
		seq:       seq,
		date:      date,
		typ:       typ,
		value:     value,
		balance:   balance,
		reference: reference,
		next:      next,
	}
}

func (t *Transaction) Account() *Account {
	return t.account
}

// Seq is the 1-based position of the record in its account's chain
func (t *Transaction) Seq() uint64 {
	return t.seq
}

func (t *Transaction) Date() time.Time {
	return t.date
}

func (t *Transaction) Type() TransactionType {
	return t.typ
}

func (t *Transaction) Value() decimal.Decimal {
	return t.value
}

func (t *Transaction) Balance() decimal.Decimal {
	return t.balance
}

// Reference holds the counterparty account id of a transfer
func (t *Transaction) Reference() string {
	return t.reference
}

// Next returns the Seq of the successor once one has been derived
func (t *Transaction) Next() (uint64, bool) {
	return t.next, t.next != 0
}

// Equal compares identities only. A transient record equals nothing but itself.
func (t *Transaction) Equal(other *Transaction) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t == other {
		return true
	}
	return t.sameIdentity(other.Entity)
}

func (t *Transaction) link(successor *Transaction) {
	t.next = successor.seq
}

func (t *Transaction) tailErrors() []ValidationError {
	if t.next != 0 {
		return []ValidationError{{"transaction is not the last of its account", "", transactionSource}}
	}
	return nil
}

func (t *Transaction) accountID() string {
	if t.account == nil {
		return ""
	}
	return strconv.FormatInt(t.account.ID(), 10)
}

// GenerateNextDayBalance derives the records of the day after t: a Balance
// record at the start of that day and, when rate is positive and the balance
// is not zero, an Interest or Fees record right after it. A zero rate marks
// a non-accruing day. The returned records are ordered; the last one is the
// new chain tail. Days are calendar days in now's location.
func (t *Transaction) GenerateNextDayBalance(interestRate, overdraftTax decimal.Decimal, now time.Time) ([]*Transaction, error) {
	newDate := StartOfDay(t.date.In(now.Location())).AddDate(0, 0, 1)

	errs := t.tailErrors()
	if interestRate.IsNegative() {
		errs = append(errs, ValidationError{"interest rate cannot be negative", "InterestRate", transactionSource})
	}
	if overdraftTax.IsNegative() {
		errs = append(errs, ValidationError{"overdraft tax cannot be negative", "OverdraftTax", transactionSource})
	}
	if len(errs) > 0 {
		return nil, NewDomainError(
			fmt.Sprintf("processing rates of account %s for %s", t.accountID(), newDate.Format("2006-01-02")),
			errs...,
		)
	}

	var accrual *Transaction
	if interestRate.IsPositive() && !t.balance.IsZero() {
		typ, rate := Interest, interestRate
		if t.balance.IsNegative() {
			typ, rate = Fees, overdraftTax
		}

		// clamped to now when rolling forward within the first instant of today
		accrualDate := newDate.Add(interestOffset)
		if accrualDate.After(now) {
			accrualDate = now
		}

		value := t.balance.Mul(rate)
		var err error
		accrual, err = newTransaction(t.account, t.seq+2, accrualDate, typ, value, t.balance.Add(value), "", now)
		if err != nil {
			return nil, err
		}
	}

	closing := t.balance
	if accrual != nil {
		closing = accrual.balance
	}

	balance, err := newTransaction(t.account, t.seq+1, newDate, Balance, decimal.Zero, closing, "", now)
	if err != nil {
		return nil, err
	}

	t.link(balance)
	if accrual == nil {
		return []*Transaction{balance}, nil
	}

	balance.link(accrual)
	return []*Transaction{balance, accrual}, nil
}

// Withdraw derives a Withdraw record from the chain tail
func (t *Transaction) Withdraw(value decimal.Decimal, now time.Time) (*Transaction, error) {
	value = RoundMoney(value)
	newBalance := t.balance.Sub(value)

	errs := t.tailErrors()
	errs = append(errs, t.debitErrors(value, newBalance, "insufficient funds for withdrawal")...)
	if len(errs) > 0 {
		return nil, NewDomainError("withdrawal failed", errs...)
	}

	w, err := newTransaction(t.account, t.seq+1, now, Withdraw, value.Neg(), newBalance, "", now)
	if err != nil {
		return nil, err
	}

	t.link(w)
	return w, nil
}

// Deposit derives a Deposit record from the chain tail
func (t *Transaction) Deposit(value decimal.Decimal, now time.Time) (*Transaction, error) {
	value = RoundMoney(value)

	errs := t.tailErrors()
	errs = append(errs, amountErrors(value)...)
	if len(errs) > 0 {
		return nil, NewDomainError("deposit failed", errs...)
	}

	d, err := newTransaction(t.account, t.seq+1, now, Deposit, value, t.balance.Add(value), "", now)
	if err != nil {
		return nil, err
	}

	t.link(d)
	return d, nil
}

// Transfer derives a TransferOut record on t's chain and a TransferIn record
// on destination's chain. Each carries the other account's id as reference.
func (t *Transaction) Transfer(value decimal.Decimal, destination *Transaction, now time.Time) (out, in *Transaction, err error) {
	if destination == nil {
		return nil, nil, NewDomainError("transfer failed",
			ValidationError{"destination account is required", "AccountID", transactionSource})
	}

	value = RoundMoney(value)
	newBalance := t.balance.Sub(value)

	errs := t.tailErrors()
	errs = append(errs, destination.tailErrors()...)
	errs = append(errs, t.debitErrors(value, newBalance, "insufficient funds for transfer")...)
	if t.account.Equal(destination.account) {
		errs = append(errs, ValidationError{"transfers to the same account are not allowed", "AccountID", transactionSource})
	}
	if len(errs) > 0 {
		return nil, nil, NewDomainError("transfer failed", errs...)
	}

	out, err = newTransaction(t.account, t.seq+1, now, TransferOut, value.Neg(), newBalance, destination.accountID(), now)
	if err != nil {
		return nil, nil, err
	}

	in, err = newTransaction(destination.account, destination.seq+1, now, TransferIn, value, destination.balance.Add(value), t.accountID(), now)
	if err != nil {
		return nil, nil, err
	}

	t.link(out)
	destination.link(in)
	return out, in, nil
}

func (t *Transaction) debitErrors(value, newBalance decimal.Decimal, insufficient string) []ValidationError {
	errs := amountErrors(value)
	if value.IsPositive() && newBalance.IsNegative() && newBalance.Neg().GreaterThan(t.account.overdraftLimit) {
		errs = append(errs, ValidationError{insufficient, "Value", transactionSource})
	}
	return errs
}

func amountErrors(value decimal.Decimal) []ValidationError {
	var errs []ValidationError
	if value.GreaterThan(MaxTransactionValue) {
		errs = append(errs, ValidationError{"value must not exceed 1000000000", "Value", transactionSource})
	}
	if !value.IsPositive() {
		errs = append(errs, ValidationError{"value must be greater than zero", "Value", transactionSource})
	}
	return errs
}
