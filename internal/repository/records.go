package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
)

// accountRecord is the stored shape of an account
type accountRecord struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	OpeningDate    time.Time       `json:"opening_date"`
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
	OverdraftTax   decimal.Decimal `json:"overdraft_tax"`
	CredentialHash string          `json:"credential_hash"`
}

func newAccountRecord(account *domain.Account) accountRecord {
	return accountRecord{
		ID:             account.ID(),
		Name:           account.Name(),
		OpeningDate:    account.OpeningDate(),
		OverdraftLimit: account.OverdraftLimit(),
		OverdraftTax:   account.OverdraftTax(),
		CredentialHash: account.CredentialHash(),
	}
}

func (r accountRecord) toDomain() *domain.Account {
	return domain.RestoreAccount(r.ID, r.Name, r.OverdraftLimit, r.OverdraftTax, r.CredentialHash, r.OpeningDate.UTC())
}

// transactionRecord is the stored shape of a ledger record
type transactionRecord struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Seq       uint64          `json:"seq"`
	Date      time.Time       `json:"date"`
	Type      int             `json:"type"`
	Value     decimal.Decimal `json:"value"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference,omitempty"`
	Next      uint64          `json:"next,omitempty"`
}

func newTransactionRecord(txn *domain.Transaction) transactionRecord {
	next, _ := txn.Next()
	return transactionRecord{
		ID:        txn.ID(),
		AccountID: txn.Account().ID(),
		Seq:       txn.Seq(),
		Date:      txn.Date(),
		Type:      txn.Type().Code(),
		Value:     txn.Value(),
		Balance:   txn.Balance(),
		Reference: txn.Reference(),
		Next:      next,
	}
}

func (r transactionRecord) toDomain(account *domain.Account) (*domain.Transaction, error) {
	typ, err := domain.TransactionTypeFromCode(r.Type)
	if err != nil {
		return nil, fmt.Errorf("decoding transaction %d: %w", r.ID, err)
	}
	return domain.RestoreTransaction(r.ID, account, r.Seq, r.Date.UTC(), typ, r.Value, r.Balance, r.Reference, r.Next), nil
}
