package domain

import (
	"context"
	"time"
)

// Store opens units of work against the ledger storage
type Store interface {
	Begin(ctx context.Context) (Repository, error)
}

// Repository is a unit of work. Added records become durable on Commit;
// Commit may be called repeatedly and the unit stays usable afterwards.
// Commit fails with ErrConcurrentUpdate when an added transaction is not
// the immediate successor of its account's stored tail.
type Repository interface {
	// AddAccount stages an account and assigns its identity
	AddAccount(ctx context.Context, account *Account) error

	// AddTransaction stages a transaction and assigns its identity
	AddTransaction(ctx context.Context, txn *Transaction) error

	// AccountByID returns ErrNotFound when the account does not exist
	AccountByID(ctx context.Context, id int64) (*Account, error)

	// AccountByIDAndCredentialHash returns ErrNotFound when id or hash do not match
	AccountByIDAndCredentialHash(ctx context.Context, id int64, hash string) (*Account, error)

	// LastTransaction returns the committed chain tail of account
	LastTransaction(ctx context.Context, account *Account) (*Transaction, error)

	// Transactions returns committed records dated in [start, end) ordered by date
	Transactions(ctx context.Context, account *Account, start, end time.Time) ([]*Transaction, error)

	Commit(ctx context.Context) error

	// Rollback discards everything staged since the last Commit
	Rollback() error
}

// InterestRateProvider returns the daily rates for every day in [start, end]
type InterestRateProvider interface {
	InterestRates(ctx context.Context, start, end time.Time) (InterestRates, error)
}

// CredentialHasher derives the deterministic hash stored for a password
type CredentialHasher interface {
	Hash(password string) string
}
