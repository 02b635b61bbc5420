package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
)

// Messages of rejected requests, returned without field errors
const (
	MsgInvalidCredentials = "invalid account or password"
	MsgInvalidAccount     = "invalid account"
	MsgInvalidDestination = "invalid destination account"
	MsgNoTransaction      = "no transaction found for account"
	MsgRatesUnavailable   = "failed to load interest rates"
	MsgStorageFailure     = "ledger storage failure"
	MsgConcurrentUpdate   = "concurrent update, please retry"
)

const defaultMaxAttempts = 3

// AccountService orchestrates account lifecycle and money movement on top of
// a Store, an InterestRateProvider and a CredentialHasher. Every mutation
// rolls the involved chains forward to today first.
type AccountService struct {
	store       domain.Store
	rates       domain.InterestRateProvider
	hasher      domain.CredentialHasher
	logger      log.Logger
	clock       func() time.Time
	location    *time.Location
	maxAttempts int
}

// Option configures an AccountService
type Option func(*AccountService)

func WithLogger(logger log.Logger) Option {
	return func(s *AccountService) {
		s.logger = logger
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *AccountService) {
		s.clock = now
	}
}

// WithLocation sets the time zone whose calendar days the ledger rolls over on
func WithLocation(loc *time.Location) Option {
	return func(s *AccountService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithMaxAttempts bounds how often an operation is re-run after losing an append race
func WithMaxAttempts(n int) Option {
	return func(s *AccountService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewAccountService creates a new AccountService
func NewAccountService(
	store domain.Store,
	rates domain.InterestRateProvider,
	hasher domain.CredentialHasher,
	opts ...Option,
) *AccountService {
	s := &AccountService{
		store:       store,
		rates:       rates,
		hasher:      hasher,
		logger:      log.NewNopLogger(),
		clock:       time.Now,
		location:    time.Local,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransferResult holds both balances after a transfer
type TransferResult struct {
	SourceBalance      decimal.Decimal `json:"source_balance"`
	DestinationBalance decimal.Decimal `json:"destination_balance"`
}

// OpenAccount creates an account and its Opening transaction
func (s *AccountService) OpenAccount(
	ctx context.Context,
	name string,
	overdraftLimit, overdraftTax decimal.Decimal,
	password string,
	openingDate time.Time,
	initialDeposit decimal.Decimal,
) (*domain.Account, error) {
	logger := s.operationLogger("open_account")
	hash := s.hasher.Hash(password)

	var account *domain.Account
	err := s.withRetry(ctx, logger, func(repo domain.Repository) error {
		now := s.now()

		var err error
		account, err = domain.NewAccount(name, overdraftLimit, overdraftTax, password, hash, openingDate, now)
		if err != nil {
			return err
		}

		opening, err := domain.NewOpeningTransaction(account, openingDate, initialDeposit, now)
		if err != nil {
			return err
		}

		if err := repo.AddAccount(ctx, account); err != nil {
			return err
		}
		if err := repo.AddTransaction(ctx, opening); err != nil {
			return err
		}
		return repo.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	level.Info(logger).Log("msg", "account opened", "account", account.ID(), "initial_deposit", initialDeposit)
	return account, nil
}

// Authorize returns the account matching id and password. A wrong id and a
// wrong password fail identically.
func (s *AccountService) Authorize(ctx context.Context, accountID int64, password string) (*domain.Account, error) {
	logger := s.operationLogger("authorize")

	hash, err := s.credentialHash(password)
	if err != nil {
		return nil, err
	}

	var account *domain.Account
	err = s.withRetry(ctx, logger, func(repo domain.Repository) error {
		var err error
		account, err = s.authorize(ctx, repo, accountID, hash)
		return err
	})
	return account, err
}

// GetBalance rolls the account forward to today and returns the tail balance
func (s *AccountService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	logger := s.operationLogger("get_balance")

	var balance decimal.Decimal
	err := s.withRetry(ctx, logger, func(repo domain.Repository) error {
		account, err := s.loadAccount(ctx, repo, accountID, MsgInvalidAccount)
		if err != nil {
			return err
		}

		tail, err := s.rollForward(ctx, repo, logger, account)
		if err != nil {
			return err
		}

		balance = tail.Balance()
		return nil
	})
	return balance, err
}

// GetStatement returns the transactions dated in the normalized window, after
// rolling forward so accruals inside the window exist.
func (s *AccountService) GetStatement(ctx context.Context, accountID int64, start time.Time, end *time.Time) ([]*domain.Transaction, error) {
	logger := s.operationLogger("get_statement")

	filter, err := domain.ValidateStatementFilter(start, end, s.now())
	if err != nil {
		return nil, err
	}

	var txns []*domain.Transaction
	err = s.withRetry(ctx, logger, func(repo domain.Repository) error {
		account, err := s.loadAccount(ctx, repo, accountID, MsgInvalidAccount)
		if err != nil {
			return err
		}

		if _, err := s.rollForward(ctx, repo, logger, account); err != nil {
			return err
		}

		txns, err = repo.Transactions(ctx, account, filter.Start, filter.End)
		return err
	})
	return txns, err
}

// Withdraw debits value after checking the password
func (s *AccountService) Withdraw(ctx context.Context, accountID int64, value decimal.Decimal, password string) (decimal.Decimal, error) {
	logger := s.operationLogger("withdraw")

	hash, err := s.credentialHash(password)
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err = s.withRetry(ctx, logger, func(repo domain.Repository) error {
		account, err := s.authorize(ctx, repo, accountID, hash)
		if err != nil {
			return err
		}

		tail, err := s.rollForward(ctx, repo, logger, account)
		if err != nil {
			return err
		}

		w, err := tail.Withdraw(value, s.now())
		if err != nil {
			return err
		}

		if err := repo.AddTransaction(ctx, w); err != nil {
			return err
		}
		if err := repo.Commit(ctx); err != nil {
			return err
		}

		balance = w.Balance()
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	level.Info(logger).Log("msg", "withdrawal", "account", accountID, "value", value, "balance", balance)
	return balance, nil
}

// Deposit credits value. Deposits need no password.
func (s *AccountService) Deposit(ctx context.Context, accountID int64, value decimal.Decimal) (decimal.Decimal, error) {
	logger := s.operationLogger("deposit")

	var balance decimal.Decimal
	err := s.withRetry(ctx, logger, func(repo domain.Repository) error {
		account, err := s.loadAccount(ctx, repo, accountID, MsgInvalidAccount)
		if err != nil {
			return err
		}

		tail, err := s.rollForward(ctx, repo, logger, account)
		if err != nil {
			return err
		}

		d, err := tail.Deposit(value, s.now())
		if err != nil {
			return err
		}

		if err := repo.AddTransaction(ctx, d); err != nil {
			return err
		}
		if err := repo.Commit(ctx); err != nil {
			return err
		}

		balance = d.Balance()
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	level.Info(logger).Log("msg", "deposit", "account", accountID, "value", value, "balance", balance)
	return balance, nil
}

// Transfer moves value from source to destination after checking the source password
func (s *AccountService) Transfer(
	ctx context.Context,
	sourceID int64,
	value decimal.Decimal,
	password string,
	destinationID int64,
) (TransferResult, error) {
	logger := s.operationLogger("transfer")

	hash, err := s.credentialHash(password)
	if err != nil {
		return TransferResult{}, err
	}

	var result TransferResult
	err = s.withRetry(ctx, logger, func(repo domain.Repository) error {
		source, err := s.authorize(ctx, repo, sourceID, hash)
		if err != nil {
			return err
		}

		destination, err := s.loadAccount(ctx, repo, destinationID, MsgInvalidDestination)
		if err != nil {
			return err
		}

		sourceTail, err := s.rollForward(ctx, repo, logger, source)
		if err != nil {
			return err
		}

		destinationTail, err := s.rollForward(ctx, repo, logger, destination)
		if err != nil {
			return err
		}

		out, in, err := sourceTail.Transfer(value, destinationTail, s.now())
		if err != nil {
			return err
		}

		// lower account id first so relational row locks are always taken in the same order
		first, second := out, in
		if destination.ID() < source.ID() {
			first, second = in, out
		}
		if err := repo.AddTransaction(ctx, first); err != nil {
			return err
		}
		if err := repo.AddTransaction(ctx, second); err != nil {
			return err
		}
		if err := repo.Commit(ctx); err != nil {
			return err
		}

		result = TransferResult{
			SourceBalance:      out.Balance(),
			DestinationBalance: in.Balance(),
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	level.Info(logger).Log("msg", "transfer", "source", sourceID, "destination", destinationID, "value", value)
	return result, nil
}

// credentialHash validates the password shape before hashing it
func (s *AccountService) credentialHash(password string) (string, error) {
	if err := domain.ValidatePassword(password); err != nil {
		return "", err
	}
	return s.hasher.Hash(password), nil
}

func (s *AccountService) authorize(ctx context.Context, repo domain.Repository, accountID int64, hash string) (*domain.Account, error) {
	account, err := repo.AccountByIDAndCredentialHash(ctx, accountID, hash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewDomainError(MsgInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("authorizing account %d: %w", accountID, err)
	}
	return account, nil
}

func (s *AccountService) loadAccount(ctx context.Context, repo domain.Repository, accountID int64, notFound string) (*domain.Account, error) {
	account, err := repo.AccountByID(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewDomainError(notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	return account, nil
}

// withRetry runs fn in a fresh unit of work, re-running it when an append
// lost the race for a chain tail. Whatever fn staged but did not commit is
// rolled back; per-day rollforward commits survive a failed attempt.
func (s *AccountService) withRetry(ctx context.Context, logger log.Logger, fn func(repo domain.Repository) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var repo domain.Repository
		repo, err = s.store.Begin(ctx)
		if err != nil {
			return s.translate(logger, fmt.Errorf("beginning unit of work: %w", err))
		}

		err = fn(repo)
		if err == nil {
			return nil
		}

		if rbErr := repo.Rollback(); rbErr != nil {
			level.Error(logger).Log("msg", "rollback failed", "err", rbErr)
		}

		if !errors.Is(err, domain.ErrConcurrentUpdate) {
			return s.translate(logger, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.translate(logger, ctxErr)
		}

		level.Warn(logger).Log("msg", "append lost the race, retrying", "attempt", attempt, "err", err)
	}

	return s.translate(logger, err)
}

// translate makes every error leaving the service a DomainError
func (s *AccountService) translate(logger log.Logger, err error) error {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	if errors.Is(err, domain.ErrConcurrentUpdate) {
		return domain.WrapDomainError(MsgConcurrentUpdate, err)
	}

	level.Error(logger).Log("msg", "operation failed", "err", err)
	return domain.WrapDomainError(MsgStorageFailure, err)
}

func (s *AccountService) now() time.Time {
	return s.clock().In(s.location)
}

func (s *AccountService) operationLogger(operation string) log.Logger {
	return log.With(s.logger, "op", operation, "op_id", uuid.NewString())
}
