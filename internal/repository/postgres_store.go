package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgreSQL error codes treated as a lost race for an account's tail
const (
	PgErrUniqueViolation      = "23505" // unique_violation
	PgErrSerializationFailure = "40001" // serialization_failure
	PgErrDeadlockDetected     = "40P01" // deadlock_detected
)

const connectAttempts = 5

type accountModel struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string          `gorm:"column:name;size:50;not null"`
	OpeningDate    time.Time       `gorm:"column:opening_date;not null"`
	OverdraftLimit decimal.Decimal `gorm:"column:overdraft_limit;type:numeric(20,2);not null"`
	OverdraftTax   decimal.Decimal `gorm:"column:overdraft_tax;type:numeric(12,8);not null"`
	CredentialHash string          `gorm:"column:credential_hash;size:128;not null"`
}

func (accountModel) TableName() string {
	return "accounts"
}

// transactionModel keys the chain on (account_id, seq). The unique index
// forbids a fork; next_seq is flipped from 0 exactly once when a successor lands.
type transactionModel struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID int64           `gorm:"column:account_id;not null;uniqueIndex:idx_transactions_account_seq,priority:1;index:idx_transactions_account_date,priority:1"`
	Seq       uint64          `gorm:"column:seq;not null;uniqueIndex:idx_transactions_account_seq,priority:2"`
	Date      time.Time       `gorm:"column:date;not null;index:idx_transactions_account_date,priority:2"`
	Type      int             `gorm:"column:type;not null"`
	Value     decimal.Decimal `gorm:"column:value;type:numeric(20,2);not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null"`
	Reference string          `gorm:"column:reference;size:32"`
	NextSeq   uint64          `gorm:"column:next_seq;not null;default:0"`
}

func (transactionModel) TableName() string {
	return "transactions"
}

func (m transactionModel) toDomain(account *domain.Account) (*domain.Transaction, error) {
	return transactionRecord{
		ID:        m.ID,
		AccountID: m.AccountID,
		Seq:       m.Seq,
		Date:      m.Date,
		Type:      m.Type,
		Value:     m.Value,
		Balance:   m.Balance,
		Reference: m.Reference,
		Next:      m.NextSeq,
	}.toDomain(account)
}

// PostgresStore keeps the ledger in PostgreSQL through GORM
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgresStore connects to dsn, retrying while the server comes up
func OpenPostgresStore(dsn string, migrate bool, logger log.Logger) (*PostgresStore, error) {
	var (
		db  *gorm.DB
		err error
	)

	for i := range connectAttempts {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			break
		}
		level.Warn(logger).Log("msg", "connecting to postgres", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	store := NewPostgresStore(db)
	if migrate {
		if err := store.Migrate(); err != nil {
			return nil, err
		}
	}

	level.Info(logger).Log("msg", "connected to postgres")
	return store, nil
}

// NewPostgresStore wraps an open GORM handle
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates or updates the ledger tables
func (s *PostgresStore) Migrate() error {
	if err := s.db.AutoMigrate(&accountModel{}, &transactionModel{}); err != nil {
		return fmt.Errorf("migrating ledger tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("closing postgres: %w", err)
	}
	return sqlDB.Close()
}

func (s *PostgresStore) Begin(ctx context.Context) (domain.Repository, error) {
	return &postgresUnit{store: s}, nil
}

// postgresUnit opens a database transaction on the first write and keeps it
// until Commit or Rollback. Reads always see committed data.
type postgresUnit struct {
	store *PostgresStore
	tx    *gorm.DB
}

func (u *postgresUnit) writer(ctx context.Context) (*gorm.DB, error) {
	if u.tx == nil {
		tx := u.store.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, fmt.Errorf("beginning transaction: %w", tx.Error)
		}
		u.tx = tx
	}
	return u.tx, nil
}

func (u *postgresUnit) AddAccount(ctx context.Context, account *domain.Account) error {
	tx, err := u.writer(ctx)
	if err != nil {
		return err
	}

	m := accountModel{
		Name:           account.Name(),
		OpeningDate:    account.OpeningDate(),
		OverdraftLimit: account.OverdraftLimit(),
		OverdraftTax:   account.OverdraftTax(),
		CredentialHash: account.CredentialHash(),
	}
	if err := tx.Create(&m).Error; err != nil {
		return fmt.Errorf("inserting account: %w", translatePgError(err))
	}

	return account.AssignID(m.ID)
}

// AddTransaction claims the predecessor's next_seq before inserting. The
// conditional update blocks on a concurrent claimant and then matches no row.
func (u *postgresUnit) AddTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.Account().IsTransient() {
		return errors.New("adding transaction: account has no identity")
	}

	tx, err := u.writer(ctx)
	if err != nil {
		return err
	}

	accountID := txn.Account().ID()
	if txn.Seq() > 1 {
		res := tx.Model(&transactionModel{}).
			Where("account_id = ? AND seq = ? AND next_seq = 0", accountID, txn.Seq()-1).
			Update("next_seq", txn.Seq())
		if res.Error != nil {
			return fmt.Errorf("linking predecessor of seq %d: %w", txn.Seq(), translatePgError(res.Error))
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("appending seq %d to account %d: %w", txn.Seq(), accountID, domain.ErrConcurrentUpdate)
		}
	}

	m := transactionModel{
		AccountID: accountID,
		Seq:       txn.Seq(),
		Date:      txn.Date(),
		Type:      txn.Type().Code(),
		Value:     txn.Value(),
		Balance:   txn.Balance(),
		Reference: txn.Reference(),
	}
	if err := tx.Create(&m).Error; err != nil {
		return fmt.Errorf("inserting transaction: %w", translatePgError(err))
	}

	return txn.AssignID(m.ID)
}

func (u *postgresUnit) AccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	var m accountModel
	if err := u.store.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, fmt.Errorf("loading account %d: %w", id, translatePgError(err))
	}
	return accountFromModel(m), nil
}

func (u *postgresUnit) AccountByIDAndCredentialHash(ctx context.Context, id int64, hash string) (*domain.Account, error) {
	var m accountModel
	err := u.store.db.WithContext(ctx).
		Where("id = ? AND credential_hash = ?", id, hash).
		First(&m).Error
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", id, translatePgError(err))
	}
	return accountFromModel(m), nil
}

func (u *postgresUnit) LastTransaction(ctx context.Context, account *domain.Account) (*domain.Transaction, error) {
	var m transactionModel
	err := u.store.db.WithContext(ctx).
		Where("account_id = ?", account.ID()).
		Order("seq DESC").
		First(&m).Error
	if err != nil {
		return nil, fmt.Errorf("loading last transaction of account %d: %w", account.ID(), translatePgError(err))
	}
	return m.toDomain(account)
}

func (u *postgresUnit) Transactions(ctx context.Context, account *domain.Account, start, end time.Time) ([]*domain.Transaction, error) {
	var models []transactionModel
	err := u.store.db.WithContext(ctx).
		Where("account_id = ? AND date >= ? AND date < ?", account.ID(), start, end).
		Order("date ASC, seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing transactions of account %d: %w", account.ID(), translatePgError(err))
	}

	txns := make([]*domain.Transaction, 0, len(models))
	for _, m := range models {
		t, err := m.toDomain(account)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func (u *postgresUnit) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	tx := u.tx
	u.tx = nil

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("committing ledger changes: %w", translatePgError(err))
	}
	return nil
}

func (u *postgresUnit) Rollback() error {
	if u.tx == nil {
		return nil
	}
	tx := u.tx
	u.tx = nil
	return tx.Rollback().Error
}

func accountFromModel(m accountModel) *domain.Account {
	return domain.RestoreAccount(m.ID, m.Name, m.OverdraftLimit, m.OverdraftTax, m.CredentialHash, m.OpeningDate.UTC())
}

// translatePgError maps driver errors onto the domain's storage sentinels
func translatePgError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgErrUniqueViolation, PgErrSerializationFailure, PgErrDeadlockDetected:
			return fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
		}
	}
	return err
}
