package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/tirasundara/ledger-service/internal/domain"
)

const sequenceBandwidth = 100

// BadgerStore keeps the ledger in an embedded Badger database.
//
// Layout:
//
//	acct/<account>          account record
//	tx/<account>/<seq>      transaction record
//	tail/<account>          seq of the chain tail
//
// Ids are zero-padded hex so keys of one account iterate in seq order.
type BadgerStore struct {
	db         *badger.DB
	accountSeq *badger.Sequence
	txnSeq     *badger.Sequence
	ownsDB     bool
}

// OpenBadgerStore opens (or creates) a store at path. An empty path keeps everything in memory.
func OpenBadgerStore(path string, logger log.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	store, err := NewBadgerStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewBadgerStore wraps an already opened database
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	accountSeq, err := db.GetSequence([]byte("seq/account"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("leasing account sequence: %w", err)
	}

	txnSeq, err := db.GetSequence([]byte("seq/transaction"), sequenceBandwidth)
	if err != nil {
		accountSeq.Release()
		return nil, fmt.Errorf("leasing transaction sequence: %w", err)
	}

	return &BadgerStore{
		db:         db,
		accountSeq: accountSeq,
		txnSeq:     txnSeq,
	}, nil
}

// Close releases the leased id ranges and closes the database if the store opened it
func (s *BadgerStore) Close() error {
	err := errors.Join(s.accountSeq.Release(), s.txnSeq.Release())
	if s.ownsDB {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

func (s *BadgerStore) Begin(ctx context.Context) (domain.Repository, error) {
	return &badgerUnit{store: s}, nil
}

func accountKey(id int64) []byte {
	return []byte(fmt.Sprintf("acct/%016x", id))
}

func tailKey(accountID int64) []byte {
	return []byte(fmt.Sprintf("tail/%016x", accountID))
}

func transactionPrefix(accountID int64) []byte {
	return []byte(fmt.Sprintf("tx/%016x/", accountID))
}

func transactionKey(accountID int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("tx/%016x/%016x", accountID, seq))
}

// nextID turns badger's zero-based sequence into a positive identity
func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n + 1), nil
}

type badgerUnit struct {
	store        *BadgerStore
	accounts     []*domain.Account
	transactions []*domain.Transaction
}

func (u *badgerUnit) AddAccount(ctx context.Context, account *domain.Account) error {
	id, err := nextID(u.store.accountSeq)
	if err != nil {
		return fmt.Errorf("assigning account id: %w", err)
	}
	if err := account.AssignID(id); err != nil {
		return fmt.Errorf("adding account: %w", err)
	}
	u.accounts = append(u.accounts, account)
	return nil
}

func (u *badgerUnit) AddTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.Account().IsTransient() {
		return fmt.Errorf("adding transaction: account has no identity")
	}
	id, err := nextID(u.store.txnSeq)
	if err != nil {
		return fmt.Errorf("assigning transaction id: %w", err)
	}
	if err := txn.AssignID(id); err != nil {
		return fmt.Errorf("adding transaction: %w", err)
	}
	u.transactions = append(u.transactions, txn)
	return nil
}

func (u *badgerUnit) AccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	var record accountRecord
	err := u.store.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, accountKey(id), &record)
	})
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", id, err)
	}
	return record.toDomain(), nil
}

func (u *badgerUnit) AccountByIDAndCredentialHash(ctx context.Context, id int64, hash string) (*domain.Account, error) {
	account, err := u.AccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !credentialMatches(account, hash) {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return account, nil
}

func (u *badgerUnit) LastTransaction(ctx context.Context, account *domain.Account) (*domain.Transaction, error) {
	var record transactionRecord
	err := u.store.db.View(func(txn *badger.Txn) error {
		tail, err := readTail(txn, account.ID())
		if err != nil {
			return err
		}
		if tail == 0 {
			return domain.ErrNotFound
		}
		return getJSON(txn, transactionKey(account.ID(), tail), &record)
	})
	if err != nil {
		return nil, fmt.Errorf("loading last transaction of account %d: %w", account.ID(), err)
	}
	return record.toDomain(account)
}

func (u *badgerUnit) Transactions(ctx context.Context, account *domain.Account, start, end time.Time) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction

	err := u.store.db.View(func(txn *badger.Txn) error {
		prefix := transactionPrefix(account.ID())
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record transactionRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}

			if !inWindow(record.Date, start, end) {
				continue
			}

			t, err := record.toDomain(account)
			if err != nil {
				return err
			}
			txns = append(txns, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing transactions of account %d: %w", account.ID(), err)
	}

	sortByDate(txns)
	return txns, nil
}

// Commit writes every staged record in one badger transaction. The tail of
// each touched account is read inside that transaction, so a concurrent commit
// either fails the seq check here or makes badger report a conflict.
func (u *badgerUnit) Commit(ctx context.Context) error {
	err := u.store.db.Update(func(txn *badger.Txn) error {
		for _, account := range u.accounts {
			if err := setJSON(txn, accountKey(account.ID()), newAccountRecord(account)); err != nil {
				return err
			}
		}

		for _, t := range u.transactions {
			accountID := t.Account().ID()

			tail, err := readTail(txn, accountID)
			if err != nil {
				return err
			}
			if t.Seq() != tail+1 {
				return fmt.Errorf("appending seq %d to account %d at tail %d: %w", t.Seq(), accountID, tail, domain.ErrConcurrentUpdate)
			}

			if tail > 0 {
				if err := linkPredecessor(txn, accountID, tail, t.Seq()); err != nil {
					return err
				}
			}

			if err := setJSON(txn, transactionKey(accountID, t.Seq()), newTransactionRecord(t)); err != nil {
				return err
			}

			var seq [8]byte
			binary.BigEndian.PutUint64(seq[:], t.Seq())
			if err := txn.Set(tailKey(accountID), seq[:]); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, badger.ErrConflict) {
		err = fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
	}
	if err != nil {
		return fmt.Errorf("committing ledger changes: %w", err)
	}

	u.accounts = nil
	u.transactions = nil
	return nil
}

func (u *badgerUnit) Rollback() error {
	u.accounts = nil
	u.transactions = nil
	return nil
}

func readTail(txn *badger.Txn, accountID int64) (uint64, error) {
	item, err := txn.Get(tailKey(accountID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var tail uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt tail of account %d", accountID)
		}
		tail = binary.BigEndian.Uint64(val)
		return nil
	})
	return tail, err
}

func linkPredecessor(txn *badger.Txn, accountID int64, seq, next uint64) error {
	key := transactionKey(accountID, seq)

	var record transactionRecord
	if err := getJSON(txn, key, &record); err != nil {
		return fmt.Errorf("loading predecessor %d of account %d: %w", seq, accountID, err)
	}
	record.Next = next
	return setJSON(txn, key, record)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return txn.Set(key, val)
}

// badgerLogger routes badger's internal logging through go-kit
type badgerLogger struct {
	logger log.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log(level.Error, format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log(level.Warn, format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log(level.Info, format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log(level.Debug, format, args...)
}

func (l badgerLogger) log(lvl func(log.Logger) log.Logger, format string, args ...any) {
	if l.logger == nil {
		return
	}
	lvl(l.logger).Log("component", "badger", "msg", fmt.Sprintf(format, args...))
}
