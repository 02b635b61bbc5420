package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tirasundara/ledger-service/internal/domain"
)

// MemoryStore keeps the ledger in process memory. Commits are checked
// against each account's tail under a single mutex.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[int64]*domain.Account
	transactions map[int64][]*domain.Transaction
	lastID       int64
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[int64]*domain.Account),
		transactions: make(map[int64][]*domain.Transaction),
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (domain.Repository, error) {
	return &memoryUnit{store: s}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) nextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID
}

type memoryUnit struct {
	store        *MemoryStore
	accounts     []*domain.Account
	transactions []*domain.Transaction
}

func (u *memoryUnit) AddAccount(ctx context.Context, account *domain.Account) error {
	if err := account.AssignID(u.store.nextID()); err != nil {
		return fmt.Errorf("adding account: %w", err)
	}
	u.accounts = append(u.accounts, account)
	return nil
}

func (u *memoryUnit) AddTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.Account().IsTransient() {
		return fmt.Errorf("adding transaction: account has no identity")
	}
	if err := txn.AssignID(u.store.nextID()); err != nil {
		return fmt.Errorf("adding transaction: %w", err)
	}
	u.transactions = append(u.transactions, txn)
	return nil
}

func (u *memoryUnit) AccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()

	account, ok := u.store.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return account, nil
}

func (u *memoryUnit) AccountByIDAndCredentialHash(ctx context.Context, id int64, hash string) (*domain.Account, error) {
	account, err := u.AccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !credentialMatches(account, hash) {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return account, nil
}

func (u *memoryUnit) LastTransaction(ctx context.Context, account *domain.Account) (*domain.Transaction, error) {
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()

	chain := u.store.transactions[account.ID()]
	if len(chain) == 0 {
		return nil, fmt.Errorf("last transaction of account %d: %w", account.ID(), domain.ErrNotFound)
	}
	return cloneTransaction(chain[len(chain)-1], account), nil
}

func (u *memoryUnit) Transactions(ctx context.Context, account *domain.Account, start, end time.Time) ([]*domain.Transaction, error) {
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()

	var txns []*domain.Transaction
	for _, txn := range u.store.transactions[account.ID()] {
		if inWindow(txn.Date(), start, end) {
			txns = append(txns, cloneTransaction(txn, account))
		}
	}

	sortByDate(txns)
	return txns, nil
}

func (u *memoryUnit) Commit(ctx context.Context) error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate every staged append before applying any of them
	tails := make(map[int64]uint64)
	for _, txn := range u.transactions {
		id := txn.Account().ID()
		tail, ok := tails[id]
		if !ok {
			tail = uint64(len(s.transactions[id]))
		}
		if txn.Seq() != tail+1 {
			return fmt.Errorf("appending seq %d to account %d at tail %d: %w", txn.Seq(), id, tail, domain.ErrConcurrentUpdate)
		}
		tails[id] = txn.Seq()
	}

	for _, account := range u.accounts {
		s.accounts[account.ID()] = account
	}
	for _, txn := range u.transactions {
		id := txn.Account().ID()
		chain := s.transactions[id]
		if n := len(chain); n > 0 {
			chain[n-1] = withNext(chain[n-1], txn.Seq())
		}
		s.transactions[id] = append(chain, cloneTransaction(txn, txn.Account()))
	}

	u.accounts = nil
	u.transactions = nil
	return nil
}

func (u *memoryUnit) Rollback() error {
	u.accounts = nil
	u.transactions = nil
	return nil
}

// cloneTransaction hands out a copy so callers deriving successors never touch stored records
func cloneTransaction(txn *domain.Transaction, account *domain.Account) *domain.Transaction {
	next, _ := txn.Next()
	return domain.RestoreTransaction(txn.ID(), account, txn.Seq(), txn.Date(), txn.Type(),
		txn.Value(), txn.Balance(), txn.Reference(), next)
}

func withNext(txn *domain.Transaction, next uint64) *domain.Transaction {
	return domain.RestoreTransaction(txn.ID(), txn.Account(), txn.Seq(), txn.Date(), txn.Type(),
		txn.Value(), txn.Balance(), txn.Reference(), next)
}

func inWindow(date, start, end time.Time) bool {
	return !date.Before(start) && date.Before(end)
}

func sortByDate(txns []*domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if txns[i].Date().Equal(txns[j].Date()) {
			return txns[i].Seq() < txns[j].Seq()
		}
		return txns[i].Date().Before(txns[j].Date())
	})
}
