package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tirasundara/ledger-service/internal/domain"
	"github.com/tirasundara/ledger-service/internal/repository"
	"github.com/tirasundara/ledger-service/internal/service"
)

func TestConcurrentWithdrawals(t *testing.T) {
	f := newFixture(t, service.WithMaxAttempts(100))
	ctx := context.Background()
	account := f.open(t, "0", "0", 0, "100")

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Withdraw(ctx, account.ID(), decimal.NewFromInt(1), "AAA")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := f.service.GetBalance(ctx, account.ID())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100-workers)), "got %s", balance)
	assert.Len(t, f.chain(t, account), 1+workers)
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	f := newFixture(t, service.WithMaxAttempts(200))
	ctx := context.Background()
	a := f.open(t, "1000", "0", 0, "500")
	b := f.open(t, "1000", "0", 0, "500")

	const rounds = 10
	var wg sync.WaitGroup
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.service.Transfer(ctx, a.ID(), decimal.NewFromInt(7), "AAA", b.ID())
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.service.Transfer(ctx, b.ID(), decimal.NewFromInt(3), "AAA", a.ID())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balanceA, err := f.service.GetBalance(ctx, a.ID())
	require.NoError(t, err)
	balanceB, err := f.service.GetBalance(ctx, b.ID())
	require.NoError(t, err)

	assert.True(t, balanceA.Equal(decimal.NewFromInt(500-rounds*7+rounds*3)), "got %s", balanceA)
	assert.True(t, balanceB.Equal(decimal.NewFromInt(500+rounds*7-rounds*3)), "got %s", balanceB)
}

// conflictingStore fails every commit that stages a transaction
type conflictingStore struct {
	*repository.MemoryStore
	begins atomic.Int32
}

func (s *conflictingStore) Begin(ctx context.Context) (domain.Repository, error) {
	s.begins.Add(1)
	repo, err := s.MemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &conflictingUnit{Repository: repo}, nil
}

type conflictingUnit struct {
	domain.Repository
	staged bool
}

func (u *conflictingUnit) AddTransaction(ctx context.Context, txn *domain.Transaction) error {
	u.staged = true
	return u.Repository.AddTransaction(ctx, txn)
}

func (u *conflictingUnit) Commit(ctx context.Context) error {
	if u.staged {
		return domain.ErrConcurrentUpdate
	}
	return u.Repository.Commit(ctx)
}

func TestRetryExhaustion(t *testing.T) {
	memory := repository.NewMemoryStore()
	hasher := MockHasher{}
	clock := service.WithClock(func() time.Time { return testNow })

	account, err := service.NewAccountService(memory, &MockRateProvider{}, hasher, clock).
		OpenAccount(context.Background(), "Jane", decimal.Zero, decimal.Zero, "AAA", testNow, decimal.NewFromInt(10))
	require.NoError(t, err)

	store := &conflictingStore{MemoryStore: memory}
	svc := service.NewAccountService(store, &MockRateProvider{}, hasher, clock, service.WithMaxAttempts(4))

	_, err = svc.Deposit(context.Background(), account.ID(), decimal.NewFromInt(1))
	requireDomainError(t, err, service.MsgConcurrentUpdate)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, int32(4), store.begins.Load())
}

// crashingStore fails the nth commit with an infrastructure error
type crashingStore struct {
	*repository.MemoryStore
	commits atomic.Int32
	failAt  int32
}

func (s *crashingStore) Begin(ctx context.Context) (domain.Repository, error) {
	repo, err := s.MemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &crashingUnit{Repository: repo, store: s}, nil
}

type crashingUnit struct {
	domain.Repository
	store *crashingStore
}

var errDiskFull = errors.New("disk full")

func (u *crashingUnit) Commit(ctx context.Context) error {
	if u.store.commits.Add(1) == u.store.failAt {
		return errDiskFull
	}
	return u.Repository.Commit(ctx)
}

func TestRollForwardResumesFromLastCommittedDay(t *testing.T) {
	memory := repository.NewMemoryStore()
	hasher := MockHasher{}
	rates := &MockRateProvider{rates: flatRates("0.01", domain.StartOfDay(testNow).AddDate(0, 0, -5), 5)}
	opts := []service.Option{service.WithClock(func() time.Time { return testNow }), service.WithLocation(time.UTC)}

	account, err := service.NewAccountService(memory, rates, hasher, opts...).
		OpenAccount(context.Background(), "Jane", decimal.Zero, decimal.Zero, "AAA", testNow.AddDate(0, 0, -5), decimal.NewFromInt(100))
	require.NoError(t, err)

	// the third day's commit fails
	store := &crashingStore{MemoryStore: memory, failAt: 3}
	svc := service.NewAccountService(store, rates, hasher, opts...)

	_, err = svc.GetBalance(context.Background(), account.ID())
	requireDomainError(t, err, service.MsgStorageFailure)
	assert.ErrorIs(t, err, errDiskFull)

	f := &fixture{store: memory}
	assert.Len(t, f.chain(t, account), 1+2*2, "two days were committed before the failure")

	balance, err := svc.GetBalance(context.Background(), account.ID())
	require.NoError(t, err)
	assert.Len(t, f.chain(t, account), 1+5*2)

	expected := decimal.NewFromInt(100)
	for range 5 {
		expected = domain.RoundMoney(expected.Add(expected.Mul(decimal.RequireFromString("0.01"))))
	}
	assert.True(t, balance.Equal(expected), "expected %s, got %s", expected, balance)
}
