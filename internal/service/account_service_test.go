package service_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tirasundara/ledger-service/internal/domain"
	"github.com/tirasundara/ledger-service/internal/repository"
	"github.com/tirasundara/ledger-service/internal/service"
)

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

type MockHasher struct{}

func (MockHasher) Hash(password string) string {
	return "hashed:" + password
}

type MockRateProvider struct {
	mu    sync.Mutex
	rates domain.InterestRates
	err   error
	calls int
}

func (m *MockRateProvider) InterestRates(ctx context.Context, start, end time.Time) (domain.InterestRates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(domain.InterestRates)
	for k, v := range m.rates {
		out[k] = v
	}
	return out, nil
}

func flatRates(rate string, from time.Time, days int) domain.InterestRates {
	rates := make(domain.InterestRates)
	for i := 0; i <= days; i++ {
		rates.Set(from.AddDate(0, 0, i), decimal.RequireFromString(rate))
	}
	return rates
}

type fixture struct {
	store   *repository.MemoryStore
	rates   *MockRateProvider
	service *service.AccountService
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		rates: &MockRateProvider{rates: domain.InterestRates{}},
	}
	opts = append([]service.Option{
		service.WithClock(func() time.Time { return testNow }),
		service.WithLocation(time.UTC),
	}, opts...)
	f.service = service.NewAccountService(f.store, f.rates, MockHasher{}, opts...)
	return f
}

func (f *fixture) open(t *testing.T, overdraftLimit, overdraftTax string, daysAgo int, deposit string) *domain.Account {
	t.Helper()
	account, err := f.service.OpenAccount(context.Background(), "Jane Doe",
		decimal.RequireFromString(overdraftLimit), decimal.RequireFromString(overdraftTax),
		"AAA", testNow.AddDate(0, 0, -daysAgo), decimal.RequireFromString(deposit))
	require.NoError(t, err)
	return account
}

func (f *fixture) chain(t *testing.T, account *domain.Account) []*domain.Transaction {
	t.Helper()
	ctx := context.Background()
	repo, err := f.store.Begin(ctx)
	require.NoError(t, err)
	txns, err := repo.Transactions(ctx, account, time.Time{}, testNow.AddDate(1, 0, 0))
	require.NoError(t, err)
	return txns
}

func requireDomainError(t *testing.T, err error, message string) *domain.DomainError {
	t.Helper()
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	if message != "" {
		assert.Equal(t, message, domainErr.Message)
	}
	return domainErr
}

func TestOpenAccount_SameDayBalance(t *testing.T) {
	f := newFixture(t)
	f.rates.rates = flatRates("0.01", testNow.AddDate(0, 0, -1), 2)

	account := f.open(t, "0", "0", 0, "250.75")

	balance, err := f.service.GetBalance(context.Background(), account.ID())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("250.75")), "got %s", balance)
	assert.Len(t, f.chain(t, account), 1)
	assert.Equal(t, 0, f.rates.calls)
}

func TestOpenAccount_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.OpenAccount(context.Background(), "", decimal.NewFromInt(-1), decimal.Zero,
		"x", testNow, decimal.Zero)
	domainErr := requireDomainError(t, err, "")
	assert.True(t, domainErr.IsValidation())
	assert.GreaterOrEqual(t, len(domainErr.Errors), 3)
}

func TestGetBalance_RollsForwardWithTailDayRate(t *testing.T) {
	f := newFixture(t)
	openedOn := domain.StartOfDay(testNow).AddDate(0, 0, -2)
	f.rates.rates = domain.InterestRates{
		domain.DayKey(openedOn.AddDate(0, 0, 1)): decimal.RequireFromString("0.005"),
	}

	account := f.open(t, "0", "0", 2, "10")

	balance, err := f.service.GetBalance(context.Background(), account.ID())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("10.05")), "got %s", balance)

	chain := f.chain(t, account)
	require.Len(t, chain, 4)
	assert.Equal(t, domain.Balance, chain[1].Type())
	assert.Equal(t, domain.Balance, chain[2].Type())
	assert.Equal(t, domain.Interest, chain[3].Type())
	assert.Equal(t, 1, f.rates.calls, "rates are fetched once per gap")

	// a second read has nothing left to roll forward
	_, err = f.service.GetBalance(context.Background(), account.ID())
	require.NoError(t, err)
	assert.Len(t, f.chain(t, account), 4)
	assert.Equal(t, 1, f.rates.calls)
}

func TestGetBalance_Fees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openedAt := testNow.AddDate(0, 0, -2)
	f.rates.rates = flatRates("0.005", domain.StartOfDay(openedAt), 0)

	account := f.open(t, "100", "0.012", 2, "0")

	// push the opening day negative directly through the domain
	repo, err := f.store.Begin(ctx)
	require.NoError(t, err)
	tail, err := repo.LastTransaction(ctx, account)
	require.NoError(t, err)
	w, err := tail.Withdraw(decimal.NewFromInt(10), openedAt.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.AddTransaction(ctx, w))
	require.NoError(t, repo.Commit(ctx))

	balance, err := f.service.GetBalance(ctx, account.ID())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("-10.12")), "got %s", balance)

	chain := f.chain(t, account)
	// opening, withdraw, balance+fees, balance
	require.Len(t, chain, 5)
	assert.Equal(t, domain.Fees, chain[3].Type())
}

func TestGetBalance_OpenedOverdrawn(t *testing.T) {
	f := newFixture(t)
	f.rates.rates = flatRates("0.0005", domain.StartOfDay(testNow).AddDate(0, 0, -7), 7)

	account := f.open(t, "0", "0.0011", 7, "-1000")

	balance, err := f.service.GetBalance(context.Background(), account.ID())
	require.NoError(t, err)
	assert.True(t, balance.LessThan(decimal.NewFromInt(-1000)), "got %s", balance)

	fees := 0
	for _, txn := range f.chain(t, account) {
		if txn.Type() == domain.Fees {
			fees++
		}
	}
	assert.Equal(t, 7, fees)
}

func TestGetBalance_ZeroBalance(t *testing.T) {
	f := newFixture(t)
	f.rates.rates = flatRates("0.005", testNow.AddDate(0, 0, -1), 1)

	account := f.open(t, "0", "0", 1, "0")

	balance, err := f.service.GetBalance(context.Background(), account.ID())
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.Len(t, f.chain(t, account), 2)
}

func TestGetBalance_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetBalance(context.Background(), 42)
	domainErr := requireDomainError(t, err, service.MsgInvalidAccount)
	assert.False(t, domainErr.IsValidation())
}

func TestGetBalance_RateProviderFailure(t *testing.T) {
	f := newFixture(t)
	account := f.open(t, "0", "0", 3, "10")

	upstream := errors.New("upstream unavailable")
	f.rates.err = upstream

	_, err := f.service.GetBalance(context.Background(), account.ID())
	requireDomainError(t, err, service.MsgRatesUnavailable)
	assert.ErrorIs(t, err, upstream)
	assert.Len(t, f.chain(t, account), 1)
}

func TestScenario_OverdraftFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rates.rates = flatRates("0.001", domain.StartOfDay(testNow).AddDate(0, 0, -7), 7)

	account := f.open(t, "10", "0.012", 7, "1000")

	balance, err := f.service.GetBalance(ctx, account.ID())
	require.NoError(t, err)
	assert.True(t, balance.GreaterThan(decimal.NewFromInt(1000)), "got %s", balance)
	assert.Len(t, f.chain(t, account), 1+7*2)

	after, err := f.service.Withdraw(ctx, account.ID(), decimal.NewFromInt(200), "AAA")
	require.NoError(t, err)
	assert.True(t, after.Equal(balance.Sub(decimal.NewFromInt(200))), "got %s", after)

	floor, err := f.service.Withdraw(ctx, account.ID(), after.Add(decimal.NewFromInt(10)), "AAA")
	require.NoError(t, err)
	assert.True(t, floor.Equal(decimal.NewFromInt(-10)), "got %s", floor)

	_, err = f.service.Withdraw(ctx, account.ID(), decimal.NewFromInt(1), "AAA")
	domainErr := requireDomainError(t, err, "")
	assert.True(t, domainErr.IsValidation())

	balance, err = f.service.GetBalance(ctx, account.ID())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(-10)))
}

func TestScenario_Transfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.open(t, "90", "0", 0, "100")
	b := f.open(t, "90", "0", 0, "100")

	result, err := f.service.Transfer(ctx, a.ID(), decimal.NewFromInt(50), "AAA", b.ID())
	require.NoError(t, err)
	assert.True(t, result.SourceBalance.Equal(decimal.NewFromInt(50)))
	assert.True(t, result.DestinationBalance.Equal(decimal.NewFromInt(150)))

	chainA, chainB := f.chain(t, a), f.chain(t, b)
	lastA, lastB := chainA[len(chainA)-1], chainB[len(chainB)-1]
	assert.Equal(t, domain.TransferOut, lastA.Type())
	assert.Equal(t, domain.TransferIn, lastB.Type())
	assert.Equal(t, strconv.FormatInt(b.ID(), 10), lastA.Reference())
	assert.Equal(t, strconv.FormatInt(a.ID(), 10), lastB.Reference())

	// in reverse, the lower id is appended first
	result, err = f.service.Transfer(ctx, b.ID(), decimal.NewFromInt(150), "AAA", a.ID())
	require.NoError(t, err)
	assert.True(t, result.SourceBalance.IsZero())
	assert.True(t, result.DestinationBalance.Equal(decimal.NewFromInt(200)))
}

func TestTransfer_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.open(t, "90", "0", 0, "100")
	b := f.open(t, "90", "0", 0, "100")

	_, err := f.service.Transfer(ctx, a.ID(), decimal.NewFromInt(10), "AAA", a.ID())
	requireDomainError(t, err, "transfer failed")

	_, err = f.service.Transfer(ctx, a.ID(), decimal.NewFromInt(191), "AAA", b.ID())
	requireDomainError(t, err, "transfer failed")

	_, err = f.service.Transfer(ctx, a.ID(), decimal.NewFromInt(10), "AAA", 999)
	requireDomainError(t, err, service.MsgInvalidDestination)

	_, err = f.service.Transfer(ctx, a.ID(), decimal.NewFromInt(10), "BBB", b.ID())
	requireDomainError(t, err, service.MsgInvalidCredentials)

	balance, err := f.service.GetBalance(ctx, b.ID())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.open(t, "0", "0", 0, "0")

	found, err := f.service.Authorize(ctx, account.ID(), "AAA")
	require.NoError(t, err)
	assert.True(t, found.Equal(account))

	_, wrongPassword := f.service.Authorize(ctx, account.ID(), "BBB")
	_, wrongID := f.service.Authorize(ctx, account.ID()+100, "AAA")

	requireDomainError(t, wrongPassword, service.MsgInvalidCredentials)
	requireDomainError(t, wrongID, service.MsgInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), wrongID.Error())

	_, err = f.service.Authorize(ctx, account.ID(), "A")
	domainErr := requireDomainError(t, err, "")
	assert.True(t, domainErr.IsValidation())
}

func TestDeposit_NoPassword(t *testing.T) {
	f := newFixture(t)
	account := f.open(t, "0", "0", 0, "5")

	balance, err := f.service.Deposit(context.Background(), account.ID(), decimal.RequireFromString("7.255"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("12.26")), "got %s", balance)

	_, err = f.service.Deposit(context.Background(), account.ID(), decimal.Zero)
	requireDomainError(t, err, "deposit failed")

	_, err = f.service.Deposit(context.Background(), 999, decimal.NewFromInt(1))
	requireDomainError(t, err, service.MsgInvalidAccount)
}

func TestGetStatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rates.rates = flatRates("0.001", domain.StartOfDay(testNow).AddDate(0, 0, -3), 3)

	account := f.open(t, "0", "0", 3, "100")

	start := testNow.AddDate(0, 0, -1)
	txns, err := f.service.GetStatement(ctx, account.ID(), start, nil)
	require.NoError(t, err)

	// yesterday's and today's balance/interest pairs
	require.Len(t, txns, 4)
	for i := 1; i < len(txns); i++ {
		assert.False(t, txns[i].Date().Before(txns[i-1].Date()))
	}

	end := testNow.AddDate(0, 0, -2)
	txns, err = f.service.GetStatement(ctx, account.ID(), testNow.AddDate(0, 0, -3), &end)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, domain.Opening, txns[0].Type())

	_, err = f.service.GetStatement(ctx, account.ID(), testNow.AddDate(0, 0, -101), nil)
	domainErr := requireDomainError(t, err, "invalid statement filter")
	assert.True(t, domainErr.IsValidation())
}
