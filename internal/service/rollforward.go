package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/tirasundara/ledger-service/internal/domain"
)

// rollForward advances the account's chain one day at a time until its tail
// is dated today, committing after every day so an interrupted run resumes
// from the last committed day. Rates for the whole gap are fetched once.
func (s *AccountService) rollForward(ctx context.Context, repo domain.Repository, logger log.Logger, account *domain.Account) (*domain.Transaction, error) {
	tail, err := repo.LastTransaction(ctx, account)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewDomainError(MsgNoTransaction)
	}
	if err != nil {
		return nil, fmt.Errorf("loading chain tail: %w", err)
	}

	now := s.now()
	today := domain.StartOfDay(now)
	tailDay := func() time.Time {
		return domain.StartOfDay(tail.Date().In(now.Location()))
	}

	var rates domain.InterestRates
	for tailDay().Before(today) {
		if rates == nil {
			rates, err = s.rates.InterestRates(ctx, tailDay(), today)
			if err != nil {
				level.Error(logger).Log("msg", "loading interest rates", "account", account.ID(), "err", err)
				return nil, domain.WrapDomainError(MsgRatesUnavailable, err)
			}
			if rates == nil {
				rates = domain.InterestRates{}
			}
		}

		// the rate published for the tail's day accrues overnight
		rate := rates.Rate(tailDay())
		produced, err := tail.GenerateNextDayBalance(rate, account.OverdraftTax(), now)
		if err != nil {
			return nil, err
		}

		for _, txn := range produced {
			if err := repo.AddTransaction(ctx, txn); err != nil {
				return nil, err
			}
		}
		if err := repo.Commit(ctx); err != nil {
			return nil, err
		}

		tail = produced[len(produced)-1]
		level.Debug(logger).Log("msg", "rolled forward", "account", account.ID(), "day", domain.DayKey(tailDay()), "rate", rate, "balance", tail.Balance())
	}

	return tail, nil
}
