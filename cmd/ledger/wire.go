package main

import (
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/auth"
	"github.com/tirasundara/ledger-service/internal/config"
	"github.com/tirasundara/ledger-service/internal/domain"
	"github.com/tirasundara/ledger-service/internal/rates"
	"github.com/tirasundara/ledger-service/internal/repository"
	"github.com/tirasundara/ledger-service/internal/service"
)

type store interface {
	domain.Store
	io.Closer
}

func openStore(cfg *config.Config, logger log.Logger) (store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return repository.NewMemoryStore(), nil
	case "badger":
		return repository.OpenBadgerStore(cfg.Store.Badger.Path, logger)
	case "postgres":
		return repository.OpenPostgresStore(cfg.Store.Postgres.DSN, cfg.Store.Postgres.Migrate, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newRateProvider(cfg *config.Config, logger log.Logger) (domain.InterestRateProvider, error) {
	var provider domain.InterestRateProvider

	switch cfg.Rates.Source {
	case "bcb":
		provider = rates.NewBCBProvider(cfg.Rates.BCB.URL, cfg.Rates.BCB.Timeout)
	case "csv":
		provider = rates.NewCSVProvider(cfg.Rates.CSV.Path, cfg.Rates.CSV.DateFormat, logger)
	case "flat":
		rate, err := decimal.NewFromString(cfg.Rates.Flat.Rate)
		if err != nil {
			return nil, fmt.Errorf("parsing flat rate: %w", err)
		}
		if provider, err = rates.NewFlatProvider(rate); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown rate source %q", cfg.Rates.Source)
	}

	if cfg.Rates.Cache.Size == 0 {
		return provider, nil
	}
	return rates.NewCachingProvider(provider, cfg.Rates.Cache.Size, nil)
}

// newAccountService wires the orchestrator. The returned closer releases the store.
func newAccountService(cfg *config.Config, logger log.Logger) (*service.AccountService, io.Closer, error) {
	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	provider, err := newRateProvider(cfg, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	svc := service.NewAccountService(
		st,
		provider,
		auth.NewArgon2Hasher(cfg.Auth.Salt),
		service.WithLogger(logger),
		service.WithLocation(cfg.Location()),
		service.WithMaxAttempts(cfg.Ledger.MaxAttempts),
	)
	return svc, st, nil
}
