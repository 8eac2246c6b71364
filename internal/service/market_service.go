package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

// Prediction status filters.
const (
	StatusAll     = ""
	StatusOpen    = "open"
	StatusSettled = "settled"
)

// PredictionFilter narrows ListPredictions. A zero Trader matches every
// trader.
type PredictionFilter struct {
	Status string
	Trader solana.PublicKey
	Limit  int
	Offset int
}

func (f PredictionFilter) match(p domain.Prediction) bool {
	if f.Status != StatusAll && p.Status() != f.Status {
		return false
	}
	if !f.Trader.IsZero() && p.Trader != f.Trader.String() {
		return false
	}
	return true
}

// MarketService serves decoded market state to the API and background
// services. Point reads go through the account cache when one is configured.
type MarketService struct {
	store     domain.AccountStore
	cache     domain.AccountCache
	programID solana.PublicKey
	config    solana.PublicKey
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	store domain.AccountStore,
	cache domain.AccountCache,
	programID solana.PublicKey,
	logger *slog.Logger,
) (*MarketService, error) {
	_, cfg, err := program.ConfigAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("market_service: derive config address: %w", err)
	}
	return &MarketService{
		store:     store,
		cache:     cache,
		programID: programID,
		config:    cfg,
		logger:    logger.With(slog.String("component", "market_service")),
	}, nil
}

// ProgramID returns the id of the options program.
func (s *MarketService) ProgramID() solana.PublicKey { return s.programID }

// Account retrieves an account, checking the cache first and falling back to
// the store on a miss.
func (s *MarketService) Account(ctx context.Context, addr solana.PublicKey) (domain.Account, error) {
	if s.cache != nil {
		if acct, err := s.cache.Get(ctx, addr); err == nil {
			return acct, nil
		}
	}

	acct, err := s.store.Get(ctx, addr)
	if err != nil {
		return domain.Account{}, fmt.Errorf("market_service: get account %s: %w", addr, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, acct); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("address", addr.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return acct, nil
}

// Config returns the market configuration together with the vault balance.
// It returns domain.ErrNotFound before the market is initialized.
func (s *MarketService) Config(ctx context.Context) (domain.MarketConfig, error) {
	acct, err := s.Account(ctx, s.config)
	if err != nil {
		return domain.MarketConfig{}, err
	}
	cfg, err := program.DecodeConfig(s.programID, acct)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("market_service: decode config: %w", err)
	}

	out := domain.MarketConfig{
		Address:           s.config.String(),
		Admin:             cfg.Admin.String(),
		AssetMint:         cfg.AssetMint.String(),
		Vault:             cfg.Vault.String(),
		TotalBalance:      cfg.TotalBalance,
		FeeRatePercent:    cfg.FeeRatePercent,
		PredictionCounter: cfg.PredictionCounter,
	}

	vault, err := s.Account(ctx, cfg.Vault)
	if err != nil {
		return domain.MarketConfig{}, err
	}
	ta, err := token.DecodeAccount(vault)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("market_service: decode vault: %w", err)
	}
	out.VaultBalance = ta.Amount
	return out, nil
}

// Prediction returns one prediction by id.
func (s *MarketService) Prediction(ctx context.Context, id uint64) (domain.Prediction, error) {
	addr, _, err := program.PredictionAddress(s.programID, id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("market_service: derive prediction %d: %w", id, err)
	}
	acct, err := s.Account(ctx, addr)
	if err != nil {
		return domain.Prediction{}, err
	}
	rec, err := program.DecodePrediction(s.programID, acct)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("market_service: decode prediction %d: %w", id, err)
	}
	return toPrediction(addr, rec), nil
}

// ListPredictions returns predictions in id order. Filtering happens after
// the store scan, so paging applies to the filtered result.
func (s *MarketService) ListPredictions(ctx context.Context, f PredictionFilter) ([]domain.Prediction, error) {
	opts := domain.ListOpts{}
	filtered := f.Status != StatusAll || !f.Trader.IsZero()
	if !filtered {
		opts.Limit, opts.Offset = f.Limit, f.Offset
	}

	accts, err := s.store.ListByOwner(ctx, s.programID, program.PredictionTag(), opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list predictions: %w", err)
	}

	out := make([]domain.Prediction, 0, len(accts))
	for _, acct := range accts {
		rec, err := program.DecodePrediction(s.programID, acct)
		if err != nil {
			s.logger.WarnContext(ctx, "market_service: skipping undecodable prediction",
				slog.String("address", acct.Address.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		p := toPrediction(acct.Address, rec)
		if f.match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filtered {
		out = page(out, f.Limit, f.Offset)
	}
	return out, nil
}

// DuePredictions returns open predictions whose expiry is at or before now.
func (s *MarketService) DuePredictions(ctx context.Context, now int64) ([]domain.Prediction, error) {
	open, err := s.ListPredictions(ctx, PredictionFilter{Status: StatusOpen})
	if err != nil {
		return nil, err
	}
	due := open[:0]
	for _, p := range open {
		if p.ExpiryTimestamp <= now {
			due = append(due, p)
		}
	}
	return due, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func toPrediction(addr solana.PublicKey, r program.PredictionRecord) domain.Prediction {
	return domain.Prediction{
		ID:              r.ID,
		Address:         addr.String(),
		Trader:          r.Trader.String(),
		Amount:          r.Amount,
		TokenMint:       r.TokenMint.String(),
		StartTimestamp:  r.StartTimestamp,
		ExpiryTimestamp: r.ExpiryTimestamp,
		StartPrice:      r.StartPrice,
		EndPrice:        r.EndPrice,
		Direction:       r.PredictionType.String(),
		Settled:         r.IsSettled,
		Winning:         r.IsWinning,
	}
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
