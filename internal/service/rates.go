package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/repository"
)

// RateService manages the currency pair table and serves task quotes.
type RateService struct {
	store   QueryStore
	catalog domain.Catalog
}

func NewRateService(store QueryStore, catalog domain.Catalog) *RateService {
	return &RateService{store: store, catalog: catalog}
}

type PairCmd struct {
	Base  string
	Quote string
	Rate  decimal.Decimal
}

func (s *RateService) CreatePair(ctx context.Context, cmd PairCmd) (models.CurrencyPair, error) {
	base, quote := strings.ToUpper(strings.TrimSpace(cmd.Base)), strings.ToUpper(strings.TrimSpace(cmd.Quote))
	if base == "" || quote == "" || base == quote {
		return models.CurrencyPair{}, errors.New("base and quote must be distinct currency codes")
	}
	if cmd.Rate.Sign() <= 0 {
		return models.CurrencyPair{}, errors.New("rate must be positive")
	}

	row, err := s.store.Queries().CreateCurrencyPair(ctx, repository.CreateCurrencyPairParams{
		ID:    repository.ToPgUUID(uuid.New()),
		Base:  base,
		Quote: quote,
		Rate:  cmd.Rate.String(),
	})
	if err != nil {
		return models.CurrencyPair{}, fmt.Errorf("create currency pair: %w", err)
	}
	return pairModel(row)
}

func (s *RateService) UpdatePair(ctx context.Context, id uuid.UUID, rate decimal.Decimal, active bool) (models.CurrencyPair, error) {
	if rate.Sign() <= 0 {
		return models.CurrencyPair{}, errors.New("rate must be positive")
	}
	affected, err := s.store.Queries().UpdateCurrencyPair(ctx, repository.UpdateCurrencyPairParams{
		Rate:     rate.String(),
		IsActive: active,
		ID:       repository.ToPgUUID(id),
	})
	if err != nil {
		return models.CurrencyPair{}, fmt.Errorf("update currency pair: %w", err)
	}
	if err := requireExactlyOne(affected, "update currency pair"); err != nil {
		return models.CurrencyPair{}, err
	}

	row, err := s.store.Queries().GetCurrencyPair(ctx, repository.ToPgUUID(id))
	if err != nil {
		return models.CurrencyPair{}, fmt.Errorf("get currency pair: %w", err)
	}
	return pairModel(row)
}

func (s *RateService) DeletePair(ctx context.Context, id uuid.UUID) error {
	affected, err := s.store.Queries().DeleteCurrencyPair(ctx, repository.ToPgUUID(id))
	if err != nil {
		return fmt.Errorf("delete currency pair: %w", err)
	}
	return requireExactlyOne(affected, "delete currency pair")
}

func (s *RateService) ListPairs(ctx context.Context, activeOnly bool) ([]models.CurrencyPair, error) {
	rows, err := s.store.Queries().ListCurrencyPairs(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list currency pairs: %w", err)
	}
	out := make([]models.CurrencyPair, 0, len(rows))
	for _, row := range rows {
		p, err := pairModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Quote is one proposed task: a drawn amount within the tier's exchange
// bounds plus the current rate for the requested pair.
type Quote struct {
	TierID       int             `json:"tier_id"`
	Pair         string          `json:"pair,omitempty"`
	Rate         decimal.Decimal `json:"rate"`
	AmountMicros int64           `json:"amount_micros"`
}

// QuoteTask draws a random exchange amount within the tier's bounds.
func (s *RateService) QuoteTask(ctx context.Context, tierID int, pair string) (Quote, error) {
	tier, ok := s.catalog.Tier(tierID)
	if !ok {
		return Quote{}, ErrTierNotFound
	}

	rate := decimal.NewFromInt(1)
	pairCode := ""
	if pair != "" {
		base, quote, ok := strings.Cut(strings.ToUpper(pair), "/")
		if !ok {
			return Quote{}, fmt.Errorf("malformed pair code %q", pair)
		}
		row, err := s.store.Queries().GetCurrencyPairByCode(ctx, repository.GetCurrencyPairByCodeParams{Base: base, Quote: quote})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Quote{}, ErrPairNotFound
			}
			return Quote{}, fmt.Errorf("get currency pair: %w", err)
		}
		rate, err = decimal.NewFromString(row.Rate)
		if err != nil {
			return Quote{}, fmt.Errorf("parse pair rate %q: %w", row.Rate, err)
		}
		pairCode = base + "/" + quote
	}

	return Quote{
		TierID:       tier.ID,
		Pair:         pairCode,
		Rate:         rate,
		AmountMicros: drawAmount(tier),
	}, nil
}
