package service

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/repository"
)

func counterFromRow(row repository.CounterProgress) domain.CounterProgress {
	return domain.CounterProgress{
		UserID:                   repository.FromPgUUID(row.UserID),
		TierID:                   int(row.TierID),
		BalanceMicros:            row.BalanceMicros,
		TotalEarningsMicros:      row.TotalEarningsMicros,
		CompletedTasks:           int(row.CompletedTasks),
		CumulativeCompletedTasks: int(row.CumulativeCompletedTasks),
		DailyCompletedOrders:     int(row.DailyCompletedOrders),
		LastOrderResetDate:       dayFromPg(row.LastOrderResetDate),
		IsActive:                 row.IsActive,
		CanWithdraw:              row.CanWithdraw,
	}
}

func counterUpdateParams(p domain.CounterProgress) repository.UpdateCounterParams {
	return repository.UpdateCounterParams{
		BalanceMicros:            p.BalanceMicros,
		TotalEarningsMicros:      p.TotalEarningsMicros,
		CompletedTasks:           int32(p.CompletedTasks),
		CumulativeCompletedTasks: int32(p.CumulativeCompletedTasks),
		DailyCompletedOrders:     int32(p.DailyCompletedOrders),
		LastOrderResetDate:       dayToPg(p.LastOrderResetDate),
		IsActive:                 p.IsActive,
		CanWithdraw:              p.CanWithdraw,
		UserID:                   repository.ToPgUUID(p.UserID),
		TierID:                   int32(p.TierID),
	}
}

func counterModel(row repository.CounterProgress) models.Counter {
	return models.Counter{
		UserID:                   repository.FromPgUUID(row.UserID),
		TierID:                   int(row.TierID),
		BalanceMicros:            row.BalanceMicros,
		TotalEarningsMicros:      row.TotalEarningsMicros,
		CompletedTasks:           int(row.CompletedTasks),
		CumulativeCompletedTasks: int(row.CumulativeCompletedTasks),
		DailyCompletedOrders:     int(row.DailyCompletedOrders),
		LastOrderResetDate:       dayFromPg(row.LastOrderResetDate).String(),
		IsActive:                 row.IsActive,
		CanWithdraw:              row.CanWithdraw,
		UpdatedAt:                row.UpdatedAt.Time,
	}
}

func counterModelFromDomain(p domain.CounterProgress) models.Counter {
	return models.Counter{
		UserID:                   p.UserID,
		TierID:                   p.TierID,
		BalanceMicros:            p.BalanceMicros,
		TotalEarningsMicros:      p.TotalEarningsMicros,
		CompletedTasks:           p.CompletedTasks,
		CumulativeCompletedTasks: p.CumulativeCompletedTasks,
		DailyCompletedOrders:     p.DailyCompletedOrders,
		LastOrderResetDate:       p.LastOrderResetDate.String(),
		IsActive:                 p.IsActive,
		CanWithdraw:              p.CanWithdraw,
	}
}

func transactionModel(row repository.Transaction) (models.Transaction, error) {
	rate := decimal.Zero
	if row.FxRate != "" {
		parsed, err := decimal.NewFromString(row.FxRate)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("parse fx rate %q: %w", row.FxRate, err)
		}
		rate = parsed
	}
	return models.Transaction{
		ID:           repository.FromPgUUID(row.ID),
		UserID:       repository.FromPgUUID(row.UserID),
		TierID:       int(row.TierID),
		Type:         row.Type,
		AmountMicros: row.AmountMicros,
		FxRate:       rate,
		Pair:         row.Pair,
		Status:       row.Status,
		Description:  row.Description,
		Metadata:     row.Metadata,
		ReferenceID:  row.ReferenceID,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}, nil
}

func userModel(row repository.User) models.User {
	return models.User{
		ID:                 repository.FromPgUUID(row.ID),
		Username:           row.Username,
		Email:              row.Email,
		Role:               row.Role,
		TotalBalanceMicros: row.TotalBalanceMicros,
		CreatedAt:          row.CreatedAt.Time,
	}
}

func pairModel(row repository.CurrencyPair) (models.CurrencyPair, error) {
	rate, err := decimal.NewFromString(row.Rate)
	if err != nil {
		return models.CurrencyPair{}, fmt.Errorf("parse pair rate %q: %w", row.Rate, err)
	}
	return models.CurrencyPair{
		ID:        repository.FromPgUUID(row.ID),
		Base:      row.Base,
		Quote:     row.Quote,
		Rate:      rate,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}, nil
}

func dayFromPg(d pgtype.Date) domain.Day {
	if !d.Valid {
		return ""
	}
	return domain.DayOf(d.Time)
}

func dayToPg(d domain.Day) pgtype.Date {
	return repository.ToPgDate(d.Time())
}
