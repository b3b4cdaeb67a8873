package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/domain"
)

// ResetService performs the daily rollover sweep. Write paths already roll
// stale rows over lazily; the sweep keeps rarely touched rows from reading
// stale for long.
type ResetService struct {
	store QueryStore
}

func NewResetService(store QueryStore) *ResetService {
	return &ResetService{store: store}
}

// RolloverAll zeroes daily order counters carrying a previous day's marker.
// Returns the number of rows repaired. Safe to trigger at any time.
func (s *ResetService) RolloverAll(ctx context.Context) (int64, error) {
	today := domain.Today()
	rows, err := s.store.Queries().RolloverStaleCounters(ctx, dayToPg(today))
	if err != nil {
		return 0, fmt.Errorf("roll over stale counters: %w", err)
	}
	if rows > 0 {
		zap.L().Info("daily counters rolled over", zap.Int64("rows", rows), zap.String("day", today.String()))
	}
	return rows, nil
}
