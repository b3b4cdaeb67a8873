package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/observability"
	"github.com/kunledawodu/counterex/internal/repository"
)

// IntegrityReport summarizes one sweep over the counter table.
type IntegrityReport struct {
	NegativeCounters int64 `json:"negative_counters"`
	DriftedUsers     int   `json:"drifted_users"`
}

func (r IntegrityReport) Clean() bool {
	return r.NegativeCounters == 0 && r.DriftedUsers == 0
}

// IntegrityService audits the counter table for states the locking discipline
// should make impossible: negative holdings and aggregate mirror drift. It
// reports and alarms, it never repairs.
type IntegrityService struct {
	store QueryStore
}

func NewIntegrityService(store QueryStore) *IntegrityService {
	return &IntegrityService{store: store}
}

func (s *IntegrityService) Check(ctx context.Context) (IntegrityReport, error) {
	q := s.store.Queries()

	negatives, err := q.CountNegativeCounters(ctx)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("count negative counters: %w", err)
	}
	drifted, err := q.GetAggregateDrift(ctx)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("check aggregate drift: %w", err)
	}

	if negatives > 0 {
		observability.IncrementIntegrityViolation("negative_holdings")
		zap.L().Error("counters with negative holdings detected", zap.Int64("count", negatives))
	}
	for _, row := range drifted {
		observability.IncrementIntegrityViolation("aggregate_drift")
		zap.L().Error("aggregate balance mirror drifted",
			zap.String("user_id", repository.FromPgUUID(row.UserID).String()),
			zap.Int64("mirror_micros", row.TotalBalanceMicros),
			zap.Int64("counter_sum_micros", row.CounterSumMicros))
	}

	return IntegrityReport{
		NegativeCounters: negatives,
		DriftedUsers:     len(drifted),
	}, nil
}
