package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/repository"
)

// TransactionService serves read access to a user's transaction history.
type TransactionService struct {
	store QueryStore
}

func NewTransactionService(store QueryStore) *TransactionService {
	return &TransactionService{store: store}
}

func (s *TransactionService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.store.Queries().ListUserTransactions(ctx, repository.ListUserTransactionsParams{
		UserID: repository.ToPgUUID(userID),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := transactionModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
