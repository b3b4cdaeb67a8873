package domain

const (
	TxTypeDeposit              = "deposit"
	TxTypeExchange             = "exchange"
	TxTypeCommission           = "commission"
	TxTypeWithdrawal           = "withdrawal"
	TxTypeCommissionWithdrawal = "commission_withdrawal"

	TxStatusPending   = "PENDING"
	TxStatusApproved  = "APPROVED"
	TxStatusDenied    = "DENIED"
	TxStatusFrozen    = "FROZEN"
	TxStatusCompleted = "COMPLETED"
	TxStatusReversed  = "REVERSED"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

// WithdrawalTypes are the transaction types settled against counter holdings.
var WithdrawalTypes = []string{TxTypeWithdrawal, TxTypeCommissionWithdrawal}
