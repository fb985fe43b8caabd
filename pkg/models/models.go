package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanPending LoanStatus = "Pending"
	LoanOverdue LoanStatus = "Overdue"
	LoanPaid    LoanStatus = "Paid"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "Pending"
	InstallmentOverdue InstallmentStatus = "Overdue"
	InstallmentPaid    InstallmentStatus = "Paid"
)

// CustomerAggregates are the denormalized rollups maintained per customer.
// They are adjusted by the ledger, never written independently, and must
// match a full recomputation over the customer's loans whenever no mutation
// is in flight.
type CustomerAggregates struct {
	TotalLoans          int             `json:"total_loans"`
	PendingLoans        int             `json:"pending_loans"` // loans not yet marked Paid
	PaidLoans           int             `json:"paid_loans"`
	OverdueLoans        int             `json:"overdue_loans"` // loans with >=1 Overdue installment
	TotalLent           decimal.Decimal `json:"total_lent"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
	OverdueInstallments int             `json:"overdue_installments"`
	LargestLoan         decimal.Decimal `json:"largest_loan"`
}

type Customer struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	ReferredBy   string    `json:"referred_by"`
	Note         string    `json:"note"`
	RegisteredAt time.Time `json:"registered_at"`
	CustomerAggregates
}

type Loan struct {
	ID               uuid.UUID       `json:"id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	Principal        decimal.Decimal `json:"principal"`
	Repayable        decimal.Decimal `json:"repayable"`
	InstallmentCount int             `json:"installment_count"`
	OriginationDate  time.Time       `json:"origination_date"`
	Status           LoanStatus      `json:"status"`
	Note             string          `json:"note"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ProfitShare is the profit realized by one paid installment of the loan:
// (repayable - principal) / installment count.
func (l *Loan) ProfitShare() decimal.Decimal {
	if l.InstallmentCount == 0 {
		return decimal.Zero
	}
	return l.Repayable.Sub(l.Principal).Div(decimal.NewFromInt(int64(l.InstallmentCount)))
}

type Installment struct {
	ID       uuid.UUID         `json:"id"`
	LoanID   uuid.UUID         `json:"loan_id"`
	Sequence int               `json:"sequence"` // 1..N, unique within the loan
	Amount   decimal.Decimal   `json:"amount"`
	DueDate  time.Time         `json:"due_date"` // date only, midnight UTC
	PaidDate *time.Time        `json:"paid_date,omitempty"`
	Status   InstallmentStatus `json:"status"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
