package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvribeiro/loanbook/pkg/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence operations the ledger depends on.
//
// Composite commands (CreateLoan, ReplaceSchedule, SetLoanPaid, DeleteLoan,
// ApplyInstallmentStatus, DeleteCustomer) execute as a single transaction:
// either every row they touch is written or none is. They accept the
// customer's recomputed rollups from the caller so the denormalized fields
// are never stale outside the transaction that caused the change.
type Storage interface {
	// Customers
	CreateCustomer(c *models.Customer) error
	GetCustomer(id uuid.UUID) (*models.Customer, error)
	GetCustomerByName(name string) (*models.Customer, error)
	ListCustomers() ([]*models.Customer, error)
	UpdateCustomer(c *models.Customer) error
	UpdateCustomerNote(id uuid.UUID, note string) error
	UpdateCustomerAggregates(id uuid.UUID, agg *models.CustomerAggregates) error
	DeleteCustomer(id uuid.UUID) error

	// Loans
	CreateLoan(loan *models.Loan, schedule []*models.Installment, agg *models.CustomerAggregates) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	ListLoansForCustomer(customerID uuid.UUID) ([]*models.Loan, error)
	ListOutstandingLoans() ([]*models.Loan, error)
	ReplaceSchedule(loan *models.Loan, keep int, appended []*models.Installment, amount decimal.Decimal, agg *models.CustomerAggregates) error
	SetLoanPaid(loan *models.Loan, agg *models.CustomerAggregates) error
	DeleteLoan(loan *models.Loan, agg *models.CustomerAggregates) error
	MaxPrincipal(customerID uuid.UUID, excludeLoanID uuid.UUID) (decimal.Decimal, error)

	// Installments
	GetInstallment(id uuid.UUID) (*models.Installment, error)
	ListInstallments(loanID uuid.UUID) ([]*models.Installment, error)
	CountInstallments(loanID uuid.UUID, status models.InstallmentStatus) (int, error)
	ApplyInstallmentStatus(inst *models.Installment, loanStatus models.LoanStatus, customerID uuid.UUID, agg *models.CustomerAggregates) error

	// Overdue sweep primitives, each atomic on its own.
	MarkOverdueInstallments(asOf time.Time) (int64, error)
	MarkOverdueLoans() (int64, error)
	RefreshDelinquencyCounters() error

	// Users
	CreateUser(u *models.User) error
	GetUserByUsername(username string) (*models.User, error)

	// Cashbox
	CashBoxTotal() (decimal.Decimal, error)
	AddToCashBox(amount decimal.Decimal) (decimal.Decimal, error)

	Close() error
}
