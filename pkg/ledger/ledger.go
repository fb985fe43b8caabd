package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvribeiro/loanbook/pkg/models"
	"github.com/mvribeiro/loanbook/pkg/store"
)

// Ledger handles the business logic for customers, loans and installments:
// schedule generation, the status state machine, aggregate maintenance and
// the overdue sweep.
type Ledger struct {
	storage store.Storage
	recalc  *Recalculator
	sweeper *Sweeper
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, logger *zap.Logger) *Ledger {
	return &Ledger{
		storage: s,
		recalc:  NewRecalculator(s),
		sweeper: NewSweeper(s, logger),
		logger:  logger,
		now:     time.Now,
	}
}

func mapStoreErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	}
	return storeErr(op, err)
}

// --- customers ---

// CreateCustomer registers a customer with zeroed aggregates. Customer
// names are unique; a duplicate is a conflict.
func (l *Ledger) CreateCustomer(name, phone, address, referredBy, note string) (*models.Customer, error) {
	if name == "" {
		return nil, validationf("customer name is required")
	}
	if _, err := l.storage.GetCustomerByName(name); err == nil {
		return nil, conflictf("a customer named %q already exists", name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, storeErr("check customer name", err)
	}

	customer := &models.Customer{
		ID:           uuid.New(),
		Name:         name,
		Phone:        phone,
		Address:      address,
		ReferredBy:   referredBy,
		Note:         note,
		RegisteredAt: l.now(),
		CustomerAggregates: models.CustomerAggregates{
			TotalLent:   decimal.Zero,
			TotalProfit: decimal.Zero,
			LargestLoan: decimal.Zero,
		},
	}
	if err := l.storage.CreateCustomer(customer); err != nil {
		return nil, storeErr("create customer", err)
	}
	return customer, nil
}

func (l *Ledger) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	customer, err := l.storage.GetCustomer(id)
	if err != nil {
		return nil, mapStoreErr("get customer", err)
	}
	return customer, nil
}

func (l *Ledger) ListCustomers() ([]*models.Customer, error) {
	customers, err := l.storage.ListCustomers()
	if err != nil {
		return nil, storeErr("list customers", err)
	}
	return customers, nil
}

// GetCustomerAggregates returns the customer's rollups derived from a full
// recomputation over their loans and installments, bypassing the stored
// denormalized fields.
func (l *Ledger) GetCustomerAggregates(id uuid.UUID) (*models.CustomerAggregates, error) {
	if _, err := l.storage.GetCustomer(id); err != nil {
		return nil, mapStoreErr("get customer", err)
	}
	agg, err := l.recalc.Recompute(id)
	if err != nil {
		return nil, storeErr("recompute aggregates", err)
	}
	return agg, nil
}

func (l *Ledger) UpdateCustomer(id uuid.UUID, name, phone, address, referredBy, note string) (*models.Customer, error) {
	if name == "" {
		return nil, validationf("customer name is required")
	}
	customer, err := l.storage.GetCustomer(id)
	if err != nil {
		return nil, mapStoreErr("get customer", err)
	}
	if name != customer.Name {
		if _, err := l.storage.GetCustomerByName(name); err == nil {
			return nil, conflictf("a customer named %q already exists", name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, storeErr("check customer name", err)
		}
	}
	customer.Name = name
	customer.Phone = phone
	customer.Address = address
	customer.ReferredBy = referredBy
	customer.Note = note
	if err := l.storage.UpdateCustomer(customer); err != nil {
		return nil, mapStoreErr("update customer", err)
	}
	return customer, nil
}

func (l *Ledger) UpdateCustomerNote(id uuid.UUID, note string) error {
	if err := l.storage.UpdateCustomerNote(id, note); err != nil {
		return mapStoreErr("update customer note", err)
	}
	return nil
}

// DeleteCustomer removes the customer and cascades to all their loans and
// installments.
func (l *Ledger) DeleteCustomer(id uuid.UUID) error {
	if err := l.storage.DeleteCustomer(id); err != nil {
		return mapStoreErr("delete customer", err)
	}
	l.logger.Info("customer deleted", zap.String("customer_id", id.String()))
	return nil
}

// --- loans ---

func validateLoanFields(principal, repayable decimal.Decimal, count int, origination time.Time) error {
	if !principal.IsPositive() {
		return validationf("principal must be positive")
	}
	if !repayable.IsPositive() {
		return validationf("repayable amount must be positive")
	}
	if count < 1 {
		return validationf("installment count must be at least 1")
	}
	if origination.IsZero() {
		return validationf("origination date is required")
	}
	return nil
}

// CreateLoan persists a loan together with its generated schedule and the
// customer's recomputed aggregates as one atomic unit. Installments already
// past due at creation are born Overdue and the loan status reflects that.
func (l *Ledger) CreateLoan(customerID uuid.UUID, principal, repayable decimal.Decimal, count int, origination time.Time, note string) (*models.Loan, error) {
	if err := validateLoanFields(principal, repayable, count, origination); err != nil {
		return nil, err
	}
	if _, err := l.storage.GetCustomer(customerID); err != nil {
		return nil, mapStoreErr("get customer", err)
	}

	now := l.now()
	loan := &models.Loan{
		ID:               uuid.New(),
		CustomerID:       customerID,
		Principal:        principal,
		Repayable:        repayable,
		InstallmentCount: count,
		OriginationDate:  dateOnly(origination),
		Status:           models.LoanPending,
		Note:             note,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	schedule := GenerateSchedule(loan.ID, repayable, count, origination, now)
	loan.Status = deriveLoanStatus(schedule)

	overdue := 0
	for _, inst := range schedule {
		if inst.Status == models.InstallmentOverdue {
			overdue++
		}
	}

	tallies, err := l.recalc.tallies(customerID)
	if err != nil {
		return nil, storeErr("load customer loans", err)
	}
	tallies = append(tallies, loanTally{loan: loan, paid: 0, overdue: overdue})

	if err := l.storage.CreateLoan(loan, schedule, aggregate(tallies)); err != nil {
		return nil, storeErr("create loan", err)
	}
	l.logger.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.Int("installments", count),
	)
	return loan, nil
}

func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, mapStoreErr("get loan", err)
	}
	return loan, nil
}

func (l *Ledger) ListOutstandingLoans() ([]*models.Loan, error) {
	loans, err := l.storage.ListOutstandingLoans()
	if err != nil {
		return nil, storeErr("list loans", err)
	}
	return loans, nil
}

func (l *Ledger) ListInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, mapStoreErr("get loan", err)
	}
	installments, err := l.storage.ListInstallments(loanID)
	if err != nil {
		return nil, storeErr("list installments", err)
	}
	return installments, nil
}

// EditLoanParams are the editable loan fields. The owning customer cannot
// be reassigned.
type EditLoanParams struct {
	Principal        decimal.Decimal
	Repayable        decimal.Decimal
	InstallmentCount int
	OriginationDate  time.Time
	Note             string
}

// EditLoan rewrites the loan and reshapes its schedule: a smaller count
// removes trailing installments by sequence number regardless of their
// status, a larger one appends installments continuing the monthly cadence
// from the origination date. Every surviving installment's amount is
// overwritten to repayable/count, paid ones included.
func (l *Ledger) EditLoan(loanID uuid.UUID, params EditLoanParams) (*models.Loan, error) {
	if err := validateLoanFields(params.Principal, params.Repayable, params.InstallmentCount, params.OriginationDate); err != nil {
		return nil, err
	}
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, mapStoreErr("get loan", err)
	}
	existing, err := l.storage.ListInstallments(loanID)
	if err != nil {
		return nil, storeErr("list installments", err)
	}

	oldCount := len(existing)
	newCount := params.InstallmentCount
	amount := installmentAmount(params.Repayable, newCount)

	loan.Principal = params.Principal
	loan.Repayable = params.Repayable
	loan.InstallmentCount = newCount
	loan.OriginationDate = dateOnly(params.OriginationDate)
	loan.Note = params.Note
	loan.UpdatedAt = l.now()

	keep := oldCount
	if newCount < oldCount {
		keep = newCount
	}
	var appended []*models.Installment
	if newCount > oldCount {
		appended = extendSchedule(loan, oldCount, newCount, amount)
	}

	// Tally the post-edit schedule: surviving installments keep their
	// status, appended ones are Pending.
	paid, overdue := 0, 0
	kept := existing[:keep]
	for _, inst := range kept {
		switch inst.Status {
		case models.InstallmentPaid:
			paid++
		case models.InstallmentOverdue:
			overdue++
		}
	}
	if loan.Status != models.LoanPaid {
		if overdue > 0 {
			loan.Status = models.LoanOverdue
		} else {
			loan.Status = models.LoanPending
		}
	}

	tallies, err := l.recalc.tallies(loan.CustomerID)
	if err != nil {
		return nil, storeErr("load customer loans", err)
	}
	for i := range tallies {
		if tallies[i].loan.ID == loan.ID {
			tallies[i] = loanTally{loan: loan, paid: paid, overdue: overdue}
		}
	}

	if err := l.storage.ReplaceSchedule(loan, keep, appended, amount, aggregate(tallies)); err != nil {
		return nil, mapStoreErr("replace schedule", err)
	}
	l.logger.Info("loan edited",
		zap.String("loan_id", loan.ID.String()),
		zap.Int("old_count", oldCount),
		zap.Int("new_count", newCount),
	)
	return loan, nil
}

// DeleteLoan removes the loan and its installments, subtracting the loan's
// contribution from the customer's aggregates in the same transaction.
func (l *Ledger) DeleteLoan(loanID uuid.UUID) error {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return mapStoreErr("get loan", err)
	}
	customer, err := l.storage.GetCustomer(loan.CustomerID)
	if err != nil {
		return mapStoreErr("get customer", err)
	}
	paid, err := l.storage.CountInstallments(loanID, models.InstallmentPaid)
	if err != nil {
		return storeErr("count installments", err)
	}
	overdue, err := l.storage.CountInstallments(loanID, models.InstallmentOverdue)
	if err != nil {
		return storeErr("count installments", err)
	}

	agg, err := l.recalc.DecrementForDelete(customer, loan, paid, overdue)
	if err != nil {
		return storeErr("adjust aggregates", err)
	}
	if err := l.storage.DeleteLoan(loan, agg); err != nil {
		return mapStoreErr("delete loan", err)
	}
	l.logger.Info("loan deleted",
		zap.String("loan_id", loanID.String()),
		zap.String("customer_id", customer.ID.String()),
	)
	return nil
}

// --- installment and loan status ---

// SetInstallmentStatus toggles an installment to Paid or back to unpaid.
// Paying stamps the payment time; unpaying clears it and lands on Pending
// or Overdue depending on the due date. The loan's derived status and the
// customer's incremental aggregates are written in the same transaction.
// Requesting the status the installment already has is a no-op.
func (l *Ledger) SetInstallmentStatus(installmentID uuid.UUID, target models.InstallmentStatus) (models.InstallmentStatus, models.LoanStatus, error) {
	if target != models.InstallmentPaid && target != models.InstallmentPending {
		return "", "", validationf("target status must be %q or %q", models.InstallmentPaid, models.InstallmentPending)
	}
	inst, err := l.storage.GetInstallment(installmentID)
	if err != nil {
		return "", "", mapStoreErr("get installment", err)
	}
	loan, err := l.storage.GetLoan(inst.LoanID)
	if err != nil {
		return "", "", mapStoreErr("get loan", err)
	}
	customer, err := l.storage.GetCustomer(loan.CustomerID)
	if err != nil {
		return "", "", mapStoreErr("get customer", err)
	}

	newStatus, paidDate := resolveInstallmentStatus(target, inst.DueDate, l.now())
	if newStatus == inst.Status {
		return inst.Status, loan.Status, nil
	}

	overdueBefore, err := l.storage.CountInstallments(loan.ID, models.InstallmentOverdue)
	if err != nil {
		return "", "", storeErr("count installments", err)
	}
	overdueAfter := overdueBefore
	if inst.Status == models.InstallmentOverdue {
		overdueAfter--
	}
	if newStatus == models.InstallmentOverdue {
		overdueAfter++
	}

	// Paid loans keep their status: Paid is absorbing and only the
	// explicit mark-paid action produces it.
	loanStatus := loan.Status
	if loan.Status != models.LoanPaid {
		if overdueAfter > 0 {
			loanStatus = models.LoanOverdue
		} else {
			loanStatus = models.LoanPending
		}
	}

	agg := l.recalc.AdjustForToggle(customer.CustomerAggregates, loan, inst.Status, newStatus, overdueBefore, overdueAfter)

	oldStatus := inst.Status
	inst.Status = newStatus
	inst.PaidDate = paidDate
	if err := l.storage.ApplyInstallmentStatus(inst, loanStatus, customer.ID, agg); err != nil {
		return "", "", mapStoreErr("apply installment status", err)
	}
	l.logger.Debug("installment status changed",
		zap.String("installment_id", installmentID.String()),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)),
	)
	return newStatus, loanStatus, nil
}

// MarkLoanPaid is the explicit action that moves a loan to Paid. It fails
// with a validation error while any installment remains unpaid. Once Paid,
// a loan stays Paid.
func (l *Ledger) MarkLoanPaid(loanID uuid.UUID) error {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return mapStoreErr("get loan", err)
	}
	if loan.Status == models.LoanPaid {
		return nil
	}
	pending, err := l.storage.CountInstallments(loanID, models.InstallmentPending)
	if err != nil {
		return storeErr("count installments", err)
	}
	overdue, err := l.storage.CountInstallments(loanID, models.InstallmentOverdue)
	if err != nil {
		return storeErr("count installments", err)
	}
	if pending+overdue > 0 {
		return validationf("loan has %d unpaid installments; settle them before marking the loan paid", pending+overdue)
	}
	customer, err := l.storage.GetCustomer(loan.CustomerID)
	if err != nil {
		return mapStoreErr("get customer", err)
	}

	agg := customer.CustomerAggregates
	agg.PendingLoans = clampInt(agg.PendingLoans - 1)
	agg.PaidLoans++

	loan.Status = models.LoanPaid
	loan.UpdatedAt = l.now()
	if err := l.storage.SetLoanPaid(loan, &agg); err != nil {
		return mapStoreErr("mark loan paid", err)
	}
	l.logger.Info("loan marked paid", zap.String("loan_id", loanID.String()))
	return nil
}

// --- sweep ---

// RunOverdueSweep triggers one sweep pass. The bool reports whether the
// pass actually ran; false means a sweep was already in flight, which is a
// defined no-op outcome rather than an error.
func (l *Ledger) RunOverdueSweep() (bool, error) {
	return l.sweeper.Run()
}

// --- cashbox ---

func (l *Ledger) CashBoxTotal() (decimal.Decimal, error) {
	total, err := l.storage.CashBoxTotal()
	if err != nil {
		return decimal.Zero, storeErr("get cashbox total", err)
	}
	return total, nil
}

func (l *Ledger) AddToCashBox(amount decimal.Decimal) (decimal.Decimal, error) {
	total, err := l.storage.AddToCashBox(amount)
	if err != nil {
		return decimal.Zero, storeErr("update cashbox", err)
	}
	return total, nil
}
