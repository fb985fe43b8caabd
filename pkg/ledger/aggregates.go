package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvribeiro/loanbook/pkg/models"
	"github.com/mvribeiro/loanbook/pkg/store"
)

// loanTally is one loan with its paid and overdue installment counts, the
// inputs every aggregate derives from.
type loanTally struct {
	loan    *models.Loan
	paid    int
	overdue int
}

// Recalculator keeps the customer rollups consistent with loan and
// installment data. It offers a full recompute from live data, an
// incremental adjustment for single-installment toggles and a decrement for
// loan deletion. The incremental paths must land on the same values the
// full recompute would produce from the same starting state.
type Recalculator struct {
	storage store.Storage
}

func NewRecalculator(s store.Storage) *Recalculator {
	return &Recalculator{storage: s}
}

// Recompute derives the full aggregate set from the customer's current
// loans and installments.
func (r *Recalculator) Recompute(customerID uuid.UUID) (*models.CustomerAggregates, error) {
	tallies, err := r.tallies(customerID)
	if err != nil {
		return nil, err
	}
	return aggregate(tallies), nil
}

// tallies loads every loan of the customer with its installment counts.
func (r *Recalculator) tallies(customerID uuid.UUID) ([]loanTally, error) {
	loans, err := r.storage.ListLoansForCustomer(customerID)
	if err != nil {
		return nil, err
	}
	tallies := make([]loanTally, 0, len(loans))
	for _, loan := range loans {
		paid, err := r.storage.CountInstallments(loan.ID, models.InstallmentPaid)
		if err != nil {
			return nil, err
		}
		overdue, err := r.storage.CountInstallments(loan.ID, models.InstallmentOverdue)
		if err != nil {
			return nil, err
		}
		tallies = append(tallies, loanTally{loan: loan, paid: paid, overdue: overdue})
	}
	return tallies, nil
}

// aggregate folds tallies into the aggregate set. Every recompute path,
// incremental or full, has to agree with this function.
func aggregate(tallies []loanTally) *models.CustomerAggregates {
	agg := &models.CustomerAggregates{
		TotalLent:   decimal.Zero,
		TotalProfit: decimal.Zero,
		LargestLoan: decimal.Zero,
	}
	for _, t := range tallies {
		agg.TotalLoans++
		if t.loan.Status == models.LoanPaid {
			agg.PaidLoans++
		} else {
			agg.PendingLoans++
		}
		if t.overdue > 0 {
			agg.OverdueLoans++
		}
		agg.OverdueInstallments += t.overdue
		agg.TotalLent = agg.TotalLent.Add(t.loan.Principal)
		agg.TotalProfit = agg.TotalProfit.Add(t.loan.ProfitShare().Mul(decimal.NewFromInt(int64(t.paid))))
		if t.loan.Principal.GreaterThan(agg.LargestLoan) {
			agg.LargestLoan = t.loan.Principal
		}
	}
	return agg
}

// AdjustForToggle applies the incremental adjustment for one installment
// changing status on the given loan: the per-installment profit share moves
// in or out, and the delinquency counters shift by one unit when the toggle
// crosses the loan's last-overdue boundary.
func (r *Recalculator) AdjustForToggle(stored models.CustomerAggregates, loan *models.Loan, oldStatus, newStatus models.InstallmentStatus, overdueBefore, overdueAfter int) *models.CustomerAggregates {
	agg := stored
	share := loan.ProfitShare()

	if newStatus == models.InstallmentPaid && oldStatus != models.InstallmentPaid {
		agg.TotalProfit = agg.TotalProfit.Add(share)
	}
	if oldStatus == models.InstallmentPaid && newStatus != models.InstallmentPaid {
		agg.TotalProfit = clampDecimal(agg.TotalProfit.Sub(share))
	}

	switch {
	case newStatus == models.InstallmentOverdue && oldStatus != models.InstallmentOverdue:
		agg.OverdueInstallments++
	case oldStatus == models.InstallmentOverdue && newStatus != models.InstallmentOverdue:
		agg.OverdueInstallments = clampInt(agg.OverdueInstallments - 1)
	}

	switch {
	case overdueBefore == 0 && overdueAfter > 0:
		agg.OverdueLoans++
	case overdueBefore > 0 && overdueAfter == 0:
		agg.OverdueLoans = clampInt(agg.OverdueLoans - 1)
	}

	return &agg
}

// DecrementForDelete subtracts a loan's full contribution from the stored
// aggregates using the loan's last-known state. Every field clamps at zero.
// When the deleted loan held the maximum principal, the maximum is requeried
// from the remaining loans.
func (r *Recalculator) DecrementForDelete(customer *models.Customer, loan *models.Loan, paid, overdue int) (*models.CustomerAggregates, error) {
	agg := customer.CustomerAggregates

	agg.TotalLoans = clampInt(agg.TotalLoans - 1)
	if loan.Status == models.LoanPaid {
		agg.PaidLoans = clampInt(agg.PaidLoans - 1)
	} else {
		agg.PendingLoans = clampInt(agg.PendingLoans - 1)
	}
	agg.TotalLent = clampDecimal(agg.TotalLent.Sub(loan.Principal))
	agg.TotalProfit = clampDecimal(agg.TotalProfit.Sub(loan.ProfitShare().Mul(decimal.NewFromInt(int64(paid)))))
	agg.OverdueInstallments = clampInt(agg.OverdueInstallments - overdue)
	if overdue > 0 {
		agg.OverdueLoans = clampInt(agg.OverdueLoans - 1)
	}

	if loan.Principal.Equal(agg.LargestLoan) {
		max, err := r.storage.MaxPrincipal(customer.ID, loan.ID)
		if err != nil {
			return nil, err
		}
		agg.LargestLoan = max
	}

	return &agg, nil
}

func clampInt(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampDecimal(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
