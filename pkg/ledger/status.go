package ledger

import (
	"time"

	"github.com/mvribeiro/loanbook/pkg/models"
)

// deriveLoanStatus computes a loan's status from its installments: Overdue
// when at least one installment is Overdue, otherwise Pending. It applies
// only to loans in {Pending, Overdue}; Paid is absorbing and is reached
// solely through the explicit MarkLoanPaid action.
func deriveLoanStatus(installments []*models.Installment) models.LoanStatus {
	for _, inst := range installments {
		if inst.Status == models.InstallmentOverdue {
			return models.LoanOverdue
		}
	}
	return models.LoanPending
}

// resolveInstallmentStatus maps a requested target status onto the actual
// stored status. Paying records the payment timestamp. Unpaying clears it
// and re-derives Pending or Overdue from the due date alone.
func resolveInstallmentStatus(target models.InstallmentStatus, due time.Time, now time.Time) (models.InstallmentStatus, *time.Time) {
	if target == models.InstallmentPaid {
		paidAt := now
		return models.InstallmentPaid, &paidAt
	}
	if dateOnly(due).Before(dateOnly(now)) {
		return models.InstallmentOverdue, nil
	}
	return models.InstallmentPending, nil
}
