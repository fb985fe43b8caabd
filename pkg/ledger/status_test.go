package ledger

import (
	"testing"
	"time"

	"github.com/mvribeiro/loanbook/pkg/models"
)

func TestDeriveLoanStatus(t *testing.T) {
	pending := &models.Installment{Status: models.InstallmentPending}
	paid := &models.Installment{Status: models.InstallmentPaid}
	overdue := &models.Installment{Status: models.InstallmentOverdue}

	cases := []struct {
		name         string
		installments []*models.Installment
		want         models.LoanStatus
	}{
		{"all pending", []*models.Installment{pending, pending}, models.LoanPending},
		{"all paid", []*models.Installment{paid, paid}, models.LoanPending},
		{"one overdue", []*models.Installment{paid, overdue, pending}, models.LoanOverdue},
		{"empty", nil, models.LoanPending},
	}
	for _, c := range cases {
		if got := deriveLoanStatus(c.installments); got != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestResolveInstallmentStatus_Pay(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	status, paidAt := resolveInstallmentStatus(models.InstallmentPaid, date(2024, 2, 1), now)

	if status != models.InstallmentPaid {
		t.Errorf("Expected Paid, got %s", status)
	}
	if paidAt == nil || !paidAt.Equal(now) {
		t.Errorf("Expected payment timestamp %v, got %v", now, paidAt)
	}
}

func TestResolveInstallmentStatus_Unpay(t *testing.T) {
	cases := []struct {
		name string
		due  time.Time
		now  time.Time
		want models.InstallmentStatus
	}{
		{"past due lands Overdue", date(2024, 2, 1), date(2024, 3, 15), models.InstallmentOverdue},
		{"future due lands Pending", date(2024, 4, 1), date(2024, 3, 15), models.InstallmentPending},
		{"due today lands Pending", date(2024, 3, 15), date(2024, 3, 15), models.InstallmentPending},
	}
	for _, c := range cases {
		status, paidAt := resolveInstallmentStatus(models.InstallmentPending, c.due, c.now)
		if status != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, status)
		}
		if paidAt != nil {
			t.Errorf("%s: expected cleared payment timestamp, got %v", c.name, paidAt)
		}
	}
}
