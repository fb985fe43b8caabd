package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvribeiro/loanbook/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateSchedule_MonthlyCadence(t *testing.T) {
	origination := date(2024, 1, 1)
	now := date(2024, 1, 1)
	schedule := GenerateSchedule(uuid.New(), decimal.RequireFromString("1200"), 4, origination, now)

	if len(schedule) != 4 {
		t.Fatalf("Expected 4 installments, got %d", len(schedule))
	}
	wantDue := []time.Time{
		date(2024, 2, 1),
		date(2024, 3, 1),
		date(2024, 4, 1),
		date(2024, 5, 1),
	}
	for i, inst := range schedule {
		if inst.Sequence != i+1 {
			t.Errorf("Expected sequence %d, got %d", i+1, inst.Sequence)
		}
		if !inst.DueDate.Equal(wantDue[i]) {
			t.Errorf("Installment %d: expected due %v, got %v", i+1, wantDue[i], inst.DueDate)
		}
		if !inst.Amount.Equal(decimal.RequireFromString("300")) {
			t.Errorf("Installment %d: expected amount 300, got %s", i+1, inst.Amount)
		}
		if inst.Status != models.InstallmentPending {
			t.Errorf("Installment %d: expected Pending, got %s", i+1, inst.Status)
		}
	}
}

func TestGenerateSchedule_PastDueBornOverdue(t *testing.T) {
	origination := date(2024, 1, 1)
	now := date(2024, 3, 15)
	schedule := GenerateSchedule(uuid.New(), decimal.RequireFromString("1200"), 4, origination, now)

	wantStatus := []models.InstallmentStatus{
		models.InstallmentOverdue, // due Feb 1
		models.InstallmentOverdue, // due Mar 1
		models.InstallmentPending, // due Apr 1
		models.InstallmentPending, // due May 1
	}
	for i, inst := range schedule {
		if inst.Status != wantStatus[i] {
			t.Errorf("Installment %d: expected %s, got %s", i+1, wantStatus[i], inst.Status)
		}
	}
}

func TestGenerateSchedule_DueOnNowStaysPending(t *testing.T) {
	origination := date(2024, 1, 1)
	now := date(2024, 2, 1)
	schedule := GenerateSchedule(uuid.New(), decimal.RequireFromString("300"), 1, origination, now)

	// Overdue means strictly past due, not due today.
	if schedule[0].Status != models.InstallmentPending {
		t.Errorf("Expected installment due today to stay Pending, got %s", schedule[0].Status)
	}
}

func TestGenerateSchedule_MonthEndRollover(t *testing.T) {
	origination := date(2024, 1, 31)
	schedule := GenerateSchedule(uuid.New(), decimal.RequireFromString("600"), 2, origination, date(2024, 1, 31))

	// Jan 31 + 1 month normalizes past February (2024 is a leap year, so
	// Feb 31 becomes Mar 2); +2 months is Mar 31.
	if !schedule[0].DueDate.Equal(date(2024, 3, 2)) {
		t.Errorf("Expected first due date 2024-03-02, got %v", schedule[0].DueDate)
	}
	if !schedule[1].DueDate.Equal(date(2024, 3, 31)) {
		t.Errorf("Expected second due date 2024-03-31, got %v", schedule[1].DueDate)
	}
}

func TestInstallmentAmount_Rounding(t *testing.T) {
	cases := []struct {
		repayable string
		count     int
		want      string
	}{
		{"1200", 4, "300"},
		{"1000", 7, "142.86"},
		{"100", 3, "33.33"},
		{"0.01", 2, "0.01"},
	}
	for _, c := range cases {
		got := installmentAmount(decimal.RequireFromString(c.repayable), c.count)
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("installmentAmount(%s, %d): expected %s, got %s", c.repayable, c.count, c.want, got)
		}
	}
}

func TestSchedule_TotalWithinRoundingBound(t *testing.T) {
	// The uniform rounded amount may drift from repayable by at most half a
	// cent per installment.
	for _, c := range []struct {
		repayable string
		count     int
	}{
		{"100", 3},
		{"1000", 7},
		{"999.99", 13},
		{"0.05", 4},
	} {
		repayable := decimal.RequireFromString(c.repayable)
		schedule := GenerateSchedule(uuid.New(), repayable, c.count, date(2024, 1, 1), date(2024, 1, 1))
		sum := decimal.Zero
		for _, inst := range schedule {
			sum = sum.Add(inst.Amount)
		}
		bound := decimal.RequireFromString("0.005").Mul(decimal.NewFromInt(int64(c.count)))
		if sum.Sub(repayable).Abs().GreaterThan(bound) {
			t.Errorf("repayable %s over %d installments: sum %s drifts more than %s", c.repayable, c.count, sum, bound)
		}
	}
}

func TestExtendSchedule(t *testing.T) {
	loan := &models.Loan{
		ID:              uuid.New(),
		OriginationDate: date(2024, 1, 1),
	}
	amount := decimal.RequireFromString("200")
	appended := extendSchedule(loan, 4, 6, amount)

	if len(appended) != 2 {
		t.Fatalf("Expected 2 appended installments, got %d", len(appended))
	}
	if appended[0].Sequence != 5 || appended[1].Sequence != 6 {
		t.Errorf("Expected sequences 5 and 6, got %d and %d", appended[0].Sequence, appended[1].Sequence)
	}
	if !appended[0].DueDate.Equal(date(2024, 6, 1)) {
		t.Errorf("Expected due date 2024-06-01, got %v", appended[0].DueDate)
	}
	if !appended[1].DueDate.Equal(date(2024, 7, 1)) {
		t.Errorf("Expected due date 2024-07-01, got %v", appended[1].DueDate)
	}
	for _, inst := range appended {
		// Appended installments are born Pending even when already past
		// due; the next sweep ages them.
		if inst.Status != models.InstallmentPending {
			t.Errorf("Expected appended installment Pending, got %s", inst.Status)
		}
	}
}
