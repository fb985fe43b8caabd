package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvribeiro/loanbook/pkg/models"
)

// dateOnly strips the time of day. All due-date arithmetic and overdue
// comparisons work on calendar dates, never clock times.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dueDate advances the origination date by seq calendar months, following
// normal calendar rollover (Jan 31 + 1 month lands in March).
func dueDate(origination time.Time, seq int) time.Time {
	return dateOnly(origination).AddDate(0, seq, 0)
}

// installmentAmount is the uniform per-installment amount: repayable divided
// by count, rounded to cents. Every installment gets the same rounded value;
// no remainder redistribution.
func installmentAmount(repayable decimal.Decimal, count int) decimal.Decimal {
	return repayable.Div(decimal.NewFromInt(int64(count))).Round(2)
}

// GenerateSchedule produces the full installment schedule for a new loan:
// one installment per sequence number 1..count, due one calendar month
// apart starting one month after origination. Installments whose due date
// is already past as of now are born Overdue.
func GenerateSchedule(loanID uuid.UUID, repayable decimal.Decimal, count int, origination, now time.Time) []*models.Installment {
	amount := installmentAmount(repayable, count)
	today := dateOnly(now)

	schedule := make([]*models.Installment, 0, count)
	for seq := 1; seq <= count; seq++ {
		due := dueDate(origination, seq)
		status := models.InstallmentPending
		if due.Before(today) {
			status = models.InstallmentOverdue
		}
		schedule = append(schedule, &models.Installment{
			ID:       uuid.New(),
			LoanID:   loanID,
			Sequence: seq,
			Amount:   amount,
			DueDate:  due,
			Status:   status,
		})
	}
	return schedule
}

// extendSchedule produces the installments appended when a loan's count
// grows from oldCount to newCount, continuing the monthly cadence from the
// origination date. Appended installments are born Pending; the next sweep
// ages any that are already past due.
func extendSchedule(loan *models.Loan, oldCount, newCount int, amount decimal.Decimal) []*models.Installment {
	appended := make([]*models.Installment, 0, newCount-oldCount)
	for seq := oldCount + 1; seq <= newCount; seq++ {
		appended = append(appended, &models.Installment{
			ID:       uuid.New(),
			LoanID:   loan.ID,
			Sequence: seq,
			Amount:   amount,
			DueDate:  dueDate(loan.OriginationDate, seq),
			Status:   models.InstallmentPending,
		})
	}
	return appended
}
