package ledger

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvribeiro/loanbook/pkg/models"
	"github.com/mvribeiro/loanbook/pkg/store"
)

func newTestLedger(t *testing.T, dbFile string) (*Ledger, *store.SQLiteStore) {
	t.Helper()
	os.Remove(dbFile)
	s, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(dbFile)
	})
	return NewLedger(s, zap.NewNop()), s
}

// setClock pins the ledger and its sweeper to a fixed instant.
func setClock(l *Ledger, at time.Time) {
	l.now = func() time.Time { return at }
	l.sweeper.now = l.now
}

func mustCustomer(t *testing.T, l *Ledger, name string) *models.Customer {
	t.Helper()
	customer, err := l.CreateCustomer(name, "555-0101", "12 Main St", "", "")
	if err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	return customer
}

func mustLoan(t *testing.T, l *Ledger, customerID uuid.UUID, principal, repayable string, count int, origination time.Time) *models.Loan {
	t.Helper()
	loan, err := l.CreateLoan(customerID, decimal.RequireFromString(principal), decimal.RequireFromString(repayable), count, origination, "")
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	return loan
}

func assertDecimal(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Expected %s %s, got %s", field, want, got)
	}
}

// assertStoredMatchesRecompute checks that the customer's stored rollups
// agree with a full recomputation from loans and installments.
func assertStoredMatchesRecompute(t *testing.T, l *Ledger, s *store.SQLiteStore, customerID uuid.UUID) {
	t.Helper()
	customer, err := s.GetCustomer(customerID)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	full, err := l.recalc.Recompute(customerID)
	if err != nil {
		t.Fatalf("Failed to recompute aggregates: %v", err)
	}
	stored := customer.CustomerAggregates
	if stored.TotalLoans != full.TotalLoans ||
		stored.PendingLoans != full.PendingLoans ||
		stored.PaidLoans != full.PaidLoans ||
		stored.OverdueLoans != full.OverdueLoans ||
		stored.OverdueInstallments != full.OverdueInstallments {
		t.Errorf("Stored counters diverge from recompute:\nstored    %+v\nrecompute %+v", stored, *full)
	}
	if !stored.TotalLent.Equal(full.TotalLent) || !stored.TotalProfit.Equal(full.TotalProfit) || !stored.LargestLoan.Equal(full.LargestLoan) {
		t.Errorf("Stored amounts diverge from recompute:\nstored    lent=%s profit=%s largest=%s\nrecompute lent=%s profit=%s largest=%s",
			stored.TotalLent, stored.TotalProfit, stored.LargestLoan,
			full.TotalLent, full.TotalProfit, full.LargestLoan)
	}
}

func TestCreateCustomer_DuplicateNameConflict(t *testing.T) {
	l, _ := newTestLedger(t, "test_ledger_dup.db")

	mustCustomer(t, l, "Ana Souza")
	_, err := l.CreateCustomer("Ana Souza", "", "", "", "")
	if ErrKind(err) != KindConflict {
		t.Errorf("Expected conflict on duplicate name, got %v", err)
	}
}

func TestCreateLoan_WorkedExample(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_create.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Bruno Lima")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))

	if loan.Status != models.LoanPending {
		t.Errorf("Expected loan Pending, got %s", loan.Status)
	}
	installments, err := l.ListInstallments(loan.ID)
	if err != nil {
		t.Fatalf("Failed to list installments: %v", err)
	}
	if len(installments) != 4 {
		t.Fatalf("Expected 4 installments, got %d", len(installments))
	}
	wantDue := []time.Time{date(2024, 2, 1), date(2024, 3, 1), date(2024, 4, 1), date(2024, 5, 1)}
	for i, inst := range installments {
		if !inst.DueDate.Equal(wantDue[i]) {
			t.Errorf("Installment %d: expected due %v, got %v", i+1, wantDue[i], inst.DueDate)
		}
		assertDecimal(t, "amount", inst.Amount, "300")
		if inst.Status != models.InstallmentPending {
			t.Errorf("Installment %d: expected Pending, got %s", i+1, inst.Status)
		}
	}

	stored, err := s.GetCustomer(customer.ID)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	if stored.TotalLoans != 1 || stored.PendingLoans != 1 || stored.PaidLoans != 0 {
		t.Errorf("Unexpected loan counters: %+v", stored.CustomerAggregates)
	}
	assertDecimal(t, "TotalLent", stored.TotalLent, "1000")
	assertDecimal(t, "TotalProfit", stored.TotalProfit, "0")
	assertDecimal(t, "LargestLoan", stored.LargestLoan, "1000")
	assertStoredMatchesRecompute(t, l, s, customer.ID)
}

func TestCreateLoan_PastDueBornOverdue(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_backdated.db")
	setClock(l, date(2024, 3, 15))

	customer := mustCustomer(t, l, "Carla Dias")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))

	if loan.Status != models.LoanOverdue {
		t.Errorf("Expected backdated loan born Overdue, got %s", loan.Status)
	}
	stored, err := s.GetCustomer(customer.ID)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	if stored.OverdueInstallments != 2 {
		t.Errorf("Expected 2 overdue installments, got %d", stored.OverdueInstallments)
	}
	if stored.OverdueLoans != 1 {
		t.Errorf("Expected 1 overdue loan, got %d", stored.OverdueLoans)
	}
	assertStoredMatchesRecompute(t, l, s, customer.ID)
}

func TestCreateLoan_Validation(t *testing.T) {
	l, _ := newTestLedger(t, "test_ledger_validation.db")
	customer := mustCustomer(t, l, "Davi Rocha")

	cases := []struct {
		name      string
		principal string
		repayable string
		count     int
	}{
		{"zero principal", "0", "1200", 4},
		{"negative repayable", "1000", "-1", 4},
		{"zero count", "1000", "1200", 0},
	}
	for _, c := range cases {
		_, err := l.CreateLoan(customer.ID, decimal.RequireFromString(c.principal), decimal.RequireFromString(c.repayable), c.count, date(2024, 1, 1), "")
		if ErrKind(err) != KindValidation {
			t.Errorf("%s: expected validation error, got %v", c.name, err)
		}
	}

	_, err := l.CreateLoan(uuid.New(), decimal.RequireFromString("1000"), decimal.RequireFromString("1200"), 4, date(2024, 1, 1), "")
	if ErrKind(err) != KindNotFound {
		t.Errorf("Expected not-found for unknown customer, got %v", err)
	}
}

func TestSetInstallmentStatus_PayRealizesProfit(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_pay.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Elisa Prado")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))
	installments, _ := l.ListInstallments(loan.ID)

	instStatus, loanStatus, err := l.SetInstallmentStatus(installments[0].ID, models.InstallmentPaid)
	if err != nil {
		t.Fatalf("Failed to pay installment: %v", err)
	}
	if instStatus != models.InstallmentPaid {
		t.Errorf("Expected installment Paid, got %s", instStatus)
	}
	if loanStatus != models.LoanPending {
		t.Errorf("Expected loan still Pending, got %s", loanStatus)
	}

	paid, err := s.GetInstallment(installments[0].ID)
	if err != nil {
		t.Fatalf("Failed to get installment: %v", err)
	}
	if paid.PaidDate == nil {
		t.Error("Expected payment timestamp recorded")
	}

	stored, _ := s.GetCustomer(customer.ID)
	assertDecimal(t, "TotalProfit", stored.TotalProfit, "50")
	assertStoredMatchesRecompute(t, l, s, customer.ID)
}

func TestSetInstallmentStatus_NoOp(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_noop.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Fabio Nunes")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))
	installments, _ := l.ListInstallments(loan.ID)

	before, _ := s.GetCustomer(customer.ID)
	instStatus, loanStatus, err := l.SetInstallmentStatus(installments[0].ID, models.InstallmentPending)
	if err != nil {
		t.Fatalf("Expected no-op, got error: %v", err)
	}
	if instStatus != models.InstallmentPending || loanStatus != models.LoanPending {
		t.Errorf("Expected unchanged statuses, got %s/%s", instStatus, loanStatus)
	}
	after, _ := s.GetCustomer(customer.ID)
	if !before.TotalProfit.Equal(after.TotalProfit) || before.OverdueInstallments != after.OverdueInstallments {
		t.Error("Expected aggregates untouched by no-op toggle")
	}

	_, _, err = l.SetInstallmentStatus(installments[0].ID, models.InstallmentOverdue)
	if ErrKind(err) != KindValidation {
		t.Errorf("Expected validation error for Overdue target, got %v", err)
	}
}

func TestSetInstallmentStatus_UnpayPastDue(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_unpay.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Gilda Matos")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))
	installments, _ := l.ListInstallments(loan.ID)

	if _, _, err := l.SetInstallmentStatus(installments[0].ID, models.InstallmentPaid); err != nil {
		t.Fatalf("Failed to pay installment: %v", err)
	}

	// Unpaying after the due date has passed lands on Overdue and drags the
	// loan with it.
	setClock(l, date(2024, 2, 15))
	instStatus, loanStatus, err := l.SetInstallmentStatus(installments[0].ID, models.InstallmentPending)
	if err != nil {
		t.Fatalf("Failed to unpay installment: %v", err)
	}
	if instStatus != models.InstallmentOverdue {
		t.Errorf("Expected Overdue after unpay past due, got %s", instStatus)
	}
	if loanStatus != models.LoanOverdue {
		t.Errorf("Expected loan Overdue, got %s", loanStatus)
	}

	unpaid, _ := s.GetInstallment(installments[0].ID)
	if unpaid.PaidDate != nil {
		t.Error("Expected payment timestamp cleared")
	}
	stored, _ := s.GetCustomer(customer.ID)
	assertDecimal(t, "TotalProfit", stored.TotalProfit, "0")
	if stored.OverdueInstallments != 1 || stored.OverdueLoans != 1 {
		t.Errorf("Unexpected delinquency counters: %+v", stored.CustomerAggregates)
	}
	assertStoredMatchesRecompute(t, l, s, customer.ID)

	// Paying it again clears the loan's overdue state.
	_, loanStatus, err = l.SetInstallmentStatus(installments[0].ID, models.InstallmentPaid)
	if err != nil {
		t.Fatalf("Failed to re-pay installment: %v", err)
	}
	if loanStatus != models.LoanPending {
		t.Errorf("Expected loan back to Pending, got %s", loanStatus)
	}
	assertStoredMatchesRecompute(t, l, s, customer.ID)
}

func TestMarkLoanPaid(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_markpaid.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Hugo Teles")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))
	installments, _ := l.ListInstallments(loan.ID)

	if err := l.MarkLoanPaid(loan.ID); ErrKind(err) != KindValidation {
		t.Errorf("Expected validation error with unpaid installments, got %v", err)
	}

	for _, inst := range installments {
		if _, _, err := l.SetInstallmentStatus(inst.ID, models.InstallmentPaid); err != nil {
			t.Fatalf("Failed to pay installment %d: %v", inst.Sequence, err)
		}
	}
	if err := l.MarkLoanPaid(loan.ID); err != nil {
		t.Fatalf("Failed to mark loan paid: %v", err)
	}

	fetched, _ := s.GetLoan(loan.ID)
	if fetched.Status != models.LoanPaid {
		t.Errorf("Expected loan Paid, got %s", fetched.Status)
	}
	stored, _ := s.GetCustomer(customer.ID)
	if stored.PendingLoans != 0 || stored.PaidLoans != 1 {
		t.Errorf("Unexpected loan counters: %+v", stored.CustomerAggregates)
	}
	assertDecimal(t, "TotalProfit", stored.TotalProfit, "200")
	assertStoredMatchesRecompute(t, l, s, customer.ID)

	// Marking again is a no-op.
	if err := l.MarkLoanPaid(loan.ID); err != nil {
		t.Fatalf("Expected repeated mark-paid to be a no-op, got %v", err)
	}

	// Paid is absorbing: unpaying an installment afterwards adjusts profit
	// but leaves the loan Paid.
	_, loanStatus, err := l.SetInstallmentStatus(installments[0].ID, models.InstallmentPending)
	if err != nil {
		t.Fatalf("Failed to unpay installment: %v", err)
	}
	if loanStatus != models.LoanPaid {
		t.Errorf("Expected loan to stay Paid, got %s", loanStatus)
	}
	stored, _ = s.GetCustomer(customer.ID)
	assertDecimal(t, "TotalProfit", stored.TotalProfit, "150")
	assertStoredMatchesRecompute(t, l, s, customer.ID)
}

func TestEditLoan_Truncate(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_truncate.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Iris Viana")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 6, date(2024, 1, 1))
	installments, _ := l.ListInstallments(loan.ID)

	// Pay installment 5 first: truncation removes trailing sequences even
	// when they are Paid.
	if _, _, err := l.SetInstallmentStatus(installments[4].ID, models.InstallmentPaid); err != nil {
		t.Fatalf("Failed to pay installment: %v", err)
	}

	edited, err := l.EditLoan(loan.ID, EditLoanParams{
		Principal:        decimal.RequireFromString("1000"),
		Repayable:        decimal.RequireFromString("1200"),
		InstallmentCount: 4,
		OriginationDate:  date(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("Failed to edit loan: %v", err)
	}
	if edited.InstallmentCount != 4 {
		t.Errorf("Expected count 4, got %d", edited.InstallmentCount)
	}

	remaining, _ := l.ListInstallments(loan.ID)
	if len(remaining) != 4 {
		t.Fatalf("Expected 4 installments after truncation, got %d", len(remaining))
	}
	for i, inst := range remaining {
		if inst.Sequence != i+1 {
			t.Errorf("Expected sequence %d, got %d", i+1, inst.Sequence)
		}
		assertDecimal(t, "amount", inst.Amount, "300")
	}

	// The paid trailing installment is gone, so its profit is gone too.
	stored, _ := s.GetCustomer(customer.ID)
	assertDecimal(t, "TotalProfit", stored.TotalProfit, "0")
	assertStoredMatchesRecompute(t, l, s, customer.ID)
}

func TestEditLoan_Extend(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_extend.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Joel Farias")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))

	if _, err := l.EditLoan(loan.ID, EditLoanParams{
		Principal:        decimal.RequireFromString("1000"),
		Repayable:        decimal.RequireFromString("1200"),
		InstallmentCount: 6,
		OriginationDate:  date(2024, 1, 1),
	}); err != nil {
		t.Fatalf("Failed to edit loan: %v", err)
	}

	installments, _ := l.ListInstallments(loan.ID)
	if len(installments) != 6 {
		t.Fatalf("Expected 6 installments after extension, got %d", len(installments))
	}
	for _, inst := range installments {
		assertDecimal(t, "amount", inst.Amount, "200")
		if inst.Status != models.InstallmentPending {
			t.Errorf("Installment %d: expected Pending, got %s", inst.Sequence, inst.Status)
		}
	}
	if !installments[5].DueDate.Equal(date(2024, 7, 1)) {
		t.Errorf("Expected appended due date 2024-07-01, got %v", installments[5].DueDate)
	}
	assertStoredMatchesRecompute(t, l, s, customer.ID)
}

func TestDeleteLoan(t *testing.T) {
	l, s := newTestLedger(t, "test_ledger_delete.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Karen Alves")
	small := mustLoan(t, l, customer.ID, "900", "1000", 2, date(2024, 1, 1))
	big := mustLoan(t, l, customer.ID, "2500", "3000", 2, date(2024, 1, 1))

	bigInstallments, _ := l.ListInstallments(big.ID)
	if _, _, err := l.SetInstallmentStatus(bigInstallments[0].ID, models.InstallmentPaid); err != nil {
		t.Fatalf("Failed to pay installment: %v", err)
	}

	if err := l.DeleteLoan(big.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := l.GetLoan(big.ID); ErrKind(err) != KindNotFound {
		t.Errorf("Expected not-found after delete, got %v", err)
	}

	// Deletion leaves the aggregates as if the loan never existed,
	// including a requeried largest loan.
	stored, _ := s.GetCustomer(customer.ID)
	if stored.TotalLoans != 1 || stored.PendingLoans != 1 {
		t.Errorf("Unexpected loan counters: %+v", stored.CustomerAggregates)
	}
	assertDecimal(t, "TotalLent", stored.TotalLent, "900")
	assertDecimal(t, "TotalProfit", stored.TotalProfit, "0")
	assertDecimal(t, "LargestLoan", stored.LargestLoan, "900")
	assertStoredMatchesRecompute(t, l, s, customer.ID)

	if err := l.DeleteLoan(small.ID); err != nil {
		t.Fatalf("Failed to delete last loan: %v", err)
	}
	stored, _ = s.GetCustomer(customer.ID)
	if stored.TotalLoans != 0 {
		t.Errorf("Expected 0 loans, got %d", stored.TotalLoans)
	}
	assertDecimal(t, "LargestLoan", stored.LargestLoan, "0")
}

func TestDeleteCustomer(t *testing.T) {
	l, _ := newTestLedger(t, "test_ledger_del_customer.db")
	setClock(l, date(2024, 1, 1))

	customer := mustCustomer(t, l, "Livia Costa")
	loan := mustLoan(t, l, customer.ID, "1000", "1200", 4, date(2024, 1, 1))

	if err := l.DeleteCustomer(customer.ID); err != nil {
		t.Fatalf("Failed to delete customer: %v", err)
	}
	if _, err := l.GetCustomer(customer.ID); ErrKind(err) != KindNotFound {
		t.Errorf("Expected not-found customer, got %v", err)
	}
	if _, err := l.GetLoan(loan.ID); ErrKind(err) != KindNotFound {
		t.Errorf("Expected cascaded loan gone, got %v", err)
	}
	if err := l.DeleteCustomer(customer.ID); ErrKind(err) != KindNotFound {
		t.Errorf("Expected not-found on repeat delete, got %v", err)
	}
}

func TestUpdateCustomer(t *testing.T) {
	l, _ := newTestLedger(t, "test_ledger_update_customer.db")

	customer := mustCustomer(t, l, "Mario Brito")
	mustCustomer(t, l, "Nina Prado")

	if _, err := l.UpdateCustomer(customer.ID, "Nina Prado", "", "", "", ""); ErrKind(err) != KindConflict {
		t.Error("Expected conflict renaming onto an existing customer")
	}

	updated, err := l.UpdateCustomer(customer.ID, "Mario B. Brito", "555-0202", "", "", "moved")
	if err != nil {
		t.Fatalf("Failed to update customer: %v", err)
	}
	if updated.Name != "Mario B. Brito" || updated.Phone != "555-0202" {
		t.Errorf("Unexpected customer after update: %+v", updated)
	}

	if err := l.UpdateCustomerNote(customer.ID, "paid early before"); err != nil {
		t.Fatalf("Failed to update note: %v", err)
	}
	fetched, _ := l.GetCustomer(customer.ID)
	if fetched.Note != "paid early before" {
		t.Errorf("Expected note updated, got %q", fetched.Note)
	}
}

func TestGetCustomerAggregates_UnknownCustomer(t *testing.T) {
	l, _ := newTestLedger(t, "test_ledger_agg_missing.db")

	_, err := l.GetCustomerAggregates(uuid.New())
	if ErrKind(err) != KindNotFound {
		t.Errorf("Expected not-found, got %v", err)
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Error("Expected wrapped store.ErrNotFound")
	}
}
