package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvribeiro/loanbook/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// dateLayout is used for due dates and origination dates. Storing them as
// plain date strings keeps the overdue comparison exact regardless of
// timezone or driver datetime formatting.
const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		referred_by TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		registered_at DATETIME NOT NULL,
		total_loans INTEGER NOT NULL DEFAULT 0,
		pending_loans INTEGER NOT NULL DEFAULT 0,
		paid_loans INTEGER NOT NULL DEFAULT 0,
		overdue_loans INTEGER NOT NULL DEFAULT 0,
		total_lent TEXT NOT NULL DEFAULT '0',
		total_profit TEXT NOT NULL DEFAULT '0',
		overdue_installments INTEGER NOT NULL DEFAULT 0,
		largest_loan TEXT NOT NULL DEFAULT '0'
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		repayable TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		origination_date TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		paid_date DATETIME,
		status TEXT NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id),
		UNIQUE(loan_id, seq)
	);
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cashbox (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total TEXT NOT NULL DEFAULT '0'
	);
	INSERT OR IGNORE INTO cashbox (id, total) VALUES (1, '0');
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- customers ---

const customerColumns = `id, name, phone, address, referred_by, note, registered_at,
	total_loans, pending_loans, paid_loans, overdue_loans, total_lent, total_profit, overdue_installments, largest_loan`

func (s *SQLiteStore) CreateCustomer(c *models.Customer) error {
	_, err := s.db.Exec(
		`INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.Phone, c.Address, c.ReferredBy, c.Note, c.RegisteredAt,
		c.TotalLoans, c.PendingLoans, c.PaidLoans, c.OverdueLoans,
		c.TotalLent, c.TotalProfit, c.OverdueInstallments, c.LargestLoan,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRow(`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id.String())
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetCustomerByName(name string) (*models.Customer, error) {
	row := s.db.QueryRow(`SELECT `+customerColumns+` FROM customers WHERE name = ?`, name)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer by name: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCustomers() ([]*models.Customer, error) {
	rows, err := s.db.Query(`SELECT ` + customerColumns + ` FROM customers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(r rowScanner) (*models.Customer, error) {
	var c models.Customer
	var idStr string
	if err := r.Scan(&idStr, &c.Name, &c.Phone, &c.Address, &c.ReferredBy, &c.Note, &c.RegisteredAt,
		&c.TotalLoans, &c.PendingLoans, &c.PaidLoans, &c.OverdueLoans,
		&c.TotalLent, &c.TotalProfit, &c.OverdueInstallments, &c.LargestLoan); err != nil {
		return nil, err
	}
	c.ID = uuid.MustParse(idStr)
	return &c, nil
}

func (s *SQLiteStore) UpdateCustomer(c *models.Customer) error {
	result, err := s.db.Exec(
		`UPDATE customers SET name = ?, phone = ?, address = ?, referred_by = ?, note = ? WHERE id = ?`,
		c.Name, c.Phone, c.Address, c.ReferredBy, c.Note, c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return requireRow(result, "customer")
}

func (s *SQLiteStore) UpdateCustomerNote(id uuid.UUID, note string) error {
	result, err := s.db.Exec(`UPDATE customers SET note = ? WHERE id = ?`, note, id.String())
	if err != nil {
		return fmt.Errorf("failed to update customer note: %w", err)
	}
	return requireRow(result, "customer")
}

func (s *SQLiteStore) UpdateCustomerAggregates(id uuid.UUID, agg *models.CustomerAggregates) error {
	result, err := execAggregates(s.db, id, agg)
	if err != nil {
		return fmt.Errorf("failed to update customer aggregates: %w", err)
	}
	return requireRow(result, "customer")
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func execAggregates(e execer, id uuid.UUID, agg *models.CustomerAggregates) (sql.Result, error) {
	return e.Exec(
		`UPDATE customers SET
			total_loans = ?, pending_loans = ?, paid_loans = ?, overdue_loans = ?,
			total_lent = ?, total_profit = ?, overdue_installments = ?, largest_loan = ?
		WHERE id = ?`,
		agg.TotalLoans, agg.PendingLoans, agg.PaidLoans, agg.OverdueLoans,
		agg.TotalLent, agg.TotalProfit, agg.OverdueInstallments, agg.LargestLoan,
		id.String(),
	)
}

// DeleteCustomer removes a customer together with all of their loans and
// installments in one transaction.
func (s *SQLiteStore) DeleteCustomer(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM installments WHERE loan_id IN (SELECT id FROM loans WHERE customer_id = ?)`,
		id.String(),
	); err != nil {
		return fmt.Errorf("failed to delete customer installments: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM loans WHERE customer_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete customer loans: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM customers WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if err := requireRow(result, "customer"); err != nil {
		return err
	}
	return tx.Commit()
}

// --- loans ---

const loanColumns = `id, customer_id, principal, repayable, installment_count, origination_date, status, note, created_at, updated_at`

// CreateLoan persists the loan, its full schedule and the customer's
// recomputed rollups as one atomic unit.
func (s *SQLiteStore) CreateLoan(loan *models.Loan, schedule []*models.Installment, agg *models.CustomerAggregates) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerID.String(), loan.Principal, loan.Repayable,
		loan.InstallmentCount, formatDate(loan.OriginationDate), loan.Status, loan.Note,
		loan.CreatedAt, loan.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	if err := insertInstallments(tx, schedule); err != nil {
		return err
	}
	if _, err := execAggregates(tx, loan.CustomerID, agg); err != nil {
		return fmt.Errorf("failed to update customer aggregates: %w", err)
	}
	return tx.Commit()
}

func insertInstallments(tx *sql.Tx, installments []*models.Installment) error {
	for _, inst := range installments {
		if _, err := tx.Exec(
			`INSERT INTO installments (id, loan_id, seq, amount, due_date, paid_date, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inst.ID.String(), inst.LoanID.String(), inst.Sequence, inst.Amount,
			formatDate(inst.DueDate), inst.PaidDate, inst.Status,
		); err != nil {
			return fmt.Errorf("failed to create installment %d: %w", inst.Sequence, err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func scanLoan(r rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, customerIDStr, origination string
	if err := r.Scan(&idStr, &customerIDStr, &loan.Principal, &loan.Repayable,
		&loan.InstallmentCount, &origination, &loan.Status, &loan.Note,
		&loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.CustomerID = uuid.MustParse(customerIDStr)
	date, err := parseDate(origination)
	if err != nil {
		return nil, fmt.Errorf("bad origination date %q: %w", origination, err)
	}
	loan.OriginationDate = date
	return &loan, nil
}

func (s *SQLiteStore) queryLoans(query string, args ...any) ([]*models.Loan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func (s *SQLiteStore) ListLoansForCustomer(customerID uuid.UUID) ([]*models.Loan, error) {
	loans, err := s.queryLoans(
		`SELECT `+loanColumns+` FROM loans WHERE customer_id = ? ORDER BY created_at ASC`,
		customerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for customer %s: %w", customerID, err)
	}
	return loans, nil
}

func (s *SQLiteStore) ListOutstandingLoans() ([]*models.Loan, error) {
	loans, err := s.queryLoans(
		`SELECT ` + loanColumns + ` FROM loans WHERE status IN ('Pending', 'Overdue') ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding loans: %w", err)
	}
	return loans, nil
}

// ReplaceSchedule rewrites the loan row and brings its schedule in line with
// the new installment count: trailing installments beyond keep are removed,
// appended ones inserted, and every remaining installment's amount is
// overwritten. All of it, plus the customer rollups, in one transaction.
func (s *SQLiteStore) ReplaceSchedule(loan *models.Loan, keep int, appended []*models.Installment, amount decimal.Decimal, agg *models.CustomerAggregates) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE loans SET principal = ?, repayable = ?, installment_count = ?, origination_date = ?, status = ?, note = ?, updated_at = ?
		WHERE id = ?`,
		loan.Principal, loan.Repayable, loan.InstallmentCount, formatDate(loan.OriginationDate),
		loan.Status, loan.Note, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if err := requireRow(result, "loan"); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM installments WHERE loan_id = ? AND seq > ?`, loan.ID.String(), keep); err != nil {
		return fmt.Errorf("failed to truncate schedule: %w", err)
	}
	if err := insertInstallments(tx, appended); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE installments SET amount = ? WHERE loan_id = ?`, amount, loan.ID.String()); err != nil {
		return fmt.Errorf("failed to rewrite installment amounts: %w", err)
	}
	if _, err := execAggregates(tx, loan.CustomerID, agg); err != nil {
		return fmt.Errorf("failed to update customer aggregates: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetLoanPaid(loan *models.Loan, agg *models.CustomerAggregates) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE loans SET status = ?, updated_at = ? WHERE id = ?`,
		models.LoanPaid, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark loan paid: %w", err)
	}
	if err := requireRow(result, "loan"); err != nil {
		return err
	}
	if _, err := execAggregates(tx, loan.CustomerID, agg); err != nil {
		return fmt.Errorf("failed to update customer aggregates: %w", err)
	}
	return tx.Commit()
}

// DeleteLoan removes a loan and its installments and writes the customer's
// adjusted rollups within a transaction.
func (s *SQLiteStore) DeleteLoan(loan *models.Loan, agg *models.CustomerAggregates) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := execAggregates(tx, loan.CustomerID, agg); err != nil {
		return fmt.Errorf("failed to update customer aggregates: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, loan.ID.String()); err != nil {
		return fmt.Errorf("failed to delete associated installments: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, loan.ID.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if err := requireRow(result, "loan"); err != nil {
		return err
	}
	return tx.Commit()
}

// MaxPrincipal returns the largest principal among the customer's loans,
// excluding the given loan. Zero when no other loan exists.
func (s *SQLiteStore) MaxPrincipal(customerID uuid.UUID, excludeLoanID uuid.UUID) (decimal.Decimal, error) {
	var principal decimal.Decimal
	err := s.db.QueryRow(
		`SELECT principal FROM loans WHERE customer_id = ? AND id <> ?
		ORDER BY CAST(principal AS REAL) DESC LIMIT 1`,
		customerID.String(), excludeLoanID.String(),
	).Scan(&principal)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query max principal: %w", err)
	}
	return principal, nil
}

// --- installments ---

const installmentColumns = `id, loan_id, seq, amount, due_date, paid_date, status`

func (s *SQLiteStore) GetInstallment(id uuid.UUID) (*models.Installment, error) {
	row := s.db.QueryRow(`SELECT `+installmentColumns+` FROM installments WHERE id = ?`, id.String())
	inst, err := scanInstallment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("installment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

func scanInstallment(r rowScanner) (*models.Installment, error) {
	var inst models.Installment
	var idStr, loanIDStr, due string
	var paid sql.NullTime
	if err := r.Scan(&idStr, &loanIDStr, &inst.Sequence, &inst.Amount, &due, &paid, &inst.Status); err != nil {
		return nil, err
	}
	inst.ID = uuid.MustParse(idStr)
	inst.LoanID = uuid.MustParse(loanIDStr)
	date, err := parseDate(due)
	if err != nil {
		return nil, fmt.Errorf("bad due date %q: %w", due, err)
	}
	inst.DueDate = date
	if paid.Valid {
		inst.PaidDate = &paid.Time
	}
	return &inst, nil
}

func (s *SQLiteStore) ListInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.db.Query(
		`SELECT `+installmentColumns+` FROM installments WHERE loan_id = ? ORDER BY seq ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return installments, nil
}

func (s *SQLiteStore) CountInstallments(loanID uuid.UUID, status models.InstallmentStatus) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM installments WHERE loan_id = ? AND status = ?`,
		loanID.String(), status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count installments: %w", err)
	}
	return n, nil
}

// ApplyInstallmentStatus writes the toggled installment, the loan's derived
// status and the customer's adjusted rollups in one transaction.
func (s *SQLiteStore) ApplyInstallmentStatus(inst *models.Installment, loanStatus models.LoanStatus, customerID uuid.UUID, agg *models.CustomerAggregates) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE installments SET status = ?, paid_date = ? WHERE id = ?`,
		inst.Status, inst.PaidDate, inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	if err := requireRow(result, "installment"); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE loans SET status = ? WHERE id = ?`, loanStatus, inst.LoanID.String()); err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	if _, err := execAggregates(tx, customerID, agg); err != nil {
		return fmt.Errorf("failed to update customer aggregates: %w", err)
	}
	return tx.Commit()
}

// --- overdue sweep ---

func (s *SQLiteStore) MarkOverdueInstallments(asOf time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE installments SET status = ? WHERE status = ? AND due_date < ?`,
		models.InstallmentOverdue, models.InstallmentPending, formatDate(asOf),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue installments: %w", err)
	}
	return result.RowsAffected()
}

// MarkOverdueLoans flags Pending loans that carry at least one Overdue
// installment. Paid loans are never touched.
func (s *SQLiteStore) MarkOverdueLoans() (int64, error) {
	result, err := s.db.Exec(
		`UPDATE loans SET status = ? WHERE status = ?
		AND id IN (SELECT DISTINCT loan_id FROM installments WHERE status = ?)`,
		models.LoanOverdue, models.LoanPending, models.InstallmentOverdue,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue loans: %w", err)
	}
	return result.RowsAffected()
}

// RefreshDelinquencyCounters recomputes, for every customer, the overdue
// installment count and the count of loans with at least one overdue
// installment, from a live aggregation.
func (s *SQLiteStore) RefreshDelinquencyCounters() error {
	_, err := s.db.Exec(
		`UPDATE customers SET
			overdue_installments = (
				SELECT COUNT(*) FROM installments i
				JOIN loans l ON l.id = i.loan_id
				WHERE l.customer_id = customers.id AND i.status = ?
			),
			overdue_loans = (
				SELECT COUNT(DISTINCT l.id) FROM loans l
				JOIN installments i ON i.loan_id = l.id
				WHERE l.customer_id = customers.id AND i.status = ?
			)`,
		models.InstallmentOverdue, models.InstallmentOverdue,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh delinquency counters: %w", err)
	}
	return nil
}

// --- users ---

func (s *SQLiteStore) CreateUser(u *models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByUsername(username string) (*models.User, error) {
	var u models.User
	var idStr string
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&idStr, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.ID = uuid.MustParse(idStr)
	return &u, nil
}

// --- cashbox ---

func (s *SQLiteStore) CashBoxTotal() (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := s.db.QueryRow(`SELECT total FROM cashbox WHERE id = 1`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cashbox total: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) AddToCashBox(amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total decimal.Decimal
	if err := tx.QueryRow(`SELECT total FROM cashbox WHERE id = 1`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cashbox total: %w", err)
	}
	total = total.Add(amount)
	if _, err := tx.Exec(`UPDATE cashbox SET total = ? WHERE id = 1`, total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update cashbox: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func requireRow(result sql.Result, entity string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
