package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvribeiro/loanbook/pkg/ledger"
	"github.com/mvribeiro/loanbook/pkg/models"
	"github.com/mvribeiro/loanbook/pkg/store"
)

// Server holds the ledger instance and the auth configuration.
type Server struct {
	ledger    *ledger.Ledger
	storage   store.Storage // kept to close it and for user lookups
	logger    *zap.Logger
	jwtSecret []byte
}

func NewServer(s store.Storage, logger *zap.Logger, jwtSecret []byte) *Server {
	return &Server{
		ledger:    ledger.NewLedger(s, logger),
		storage:   s,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/login", s.loginHandler).Methods("POST")
	router.HandleFunc("/validate-token", s.validateTokenHandler).Methods("GET")

	api := router.NewRoute().Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	api.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	api.HandleFunc("/customers/{id}/stats", s.customerStatsHandler).Methods("GET")
	api.HandleFunc("/customers/{id}/note", s.updateCustomerNoteHandler).Methods("PUT")
	api.HandleFunc("/customers/{id}", s.updateCustomerHandler).Methods("PUT")
	api.HandleFunc("/customers/{id}", s.deleteCustomerHandler).Methods("DELETE")

	api.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	api.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/installments", s.listInstallmentsHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/paid", s.markLoanPaidHandler).Methods("PATCH")
	api.HandleFunc("/loans/{id}", s.editLoanHandler).Methods("PUT")
	api.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")

	api.HandleFunc("/installments/{id}/status", s.setInstallmentStatusHandler).Methods("PATCH")

	api.HandleFunc("/sweep", s.sweepHandler).Methods("POST")

	api.HandleFunc("/cashbox", s.getCashBoxHandler).Methods("GET")
	api.HandleFunc("/cashbox", s.updateCashBoxHandler).Methods("PUT")

	return router
}

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	var code int
	switch ledger.ErrKind(err) {
	case ledger.KindNotFound:
		code = http.StatusNotFound
	case ledger.KindValidation:
		code = http.StatusBadRequest
	case ledger.KindConflict:
		code = http.StatusConflict
	default:
		code = http.StatusInternalServerError
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respond(w, code, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

// --- customers ---

type customerRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	ReferredBy string `json:"referred_by"`
	Note       string `json:"note"`
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	customer, err := s.ledger.CreateCustomer(req.Name, req.Phone, req.Address, req.ReferredBy, req.Note)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, customer)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.ledger.ListCustomers()
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, customers)
}

// customerStatsHandler returns the customer with aggregates recomputed from
// a live aggregation rather than the stored rollup columns.
func (s *Server) customerStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}
	customer, err := s.ledger.GetCustomer(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	agg, err := s.ledger.GetCustomerAggregates(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	customer.CustomerAggregates = *agg
	s.respond(w, http.StatusOK, customer)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	customer, err := s.ledger.UpdateCustomer(id, req.Name, req.Phone, req.Address, req.ReferredBy, req.Note)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, customer)
}

func (s *Server) updateCustomerNoteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.ledger.UpdateCustomerNote(id, req.Note); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"message": "customer note updated"})
}

func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}
	if err := s.ledger.DeleteCustomer(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- loans ---

const dateLayout = "2006-01-02"

type loanRequest struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	Principal        decimal.Decimal `json:"principal"`
	Repayable        decimal.Decimal `json:"repayable"`
	InstallmentCount int             `json:"installment_count"`
	OriginationDate  string          `json:"origination_date"`
	Note             string          `json:"note"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	origination, err := time.Parse(dateLayout, req.OriginationDate)
	if err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "origination_date must be YYYY-MM-DD"})
		return
	}
	loan, err := s.ledger.CreateLoan(req.CustomerID, req.Principal, req.Repayable, req.InstallmentCount, origination, req.Note)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, loan)
}

// listLoansHandler sweeps opportunistically before returning outstanding
// loans so the delinquency data shown is current.
func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ledger.RunOverdueSweep(); err != nil {
		s.logger.Warn("opportunistic sweep failed", zap.Error(err))
	}
	loans, err := s.ledger.ListOutstandingLoans()
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, loans)
}

func (s *Server) listInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid loan ID"})
		return
	}
	installments, err := s.ledger.ListInstallments(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, installments)
}

func (s *Server) editLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid loan ID"})
		return
	}
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	origination, err := time.Parse(dateLayout, req.OriginationDate)
	if err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "origination_date must be YYYY-MM-DD"})
		return
	}
	loan, err := s.ledger.EditLoan(id, ledger.EditLoanParams{
		Principal:        req.Principal,
		Repayable:        req.Repayable,
		InstallmentCount: req.InstallmentCount,
		OriginationDate:  origination,
		Note:             req.Note,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid loan ID"})
		return
	}
	if err := s.ledger.DeleteLoan(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) markLoanPaidHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid loan ID"})
		return
	}
	if err := s.ledger.MarkLoanPaid(id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"message": "loan marked as paid"})
}

// --- installments ---

func (s *Server) setInstallmentStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid installment ID"})
		return
	}
	var req struct {
		Status models.InstallmentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	instStatus, loanStatus, err := s.ledger.SetInstallmentStatus(id, req.Status)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"installment_status": instStatus,
		"loan_status":        loanStatus,
	})
}

// --- sweep ---

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	ran, err := s.ledger.RunOverdueSweep()
	if err != nil {
		s.respondError(w, err)
		return
	}
	code := http.StatusOK
	if !ran {
		code = http.StatusAccepted
	}
	s.respond(w, code, map[string]bool{"ran": ran})
}

// --- cashbox ---

func (s *Server) getCashBoxHandler(w http.ResponseWriter, r *http.Request) {
	total, err := s.ledger.CashBoxTotal()
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
}

func (s *Server) updateCashBoxHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	total, err := s.ledger.AddToCashBox(req.Amount)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
}
