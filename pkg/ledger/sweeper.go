package ledger

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mvribeiro/loanbook/pkg/store"
)

// Sweeper ages Pending installments past their due date into Overdue and
// cascades the effect to loans and customer delinquency counters. At most
// one sweep runs at a time; a trigger that arrives while one is in flight
// is a silent no-op, not an error.
type Sweeper struct {
	storage store.Storage
	logger  *zap.Logger
	now     func() time.Time
	running atomic.Bool
}

func NewSweeper(s store.Storage, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		storage: s,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes one sweep pass. The returned bool reports whether this call
// actually swept: false means another sweep held the guard. The guard is an
// atomic try-lock released when the pass finishes, success or failure.
//
// The pass is three sub-steps, each atomic on its own; a failing sub-step
// aborts the rest and leaves state as of the last committed one. Running the
// sweep twice with no time elapsed changes nothing on the second run.
func (s *Sweeper) Run() (bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("overdue sweep already in flight, skipping")
		return false, nil
	}
	defer s.running.Store(false)

	started := s.now()

	installments, err := s.storage.MarkOverdueInstallments(started)
	if err != nil {
		return true, storeErr("mark overdue installments", err)
	}
	loans, err := s.storage.MarkOverdueLoans()
	if err != nil {
		return true, storeErr("mark overdue loans", err)
	}
	if err := s.storage.RefreshDelinquencyCounters(); err != nil {
		return true, storeErr("refresh delinquency counters", err)
	}

	s.logger.Info("overdue sweep completed",
		zap.Int64("installments_flagged", installments),
		zap.Int64("loans_flagged", loans),
		zap.Duration("elapsed", s.now().Sub(started)),
	)
	return true, nil
}
