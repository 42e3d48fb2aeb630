// Package ledger owns the append-only expense log and announces new
// records to the reaction pipeline.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pairledger/internal/amqp"
	"pairledger/internal/core"
	"pairledger/internal/metrics"
)

// Store is the subset of the persistence layer the ledger needs.
type Store interface {
	GetCouple(ctx context.Context, id string) (*core.Couple, error)
	AppendExpense(ctx context.Context, e *core.Expense) error
	ListExpenses(ctx context.Context, coupleID string, start, end time.Time) ([]core.Expense, error)
}

// Publisher hands expense-created events to the reaction worker.
type Publisher interface {
	PublishExpenseCreated(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error
}

type Service struct {
	store     Store
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

func NewService(store Store, publisher Publisher, log *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, log: log, now: time.Now}
}

// AddExpense validates and appends an expense for the caller's couple,
// then publishes the expense-created event. A publish failure does not
// fail the append; the worker's periodic sweep reconciles the couple
// later.
func (s *Service) AddExpense(ctx context.Context, userID string, e *core.Expense) (*core.Expense, error) {
	couple, err := s.store.GetCouple(ctx, e.CoupleID)
	if err != nil {
		return nil, err
	}
	if !couple.IsPartner(userID) {
		return nil, fmt.Errorf("couple %s: %w", e.CoupleID, core.ErrNotFound)
	}
	if !couple.IsPartner(e.PaidBy) {
		return nil, fmt.Errorf("payer %s is not a partner: %w", e.PaidBy, core.ErrInvalidArgument)
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
	}

	if err := s.store.AppendExpense(ctx, e); err != nil {
		return nil, err
	}
	metrics.ExpensesCreatedTotal.Inc()

	msg := amqp.NewExpenseCreatedMessage(e.CoupleID, e.ID, e.Amount.Cents, e.PaidBy, e.Note)
	if err := s.publisher.PublishExpenseCreated(ctx, msg); err != nil {
		s.log.ErrorContext(ctx, "Failed to publish expense created event",
			"error", err,
			"expense_id", e.ID,
			"couple_id", e.CoupleID)
	}

	return e, nil
}

// ListMonth returns the couple's expenses for the month containing ref,
// newest first.
func (s *Service) ListMonth(ctx context.Context, userID, coupleID string, ref time.Time) ([]core.Expense, error) {
	couple, err := s.store.GetCouple(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if !couple.IsPartner(userID) {
		return nil, fmt.Errorf("couple %s: %w", coupleID, core.ErrNotFound)
	}

	start, end := core.MonthRange(ref)
	return s.store.ListExpenses(ctx, coupleID, start, end)
}
