// Package recon derives each couple's monthly balance status from the
// expense ledger.
package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pairledger/internal/core"
	"pairledger/internal/metrics"
)

// Store is the subset of the persistence layer reconciliation needs.
type Store interface {
	GetCouple(ctx context.Context, id string) (*core.Couple, error)
	SumExpensesByPayer(ctx context.Context, coupleID string, start, end time.Time) (map[string]int64, error)
	UpdateCoupleStatus(ctx context.Context, coupleID string, status core.CoupleStatus) error
}

type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Recalculate rebuilds the couple's status from scratch for the current
// calendar month and persists it. The computation reads the full month
// every time, so running it twice in a row is a no-op and concurrent
// runs converge on the same result.
func (s *Service) Recalculate(ctx context.Context, coupleID string) (*core.CoupleStatus, error) {
	couple, err := s.store.GetCouple(ctx, coupleID)
	if err != nil {
		metrics.RecalculationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	now := s.now()
	start, end := core.MonthRange(now)

	sums, err := s.store.SumExpensesByPayer(ctx, coupleID, start, end)
	if err != nil {
		metrics.RecalculationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("aggregate month: %w", err)
	}

	// Amounts paid by ids outside the couple are ignored rather than
	// failing the run.
	totalA := sums[couple.PartnerA.UserID]
	var totalB int64
	if couple.PartnerB != nil {
		totalB = sums[couple.PartnerB.UserID]
	}

	status := core.CoupleStatus{
		TotalA:      core.Money{Cents: totalA},
		TotalB:      core.Money{Cents: totalB},
		NetBalance:  core.Money{Cents: totalA - totalB},
		LastUpdated: now,
	}

	if err := s.store.UpdateCoupleStatus(ctx, coupleID, status); err != nil {
		metrics.RecalculationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.RecalculationsTotal.WithLabelValues("ok").Inc()
	s.log.InfoContext(ctx, "Couple status reconciled",
		"couple_id", coupleID,
		"total_a_cents", totalA,
		"total_b_cents", totalB,
		"net_balance_cents", totalA-totalB,
		"period_start", start.Format(time.RFC3339))
	return &status, nil
}
