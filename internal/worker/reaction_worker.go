// Package worker reacts to expense-created events: it re-reconciles the
// couple's balance and notifies the couple's registered devices.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pairledger/internal/amqp"
	"pairledger/internal/cache"
	"pairledger/internal/core"
	"pairledger/internal/metrics"
	"pairledger/internal/push"
)

// Store is the subset of the persistence layer the worker needs.
type Store interface {
	GetCouple(ctx context.Context, id string) (*core.Couple, error)
	ListPushTokens(ctx context.Context, userIDs []string) ([]string, error)
	CouplesWithExpensesSince(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// Recalculator rebuilds a couple's balance status.
type Recalculator interface {
	Recalculate(ctx context.Context, coupleID string) (*core.CoupleStatus, error)
}

const tokenCacheTTL = 5 * time.Minute

// ReactionWorker processes expense-created events and runs the periodic
// sweep that heals couples whose events were lost.
type ReactionWorker struct {
	store     Store
	recon     Recalculator
	sender    push.Sender
	tokens    *cache.TTLCache[[]string]
	batchSize int
}

func NewReactionWorker(store Store, recon Recalculator, sender push.Sender, batchSize int) *ReactionWorker {
	return &ReactionWorker{
		store:     store,
		recon:     recon,
		sender:    sender,
		tokens:    cache.New[[]string](256, tokenCacheTTL),
		batchSize: batchSize,
	}
}

// StartTokenJanitor begins periodic cleanup of the token cache.
func (w *ReactionWorker) StartTokenJanitor(ctx context.Context) {
	w.tokens.StartJanitor(ctx, tokenCacheTTL)
}

// HandleExpenseCreated processes one event. Both reaction steps are best
// effort: a failed recalculation or a failed notification is logged and
// the event is still acknowledged, because the ledger record is already
// durable and the sweep re-reconciles the couple later.
func (w *ReactionWorker) HandleExpenseCreated(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	metrics.EventsConsumedTotal.Inc()

	slog.InfoContext(ctx, "Processing expense created event",
		"couple_id", msg.CoupleID,
		"expense_id", msg.ExpenseID)

	if _, err := w.recon.Recalculate(ctx, msg.CoupleID); err != nil {
		slog.ErrorContext(ctx, "Failed to recalculate balance",
			"error", err,
			"couple_id", msg.CoupleID)
	}

	if err := w.notifyCouple(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to notify couple",
			"error", err,
			"couple_id", msg.CoupleID,
			"expense_id", msg.ExpenseID)
	}

	return nil
}

// notifyCouple pushes the notification to every device registered by
// either partner, the author's own devices included.
func (w *ReactionWorker) notifyCouple(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	couple, err := w.store.GetCouple(ctx, msg.CoupleID)
	if err != nil {
		return fmt.Errorf("load couple: %w", err)
	}

	tokens, err := w.coupleTokens(ctx, couple)
	if err != nil {
		return fmt.Errorf("load push tokens: %w", err)
	}
	if len(tokens) == 0 {
		slog.InfoContext(ctx, "Couple has no registered devices", "couple_id", msg.CoupleID)
		return nil
	}

	return w.sender.Send(ctx, tokens, "New expense added", NotificationBody(msg.AmountCents, msg.Note))
}

func (w *ReactionWorker) coupleTokens(ctx context.Context, couple *core.Couple) ([]string, error) {
	if tokens, ok := w.tokens.Get(couple.ID); ok {
		return tokens, nil
	}

	userIDs := []string{couple.PartnerA.UserID}
	if couple.PartnerB != nil {
		userIDs = append(userIDs, couple.PartnerB.UserID)
	}
	tokens, err := w.store.ListPushTokens(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	w.tokens.Set(couple.ID, tokens)
	return tokens, nil
}

// NotificationBody renders the push body as amount and note, with a
// fixed fallback when the note is empty.
func NotificationBody(amountCents int64, note string) string {
	if note == "" {
		note = "Expense"
	}
	return fmt.Sprintf("%s • %s", core.Money{Cents: amountCents}.Format(), note)
}

// SweepOnce re-reconciles every couple with recent ledger activity. This
// is the recovery path for lost events; reconciliation is a full
// recompute, so sweeping an already consistent couple changes nothing.
func (w *ReactionWorker) SweepOnce(ctx context.Context, since time.Time) error {
	coupleIDs, err := w.store.CouplesWithExpensesSince(ctx, since, w.batchSize)
	if err != nil {
		return fmt.Errorf("list active couples: %w", err)
	}
	if len(coupleIDs) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Sweeping active couples", "count", len(coupleIDs))
	for _, id := range coupleIDs {
		if _, err := w.recon.Recalculate(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Sweep recalculation failed", "error", err, "couple_id", id)
		}
	}
	return nil
}

// RunSweep sweeps on an interval until ctx ends. Each pass looks back
// two intervals so a couple active right around a tick is never missed.
func (w *ReactionWorker) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SweepOnce(ctx, time.Now().Add(-2*interval)); err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}
