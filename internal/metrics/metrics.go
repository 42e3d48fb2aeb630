// Package metrics exposes Prometheus counters for the reconciliation
// pipeline and the push fan-out.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairledger_recalculations_total",
		Help: "Balance recalculations by outcome.",
	}, []string{"outcome"})

	ExpensesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairledger_expenses_created_total",
		Help: "Expenses appended to the ledger.",
	})

	PushNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairledger_push_notifications_total",
		Help: "Push notification sends by outcome.",
	}, []string{"outcome"})

	EventsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairledger_events_consumed_total",
		Help: "Expense-created events consumed by the worker.",
	})
)
