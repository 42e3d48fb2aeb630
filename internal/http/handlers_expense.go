package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pairledger/internal/core"
)

type addExpenseRequest struct {
	Amount    string `json:"amount"`
	Category  string `json:"category"`
	PaidBy    string `json:"paidBy"`
	Note      string `json:"note"`
	Emoji     string `json:"emoji"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Amount))
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("invalid amount %q: %w", req.Amount, core.ErrInvalidArgument))
		return
	}

	e := &core.Expense{
		CoupleID: r.PathValue("id"),
		Amount:   core.Money{Cents: cents},
		Category: strings.TrimSpace(req.Category),
		PaidBy:   strings.TrimSpace(req.PaidBy),
		Note:     strings.TrimSpace(req.Note),
		Emoji:    req.Emoji,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeServiceError(w, r, fmt.Errorf("invalid timestamp: %w", core.ErrInvalidArgument))
			return
		}
		e.Timestamp = ts
	}

	saved, err := s.ledger.AddExpense(r.Context(), callerID(r), e)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseView(*saved))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 || y > 2200 {
			writeServiceError(w, r, fmt.Errorf("invalid year %q: %w", v, core.ErrInvalidArgument))
			return
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeServiceError(w, r, fmt.Errorf("invalid month %q: %w", v, core.ErrInvalidArgument))
			return
		}
		month = m
	}
	ref := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())

	expenses, err := s.ledger.ListMonth(r.Context(), callerID(r), r.PathValue("id"), ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]expenseView, 0, len(expenses))
	for _, e := range expenses {
		views = append(views, toExpenseView(e))
	}
	writeJSON(w, http.StatusOK, views)
}
