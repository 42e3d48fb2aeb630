package http

import (
	"time"

	"pairledger/internal/core"
)

// JSON views of the domain types. Money travels as integer cents plus a
// preformatted decimal string.

type moneyView struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

type partnerView struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

type statusView struct {
	TotalA      moneyView `json:"totalA"`
	TotalB      moneyView `json:"totalB"`
	NetBalance  moneyView `json:"netBalance"`
	LastUpdated string    `json:"lastUpdated"`
}

type coupleView struct {
	ID        string       `json:"id"`
	PartnerA  partnerView  `json:"partnerA"`
	PartnerB  *partnerView `json:"partnerB,omitempty"`
	JoinCode  string       `json:"joinCode"`
	Status    statusView   `json:"status"`
	CreatedAt string       `json:"createdAt"`
}

type expenseView struct {
	ID        string    `json:"id"`
	CoupleID  string    `json:"coupleId"`
	Amount    moneyView `json:"amount"`
	Category  string    `json:"category"`
	PaidBy    string    `json:"paidBy"`
	Note      string    `json:"note,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	Timestamp string    `json:"timestamp"`
}

type userView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	PhotoURL string  `json:"photoUrl,omitempty"`
	CoupleID *string `json:"coupleId,omitempty"`
}

func toMoneyView(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Formatted: m.Format()}
}

func toStatusView(s core.CoupleStatus) statusView {
	v := statusView{
		TotalA:     toMoneyView(s.TotalA),
		TotalB:     toMoneyView(s.TotalB),
		NetBalance: toMoneyView(s.NetBalance),
	}
	if !s.LastUpdated.IsZero() {
		v.LastUpdated = s.LastUpdated.UTC().Format(time.RFC3339)
	}
	return v
}

func toCoupleView(c *core.Couple) coupleView {
	v := coupleView{
		ID: c.ID,
		PartnerA: partnerView{
			UserID:      c.PartnerA.UserID,
			DisplayName: c.PartnerA.DisplayName,
			PhotoURL:    c.PartnerA.PhotoURL,
		},
		JoinCode:  c.JoinCode,
		Status:    toStatusView(c.Status),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.PartnerB != nil {
		v.PartnerB = &partnerView{
			UserID:      c.PartnerB.UserID,
			DisplayName: c.PartnerB.DisplayName,
			PhotoURL:    c.PartnerB.PhotoURL,
		}
	}
	return v
}

func toExpenseView(e core.Expense) expenseView {
	return expenseView{
		ID:        e.ID,
		CoupleID:  e.CoupleID,
		Amount:    toMoneyView(e.Amount),
		Category:  e.Category,
		PaidBy:    e.PaidBy,
		Note:      e.Note,
		Emoji:     e.Emoji,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
}

func toUserView(u *core.User) userView {
	return userView{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		PhotoURL: u.PhotoURL,
		CoupleID: u.CoupleID,
	}
}
