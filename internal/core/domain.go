package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Money struct {
		Cents int64
	}

	// User is an account identity. CoupleID is nil until the user creates
	// or joins a couple, and is set exactly once per pairing.
	User struct {
		ID        string
		Name      string
		Email     string
		PhotoURL  string
		CoupleID  *string
		CreatedAt time.Time
	}

	// PartnerRef is the denormalized identity snapshot embedded in a couple.
	PartnerRef struct {
		UserID      string
		DisplayName string
		PhotoURL    string
	}

	// CoupleStatus holds the derived monthly reconciliation. It is
	// recomputed wholesale on every reconciliation run, never hand-edited.
	CoupleStatus struct {
		TotalA      Money
		TotalB      Money
		NetBalance  Money // TotalA - TotalB; positive means partner A paid more
		LastUpdated time.Time
	}

	Couple struct {
		ID        string
		PartnerA  PartnerRef
		PartnerB  *PartnerRef
		JoinCode  string
		Status    CoupleStatus
		CreatedAt time.Time
	}

	// Expense is an append-only ledger record owned by exactly one couple.
	Expense struct {
		ID        string
		CoupleID  string
		Amount    Money
		Category  string
		PaidBy    string
		Note      string
		Emoji     string
		Timestamp time.Time
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyCategory = errors.New("empty category")
	ErrEmptyPayer    = errors.New("empty payer")
	ErrNoteTooLong   = errors.New("note too long (max 200 characters)")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(e.PaidBy) == "" {
		return ErrEmptyPayer
	}
	if len(e.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}

// Paired reports whether both partner slots are occupied.
func (c Couple) Paired() bool {
	return c.PartnerB != nil
}

// IsPartner reports whether userID is bound to this couple.
func (c Couple) IsPartner(userID string) bool {
	if c.PartnerA.UserID == userID {
		return true
	}
	return c.PartnerB != nil && c.PartnerB.UserID == userID
}

// OtherPartner returns the partner bound to the couple who is not userID.
// Returns nil when the couple has no second partner or userID is unknown.
func (c Couple) OtherPartner(userID string) *PartnerRef {
	if c.PartnerA.UserID == userID {
		return c.PartnerB
	}
	if c.PartnerB != nil && c.PartnerB.UserID == userID {
		a := c.PartnerA
		return &a
	}
	return nil
}
