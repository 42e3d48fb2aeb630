package ledger

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"pairledger/internal/amqp"
	"pairledger/internal/core"
	"pairledger/internal/storage"
)

type capturePublisher struct {
	messages []*amqp.ExpenseCreatedMessage
	fail     bool
}

func (p *capturePublisher) PublishExpenseCreated(_ context.Context, msg *amqp.ExpenseCreatedMessage) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func newTestService(t *testing.T) (*Service, *storage.SQLiteRepository, *capturePublisher) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	pub := &capturePublisher{}
	return NewService(repo, pub, slog.Default()), repo, pub
}

func seedPairedCouple(t *testing.T, repo *storage.SQLiteRepository) *core.Couple {
	t.Helper()
	ctx := context.Background()
	for _, u := range []struct{ id, name string }{{"alice", "Alice"}, {"bob", "Bob"}} {
		if err := repo.CreateUser(ctx, &core.User{ID: u.id, Name: u.name, Email: u.id + "@example.com"}, "h"); err != nil {
			t.Fatal(err)
		}
	}
	c := &core.Couple{
		ID:       uuid.New().String(),
		PartnerA: core.PartnerRef{UserID: "alice", DisplayName: "Alice"},
		JoinCode: "123456",
	}
	if err := repo.CreateCouple(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := repo.BindPartner(ctx, c.ID, core.PartnerRef{UserID: "bob", DisplayName: "Bob"}); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAddExpense(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()
	couple := seedPairedCouple(t, repo)

	e := &core.Expense{
		CoupleID: couple.ID,
		Amount:   core.Money{Cents: 1250},
		Category: "groceries",
		PaidBy:   "alice",
		Note:     "market",
	}
	saved, err := svc.AddExpense(ctx, "alice", e)
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if saved.ID == "" {
		t.Error("expense should get an id")
	}
	if saved.Timestamp.IsZero() {
		t.Error("expense should get a timestamp")
	}

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.CoupleID != couple.ID || msg.ExpenseID != saved.ID || msg.AmountCents != 1250 || msg.PaidBy != "alice" || msg.Note != "market" {
		t.Errorf("published message = %+v", msg)
	}

	listed, err := svc.ListMonth(ctx, "bob", couple.ID, saved.Timestamp)
	if err != nil {
		t.Fatalf("ListMonth: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != saved.ID {
		t.Errorf("listed = %+v, want the saved expense", listed)
	}
}

func TestAddExpenseSurvivesPublishFailure(t *testing.T) {
	svc, repo, pub := newTestService(t)
	couple := seedPairedCouple(t, repo)
	pub.fail = true

	e := &core.Expense{
		CoupleID: couple.ID,
		Amount:   core.Money{Cents: 500},
		Category: "coffee",
		PaidBy:   "bob",
	}
	saved, err := svc.AddExpense(context.Background(), "bob", e)
	if err != nil {
		t.Fatalf("AddExpense with broker down: %v", err)
	}

	listed, err := svc.ListMonth(context.Background(), "bob", couple.ID, saved.Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 {
		t.Errorf("expense not persisted despite publish failure")
	}
}

func TestAddExpenseValidation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	couple := seedPairedCouple(t, repo)

	cases := []struct {
		name string
		e    core.Expense
	}{
		{"zero amount", core.Expense{CoupleID: couple.ID, Amount: core.Money{Cents: 0}, Category: "x", PaidBy: "alice"}},
		{"negative amount", core.Expense{CoupleID: couple.ID, Amount: core.Money{Cents: -100}, Category: "x", PaidBy: "alice"}},
		{"empty category", core.Expense{CoupleID: couple.ID, Amount: core.Money{Cents: 100}, Category: "  ", PaidBy: "alice"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := tc.e
			if _, err := svc.AddExpense(ctx, "alice", &e); !errors.Is(err, core.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestAddExpenseAccessControl(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	couple := seedPairedCouple(t, repo)
	if err := repo.CreateUser(ctx, &core.User{ID: "mallory", Name: "Mallory", Email: "m@example.com"}, "h"); err != nil {
		t.Fatal(err)
	}

	e := core.Expense{CoupleID: couple.ID, Amount: core.Money{Cents: 100}, Category: "x", PaidBy: "alice"}

	outsider := e
	if _, err := svc.AddExpense(ctx, "mallory", &outsider); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("outsider add = %v, want ErrNotFound", err)
	}

	badPayer := e
	badPayer.PaidBy = "mallory"
	if _, err := svc.AddExpense(ctx, "alice", &badPayer); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("non-partner payer = %v, want ErrInvalidArgument", err)
	}

	missing := e
	missing.CoupleID = "no-such"
	if _, err := svc.AddExpense(ctx, "alice", &missing); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing couple = %v, want ErrNotFound", err)
	}
}

func TestListMonthFiltersByPeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	couple := seedPairedCouple(t, repo)

	march := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	april := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)

	for _, ts := range []time.Time{march, march.Add(48 * time.Hour), april} {
		e := &core.Expense{
			CoupleID:  couple.ID,
			Amount:    core.Money{Cents: 100},
			Category:  "x",
			PaidBy:    "alice",
			Timestamp: ts,
		}
		if _, err := svc.AddExpense(ctx, "alice", e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.ListMonth(ctx, "alice", couple.ID, march)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("march has %d expenses, want 2", len(got))
	}
	if len(got) == 2 && got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("expenses should be newest first")
	}
}
