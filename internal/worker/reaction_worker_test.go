package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"pairledger/internal/amqp"
	"pairledger/internal/core"
)

type fakeStore struct {
	couples       map[string]*core.Couple
	tokens        map[string][]string
	tokenCalls    int
	activeCouples []string
	activeErr     error
	listTokensErr error
}

func (s *fakeStore) GetCouple(_ context.Context, id string) (*core.Couple, error) {
	c, ok := s.couples[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) ListPushTokens(_ context.Context, userIDs []string) ([]string, error) {
	s.tokenCalls++
	if s.listTokensErr != nil {
		return nil, s.listTokensErr
	}
	var out []string
	for _, id := range userIDs {
		out = append(out, s.tokens[id]...)
	}
	return out, nil
}

func (s *fakeStore) CouplesWithExpensesSince(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return s.activeCouples, s.activeErr
}

type fakeRecon struct {
	calls []string
	err   error
}

func (r *fakeRecon) Recalculate(_ context.Context, coupleID string) (*core.CoupleStatus, error) {
	r.calls = append(r.calls, coupleID)
	if r.err != nil {
		return nil, r.err
	}
	return &core.CoupleStatus{}, nil
}

type fakeSender struct {
	tokens []string
	title  string
	body   string
	calls  int
	err    error
}

func (s *fakeSender) Send(_ context.Context, tokens []string, title, body string) error {
	s.calls++
	s.tokens = tokens
	s.title = title
	s.body = body
	return s.err
}

func pairedCouple() *core.Couple {
	return &core.Couple{
		ID:       "c1",
		PartnerA: core.PartnerRef{UserID: "alice", DisplayName: "Alice"},
		PartnerB: &core.PartnerRef{UserID: "bob", DisplayName: "Bob"},
	}
}

func TestHandleExpenseCreated(t *testing.T) {
	store := &fakeStore{
		couples: map[string]*core.Couple{"c1": pairedCouple()},
		tokens:  map[string][]string{"bob": {"tok-1", "tok-2"}},
	}
	recon := &fakeRecon{}
	sender := &fakeSender{}
	w := NewReactionWorker(store, recon, sender, 100)

	msg := &amqp.ExpenseCreatedMessage{
		CoupleID:    "c1",
		ExpenseID:   "e1",
		AmountCents: 1250,
		PaidBy:      "alice",
		Note:        "groceries",
	}
	if err := w.HandleExpenseCreated(context.Background(), msg); err != nil {
		t.Fatalf("HandleExpenseCreated: %v", err)
	}

	if len(recon.calls) != 1 || recon.calls[0] != "c1" {
		t.Errorf("recalculate calls = %v, want [c1]", recon.calls)
	}
	if sender.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", sender.calls)
	}
	// both partners' devices get the push, the author's included
	if len(sender.tokens) != 2 {
		t.Errorf("sent to %d tokens, want 2", len(sender.tokens))
	}
	if sender.title != "New expense added" {
		t.Errorf("title = %q", sender.title)
	}
	if sender.body != "12.50 • groceries" {
		t.Errorf("body = %q, want %q", sender.body, "12.50 • groceries")
	}
}

func TestHandleExpenseCreatedSwallowsFailures(t *testing.T) {
	store := &fakeStore{
		couples: map[string]*core.Couple{"c1": pairedCouple()},
		tokens:  map[string][]string{"bob": {"tok-1"}},
	}
	recon := &fakeRecon{err: errors.New("db down")}
	sender := &fakeSender{err: errors.New("fcm down")}
	w := NewReactionWorker(store, recon, sender, 100)

	msg := &amqp.ExpenseCreatedMessage{CoupleID: "c1", AmountCents: 100, PaidBy: "alice"}
	if err := w.HandleExpenseCreated(context.Background(), msg); err != nil {
		t.Errorf("failures must not propagate, got %v", err)
	}
}

func TestNotifyUnpairedCoupleUsesCreatorDevices(t *testing.T) {
	couple := pairedCouple()
	couple.PartnerB = nil
	store := &fakeStore{
		couples: map[string]*core.Couple{"c1": couple},
		tokens:  map[string][]string{"alice": {"tok-a"}},
	}
	sender := &fakeSender{}
	w := NewReactionWorker(store, &fakeRecon{}, sender, 100)

	msg := &amqp.ExpenseCreatedMessage{CoupleID: "c1", AmountCents: 100, PaidBy: "alice"}
	if err := w.HandleExpenseCreated(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if sender.calls != 1 || len(sender.tokens) != 1 {
		t.Errorf("sender calls = %d tokens = %v, want creator's device only", sender.calls, sender.tokens)
	}
}

func TestNotifySkipsWhenNoTokens(t *testing.T) {
	store := &fakeStore{
		couples: map[string]*core.Couple{"c1": pairedCouple()},
		tokens:  map[string][]string{},
	}
	sender := &fakeSender{}
	w := NewReactionWorker(store, &fakeRecon{}, sender, 100)

	msg := &amqp.ExpenseCreatedMessage{CoupleID: "c1", AmountCents: 100, PaidBy: "alice"}
	if err := w.HandleExpenseCreated(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if sender.calls != 0 {
		t.Errorf("sender called %d times with no tokens, want 0", sender.calls)
	}
}

func TestCoupleTokensCached(t *testing.T) {
	store := &fakeStore{
		couples: map[string]*core.Couple{"c1": pairedCouple()},
		tokens:  map[string][]string{"bob": {"tok-1"}},
	}
	w := NewReactionWorker(store, &fakeRecon{}, &fakeSender{}, 100)

	msg := &amqp.ExpenseCreatedMessage{CoupleID: "c1", AmountCents: 100, PaidBy: "alice"}
	for i := 0; i < 3; i++ {
		if err := w.HandleExpenseCreated(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}
	if store.tokenCalls != 1 {
		t.Errorf("token lookups = %d, want 1 (cached)", store.tokenCalls)
	}
}

func TestNotificationBody(t *testing.T) {
	cases := []struct {
		cents int64
		note  string
		want  string
	}{
		{1250, "groceries", "12.50 • groceries"},
		{500, "", "5.00 • Expense"},
		{5, "tip", "0.05 • tip"},
	}
	for _, tc := range cases {
		if got := NotificationBody(tc.cents, tc.note); got != tc.want {
			t.Errorf("NotificationBody(%d, %q) = %q, want %q", tc.cents, tc.note, got, tc.want)
		}
	}
}

func TestSweepOnce(t *testing.T) {
	store := &fakeStore{activeCouples: []string{"c1", "c2"}}
	recon := &fakeRecon{}
	w := NewReactionWorker(store, recon, &fakeSender{}, 100)

	if err := w.SweepOnce(context.Background(), time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if len(recon.calls) != 2 {
		t.Errorf("recalculated %d couples, want 2", len(recon.calls))
	}
}

func TestSweepOnceContinuesPastFailures(t *testing.T) {
	store := &fakeStore{activeCouples: []string{"c1", "c2"}}
	recon := &fakeRecon{err: errors.New("boom")}
	w := NewReactionWorker(store, recon, &fakeSender{}, 100)

	if err := w.SweepOnce(context.Background(), time.Now()); err != nil {
		t.Errorf("per-couple failures must not abort the sweep, got %v", err)
	}
	if len(recon.calls) != 2 {
		t.Errorf("recalculated %d couples, want 2", len(recon.calls))
	}
}

func TestSweepOncePropagatesListError(t *testing.T) {
	store := &fakeStore{activeErr: errors.New("db gone")}
	w := NewReactionWorker(store, &fakeRecon{}, &fakeSender{}, 100)

	if err := w.SweepOnce(context.Background(), time.Now()); err == nil {
		t.Error("list failure should be reported")
	}
}
