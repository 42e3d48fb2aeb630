// Package registry manages couple lifecycle: creation with a fresh join
// code, and pairing a second partner through code redemption.
package registry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"

	"pairledger/internal/core"
)

const (
	joinCodeLength = 6
	// Attempts before giving up on finding an unused code. With 10^6
	// possible codes a collision streak this long means the keyspace is
	// effectively exhausted.
	maxCodeAttempts = 10
)

// Store is the subset of the persistence layer the registry needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*core.User, error)
	CreateCouple(ctx context.Context, c *core.Couple) error
	GetCouple(ctx context.Context, id string) (*core.Couple, error)
	FindCoupleByJoinCode(ctx context.Context, code string) (*core.Couple, error)
	JoinCodeActive(ctx context.Context, code string) (bool, error)
	BindPartner(ctx context.Context, coupleID string, partner core.PartnerRef) error
}

type Service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// CreateCouple opens a new couple with the caller as partner A and a
// freshly generated join code. The caller must not already be paired.
func (s *Service) CreateCouple(ctx context.Context, userID string) (*core.Couple, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load creator: %w", err)
	}
	if user.CoupleID != nil {
		return nil, fmt.Errorf("user %s: %w", userID, core.ErrAlreadyPaired)
	}

	code, err := s.generateJoinCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate join code: %w", err)
	}

	couple := &core.Couple{
		ID: uuid.New().String(),
		PartnerA: core.PartnerRef{
			UserID:      user.ID,
			DisplayName: user.Name,
			PhotoURL:    user.PhotoURL,
		},
		JoinCode: code,
	}

	if err := s.store.CreateCouple(ctx, couple); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Couple opened", "couple_id", couple.ID, "creator", userID)
	return couple, nil
}

// JoinCouple redeems a join code for the caller. Rebinding the same user
// to the couple they already joined succeeds without change.
func (s *Service) JoinCouple(ctx context.Context, userID, code string) (*core.Couple, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load joiner: %w", err)
	}

	couple, err := s.store.FindCoupleByJoinCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// A user who already belongs to a different couple cannot redeem.
	// Redeeming the code of their own couple again is idempotent.
	if user.CoupleID != nil && *user.CoupleID != couple.ID {
		return nil, fmt.Errorf("user %s: %w", userID, core.ErrAlreadyPaired)
	}

	partner := core.PartnerRef{
		UserID:      user.ID,
		DisplayName: user.Name,
		PhotoURL:    user.PhotoURL,
	}
	if err := s.store.BindPartner(ctx, couple.ID, partner); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Join code redeemed", "couple_id", couple.ID, "partner_b", userID)
	return s.store.GetCouple(ctx, couple.ID)
}

// GetCouple loads a couple for one of its partners. Outsiders get
// ErrNotFound rather than a permission error so couple ids do not leak.
func (s *Service) GetCouple(ctx context.Context, userID, coupleID string) (*core.Couple, error) {
	couple, err := s.store.GetCouple(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if !couple.IsPartner(userID) {
		return nil, fmt.Errorf("couple %s: %w", coupleID, core.ErrNotFound)
	}
	return couple, nil
}

// generateJoinCode draws random 6-digit codes until one is not held by a
// couple with an open partner slot. Codes of fully paired couples may be
// reissued.
func (s *Service) generateJoinCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomDigits(joinCodeLength)
		if err != nil {
			return "", err
		}
		active, err := s.store.JoinCodeActive(ctx, code)
		if err != nil {
			return "", err
		}
		if !active {
			return code, nil
		}
		s.log.WarnContext(ctx, "Join code collision, retrying", "attempt", attempt+1)
	}
	return "", fmt.Errorf("no unused join code after %d attempts", maxCodeAttempts)
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("read random digit: %w", err)
		}
		digits[i] = '0' + byte(v.Int64())
	}
	return string(digits), nil
}
