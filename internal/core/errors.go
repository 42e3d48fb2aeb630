package core

import "errors"

// Service-level sentinel errors. The HTTP layer maps these onto status
// codes; everything else wraps them with fmt.Errorf("...: %w", err).
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrInvalidCode     = errors.New("invalid join code")
	ErrCodeAlreadyUsed = errors.New("join code already redeemed")
	ErrAlreadyPaired   = errors.New("user already belongs to a couple")
)
