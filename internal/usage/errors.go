package usage

import "esign-backend/internal/shared/apperr"

var (
	// ErrNoActivePlan means the free allowance is spent and no paid plan is active.
	ErrNoActivePlan    = apperr.New(apperr.ErrForbidden, "no_active_plan", "no free signatures remaining and no active paid plan")
	ErrAccountNotFound = apperr.New(apperr.ErrNotFound, "not_found", "billing account not found")
	ErrBadSignature    = apperr.New(apperr.ErrForbidden, "invalid_signature", "webhook signature does not match")
)
