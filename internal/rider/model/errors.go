package model

import "errors"

// Domain errors shared by every rider component. Callers match them with errors.Is.
var (
	ErrValidation          = errors.New("rider: validation failed")
	ErrNotFound            = errors.New("rider: not found")
	ErrStateConflict       = errors.New("rider: state changed concurrently")
	ErrAlreadyClaimed      = errors.New("rider: request already claimed")
	ErrInvalidTransition   = errors.New("rider: invalid status transition")
	ErrInsufficientBalance = errors.New("rider: insufficient balance")
	ErrNotActive           = errors.New("rider: adjustment is not active")
	ErrRiderNotEligible    = errors.New("rider: registration is not verified")
	ErrNotEligible         = errors.New("rider: rider is offline or not verified")
	ErrNotAssignedRider    = errors.New("rider: caller is not the assigned rider")
	ErrInternal            = errors.New("rider: internal error")
)

var domainErrors = []error{
	ErrValidation,
	ErrNotFound,
	ErrStateConflict,
	ErrAlreadyClaimed,
	ErrInvalidTransition,
	ErrInsufficientBalance,
	ErrNotActive,
	ErrRiderNotEligible,
	ErrNotEligible,
	ErrNotAssignedRider,
	ErrInternal,
}

// IsDomainError reports whether err wraps one of the sentinel errors above.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
