package domain

import "errors"

// Sentinel errors shared across the domain and application layers,
// checked via errors.Is rather than modeled as distinct types.
var (
	ErrNotFound           = errors.New("not found")
	ErrListingInFlight    = errors.New("listing already has an in-flight trade")
	ErrJobNameInUse       = errors.New("autopost job name already in use")
	ErrJobNotFound        = errors.New("autopost job not found")
	ErrInvalidHorizon     = errors.New("validity horizon out of range")
)
