package marketplace

import "errors"

var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrStateConflict        = errors.New("state conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConfigurationMissing = errors.New("registry address not configured")
	ErrTransferRejected     = errors.New("transfer rejected by registry")
	ErrTransportError       = errors.New("registry call failed")
)

// errReservationGone aborts a compensating write when the listing no longer
// carries this saga's reservation.
var errReservationGone = errors.New("reservation no longer held")
