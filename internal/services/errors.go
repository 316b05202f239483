package services

import (
	"errors"
	"fmt"

	"handshake-backend/internal/repositories"
)

// Error taxonomy shared by the API and webhook handlers. Wrap with fmt.Errorf("%w: ...")
// and classify with errors.Is.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidState       = errors.New("invalid state")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrGatewayUnconfirmed = errors.New("gateway did not confirm notification")
	ErrDuplicateConflict  = errors.New("payment already completed with a different reference")
	ErrStorageConflict    = errors.New("storage conflict")
	ErrInternal           = errors.New("internal error")
)

// IsTransient reports whether the caller should retry the whole operation later
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageConflict) || errors.Is(err, ErrInternal)
}

// storeErr lifts repository errors into the service taxonomy
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repositories.ErrConflict):
		return fmt.Errorf("%w: %s", ErrStorageConflict, what)
	default:
		return fmt.Errorf("%w: %s: %v", ErrInternal, what, err)
	}
}
