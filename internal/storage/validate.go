package storage

import (
	"fmt"

	"solana-escrow-lab/internal/domain"
)

// ValidateOffer checks the fields every backend relies on.
func ValidateOffer(o *domain.Offer) error {
	switch {
	case o == nil:
		return fmt.Errorf("%w: nil offer", ErrInvalidInput)
	case o.Escrow == "" || o.Maker == "":
		return fmt.Errorf("%w: offer missing escrow or maker", ErrInvalidInput)
	case !o.Status.IsValid():
		return fmt.Errorf("%w: offer status %q", ErrInvalidInput, o.Status)
	}
	return nil
}

// ValidateExecution checks the fields every backend relies on.
func ValidateExecution(e *domain.Execution) error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil execution", ErrInvalidInput)
	case e.Signature == "" || e.Account == "":
		return fmt.Errorf("%w: execution missing signature or account", ErrInvalidInput)
	case e.EventIndex < 0:
		return fmt.Errorf("%w: negative event index", ErrInvalidInput)
	case !e.Kind.IsValid():
		return fmt.Errorf("%w: execution kind %q", ErrInvalidInput, e.Kind)
	}
	return nil
}
