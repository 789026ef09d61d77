package engine

import "errors"

// Invariant violations raised by manual operations propagate to the caller;
// the periodic jobs only ever log them.
var (
	ErrShipmentNotFound  = errors.New("shipment not found")
	ErrActiveChainExists = errors.New("an active escalation already exists for this shipment")
	ErrNoActiveChain     = errors.New("no active escalation found for this shipment")
	ErrLadderExhausted   = errors.New("no more contacts in the escalation ladder")
	ErrNoContacts        = errors.New("no active escalation contacts configured")
)

// IsInvalidState reports whether err is a state-machine guard violation, as
// opposed to a missing record or a store failure.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrActiveChainExists) ||
		errors.Is(err, ErrNoActiveChain) ||
		errors.Is(err, ErrLadderExhausted)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrShipmentNotFound)
}
