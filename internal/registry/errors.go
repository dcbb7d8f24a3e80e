package registry

import "errors"

// Common registry errors
var (
	// ErrIdentityNotFound означает, что устройство еще не инициализировано
	ErrIdentityNotFound = errors.New("device identity not found")

	// ErrPeerNotFound означает, что peer с таким id неизвестен
	ErrPeerNotFound = errors.New("peer not found")

	// ErrTrustTransition означает недопустимый переход trust state
	ErrTrustTransition = errors.New("invalid trust state transition")
)
