package capability

import "errors"

// Domain errors for the capability package.
var (
	// ErrInterfaceNotFound is returned when the named network interface
	// does not exist on the host.
	ErrInterfaceNotFound = errors.New("capability: network interface not found")

	// ErrNoAddress is returned when an interface has no usable address.
	ErrNoAddress = errors.New("capability: interface has no address")
)
