package core

import "errors"

// Errors returned by the registry and mailbox, mirroring the taxonomy in
// spec.md section 7. Callers compare with errors.Is; the admin/HTTP/AMQP
// adapters render these as text or as a gRPC status without inventing a
// parallel error model.
var (
	ErrAddressInvalid = errors.New("core: destination handle 0 with non-empty payload")
	ErrTooLarge       = errors.New("core: payload exceeds maximum message size")
	ErrUnknownDest     = errors.New("core: destination handle is not live")
	ErrNameUnresolved  = errors.New("core: name does not resolve to a live handle")
	ErrModuleNotFound  = errors.New("core: module could not be loaded")
	ErrInitFailed      = errors.New("core: service init hook failed")
	ErrNotFound        = errors.New("core: not found")
	ErrCapacityExceeded = errors.New("core: mailbox ring buffer exceeded maximum capacity")
)
