// Package store defines the key/value persistence contract used by the
// metadata cache and the circuit breaker. Implementations live in the
// subpackages; this package must not import database drivers or concrete
// clients.
package store
