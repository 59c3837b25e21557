package memory

import "errors"

// Sentinel errors shared by every memory component.
var (
	// ErrNotFound means no item or turn exists for the requested key.
	ErrNotFound = errors.New("memory: not found")

	// ErrDataIntegrity means the index references an item whose snapshot is
	// missing or cannot be decoded.
	ErrDataIntegrity = errors.New("memory: data integrity violation")

	// ErrCapabilityUnavailable means an external generator or classifier
	// failed or timed out. It is recovered locally by a deterministic path.
	ErrCapabilityUnavailable = errors.New("memory: capability unavailable")

	// ErrStoreUnavailable means persistence or the index could not be
	// reached. Callers should retry later; it never means "no information".
	ErrStoreUnavailable = errors.New("memory: store unavailable")

	// ErrInvalidItem means a memory item failed validation.
	ErrInvalidItem = errors.New("memory: invalid item")

	// ErrInvalidTurn means a conversation turn failed validation.
	ErrInvalidTurn = errors.New("memory: invalid turn")

	// ErrAlreadyExists means an add targeted an id that is already stored.
	ErrAlreadyExists = errors.New("memory: item already exists")

	// ErrNoOwnerScope means a retrieval was attempted without an owner scope.
	ErrNoOwnerScope = errors.New("memory: owner scope is required")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStoreUnavailable reports whether err is or wraps ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// IsDataIntegrity reports whether err is or wraps ErrDataIntegrity.
func IsDataIntegrity(err error) bool { return errors.Is(err, ErrDataIntegrity) }
