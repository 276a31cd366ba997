package entities

import "errors"

// Typed errors returned by the engine. Callers match with errors.Is and
// render precise messages; nothing in the engine returns a bare generic
// failure for these conditions.
var (
	// ErrInvalidAction is returned when an action name is not in the
	// known action set.
	ErrInvalidAction = errors.New("invalid action")

	// ErrCycleDetected is returned when a move would make a node an
	// ancestor of itself.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrSelfParent is returned when a move targets the node itself.
	ErrSelfParent = errors.New("node cannot be its own parent")

	// ErrNotAFolder is returned when a move targets a non-folder node.
	ErrNotAFolder = errors.New("target is not a folder")

	// ErrResourceNotFound is returned when a resource node does not exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrSourceNotFound is returned when a permission source does not exist.
	ErrSourceNotFound = errors.New("permission source not found")

	// ErrConflictNotFound is returned when a conflict ID does not match
	// any detected conflict.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrInvalidResolution is returned for illegal conflict resolutions:
	// suppressing with an empty reason, or accepting the recommendation
	// on a conflict that is not auto-resolvable.
	ErrInvalidResolution = errors.New("invalid conflict resolution")

	// ErrInvalidSource is returned when a source fails structural
	// validation: missing resource or subject ref, an unknown kind, or
	// an inherited kind submitted for storage.
	ErrInvalidSource = errors.New("invalid permission source")

	// ErrInvalidPriority is returned when a stored source carries a
	// negative priority. Negative priorities are reserved for derived
	// inherited sources.
	ErrInvalidPriority = errors.New("priority must be non-negative")

	// ErrDepthExceeded is returned when an ancestor walk exceeds the
	// depth bound. It indicates a broken hierarchy invariant, not a
	// condition callers should retry.
	ErrDepthExceeded = errors.New("ancestor chain depth exceeded")
)
