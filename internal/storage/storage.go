// Package storage defines the backing store a persistent tier keeps its
// serialized image in. Each store holds exactly one object and is owned by
// exactly one tier.
package storage

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Load when the backing object has never been
// saved or was removed.
var ErrNotExist = errors.New("backing object does not exist")

// ErrUnavailable marks a store that refused a request without attempting it,
// such as a remote store whose circuit breaker is open.
var ErrUnavailable = errors.New("backing store unavailable")

// Store persists one opaque tier image.
type Store interface {
	// Load returns the saved image, or ErrNotExist.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the image.
	Save(ctx context.Context, data []byte) error
	// Remove deletes the image. Removing an absent image is not an error.
	Remove(ctx context.Context) error
	// Location describes where the image lives, for logs.
	Location() string
}
