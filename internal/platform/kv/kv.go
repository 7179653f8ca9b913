// Package kv provides the process-local key-value store backing accounts,
// the current session snapshot and the activity log.
package kv

import (
	"context"
	"errors"
)

// Keys used by the portal.
const (
	KeyRegisteredUsers = "registeredUsers"
	KeyCurrentUser     = "inventoryUser"
	KeyUserActivities  = "userActivities"
)

// ErrNotFound is returned when a key holds no value.
var ErrNotFound = errors.New("kv: not found")

// Store is a minimal byte-oriented key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
