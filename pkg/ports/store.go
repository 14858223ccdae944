package ports

import "context"

// KVStore is the persistent key/value store behind the storage service.
// Implementations are scoped to one namespace and safe for concurrent use.
type KVStore interface {
	// Get returns the stored value, or nil when the key is absent.
	Get(ctx context.Context, key string) (any, error)

	// Set stores value under key and returns the stored value.
	Set(ctx context.Context, key string, value any) (any, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear deletes every key in the namespace.
	Clear(ctx context.Context) error
}
