// Package archive persists finished backtest results to a local directory or
// an S3-compatible bucket.
package archive

import "context"

// Storage is a flat key/value blob store. Keys use forward slashes.
type Storage interface {
	// Write stores data at the given key, creating parents as needed
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves data from the given key
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns all keys under the prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if data exists at the given key
	Exists(ctx context.Context, key string) (bool, error)
}
