// Package archive provides storage for immutable request snapshots.
package archive

import "context"

// Archiver stores rendered snapshot documents and returns a locator for the
// stored artifact. Implementations must tolerate Delete on a locator that no
// longer exists.
type Archiver interface {
	Store(ctx context.Context, requestID string, content []byte) (string, error)
	Delete(ctx context.Context, locator string) error
}
