// internal/core/ports/secrets.go
package ports

import "context"

// ReleaseFunc marks the end of a secret's scope. It must be called when
// the consuming step finishes so the source can drop whatever state it
// holds for the value.
type ReleaseFunc func()

// SecretSource provides scoped access to credentials. Values are acquired
// at step start and released at step end; implementations must never log
// or persist them.
type SecretSource interface {
	// Acquire fetches the named secret. The returned release func ends
	// the secret's scope and must be called when the step finishes.
	Acquire(ctx context.Context, name string) (string, ReleaseFunc, error)
}
