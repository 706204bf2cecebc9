package reliablellm

import "context"

// Backend is the interface every completion backend must implement. Backends
// do not know their rank; ordering belongs to the Client.
type Backend interface {
	// Name returns the backend identifier (e.g. "ollama", "openai").
	Name() string

	// IsAvailable is a cheap, time-bounded liveness probe. It never fails;
	// unreachable or misconfigured backends report false.
	IsAvailable(ctx context.Context) bool

	// Complete returns free-form text. Transport and configuration failures
	// are reported as *BackendError.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// CompleteStructured returns a value that has been through the recovery
	// engine and validated against req.Schema. Transport failures are
	// *BackendError; bad output is *RecoveryError or *ValidationError.
	CompleteStructured(ctx context.Context, req StructuredRequest) (any, error)
}

// Optional methods that backends may implement.

// Closer is implemented by backends that hold resources.
type Closer interface {
	Close() error
}
