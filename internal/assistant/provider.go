package assistant

import "context"

// Provider defines the interface for assistant reply generation
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Generate produces a raw assistant reply for a prompt. The reply
	// may be plain text or the structured {text, fileTree} envelope;
	// the interpreter decides which.
	Generate(ctx context.Context, prompt string) (string, error)
}
