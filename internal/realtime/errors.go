package realtime

import "errors"

// Handshake failures. All of them refuse room admission outright; there
// is no partial admission.
var (
	// ErrMissingCredential: no bearer token or no syntactically valid
	// project identifier in the handshake.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidToken: signature or expiry verification failed, or the
	// token is on the revocation list.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownProject: the project identifier resolved to nothing.
	ErrUnknownProject = errors.New("unknown project")

	// ErrRateLimited: too many handshake attempts for this user.
	ErrRateLimited = errors.New("handshake rate limit exceeded")
)
