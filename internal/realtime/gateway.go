package realtime

import (
	"context"
	"regexp"

	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/devroom-sh/devroom/internal/project"
	"github.com/devroom-sh/devroom/internal/security"
	"github.com/rs/zerolog"
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TokenVerifier checks an access token and returns its claims
type TokenVerifier interface {
	ValidateAccessToken(token string) (*security.Claims, error)
}

// RevocationChecker reports whether a token has been revoked
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// HandshakeLimiter throttles admission attempts per user
type HandshakeLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TreeSeeder primes the workspace store with a project's persisted tree
type TreeSeeder interface {
	Seed(projectID string, tree domain.FileTree) domain.FileTree
}

// Gateway admits authenticated clients into project rooms. Verification
// order is fixed: credential shape, revocation, signature, rate limit,
// project existence. Revocation is checked before the signature so a
// logged-out token is rejected even while cryptographically valid.
type Gateway struct {
	verifier   TokenVerifier
	revocation RevocationChecker
	limiter    HandshakeLimiter
	directory  project.Directory
	seeder     TreeSeeder
	registry   *Registry
	logger     zerolog.Logger
}

func NewGateway(
	verifier TokenVerifier,
	revocation RevocationChecker,
	limiter HandshakeLimiter,
	directory project.Directory,
	seeder TreeSeeder,
	registry *Registry,
	logger zerolog.Logger,
) *Gateway {
	return &Gateway{
		verifier:   verifier,
		revocation: revocation,
		limiter:    limiter,
		directory:  directory,
		seeder:     seeder,
		registry:   registry,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// Admit validates the handshake and, on success, creates a session
// joined to the project's room with the workspace seeded. The
// connection itself is the transport's business; a nil error here means
// the caller may upgrade.
func (g *Gateway) Admit(ctx context.Context, token, projectID string) (*domain.Session, *Member, error) {
	if token == "" || projectID == "" {
		return nil, nil, ErrMissingCredential
	}
	if !projectIDPattern.MatchString(projectID) {
		return nil, nil, ErrMissingCredential
	}

	if g.revocation != nil {
		revoked, err := g.revocation.IsRevoked(ctx, token)
		if err != nil {
			// Fail closed: an unreachable revocation list must not
			// let a logged-out token back in.
			g.logger.Error().Err(err).Msg("revocation check failed")
			return nil, nil, ErrInvalidToken
		}
		if revoked {
			return nil, nil, ErrInvalidToken
		}
	}

	claims, err := g.verifier.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	if g.limiter != nil {
		allowed, err := g.limiter.Allow(ctx, claims.UserID.String())
		if err != nil {
			g.logger.Error().Err(err).Msg("handshake rate limiter unavailable")
		} else if !allowed {
			return nil, nil, ErrRateLimited
		}
	}

	proj, err := g.directory.Get(ctx, projectID)
	if err != nil {
		g.logger.Error().Err(err).Str("project", projectID).Msg("project lookup failed")
		return nil, nil, ErrUnknownProject
	}
	if proj == nil {
		return nil, nil, ErrUnknownProject
	}

	g.seeder.Seed(projectID, proj.FileTree)

	session := domain.NewSession(claims.UserID, claims.Name, projectID)
	member := g.registry.Join(session)
	if member == nil {
		return nil, nil, ErrUnknownProject
	}

	g.logger.Info().Str("session", session.ID.String()).
		Str("user", claims.Name).Str("project", projectID).Msg("session admitted")
	return session, member, nil
}
