package redis

import (
	"context"
	"fmt"
	"time"
)

const revokedPrefix = "revoked:"

// RevocationList tracks handshake tokens that have been invalidated
// before their natural expiry (logout, forced sign-out). The gateway
// consults it before verifying a token's signature.
type RevocationList struct {
	client *Client
}

// NewRevocationList creates a new revocation list
func NewRevocationList(client *Client) *RevocationList {
	return &RevocationList{client: client}
}

// IsRevoked reports whether a token is on the revocation list
func (l *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := l.client.rdb.Exists(ctx, revokedPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation list: %w", err)
	}
	return n > 0, nil
}

// Revoke adds a token to the revocation list. The TTL should cover the
// token's remaining lifetime; after that the entry is useless anyway.
func (l *RevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if err := l.client.rdb.Set(ctx, revokedPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
