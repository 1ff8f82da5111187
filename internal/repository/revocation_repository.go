package repository

import "context"

// RevocationRepository is the durable set of revoked refresh-token IDs.
// Append-only: there is no way to un-revoke a jti.
type RevocationRepository interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Revoke is an idempotent insert.
	Revoke(ctx context.Context, jti string) error
}
