// Package handler implements the built-in action handlers: provider
// email with a transactional fallback, social posting, and durable
// crypto transfers.
package handler

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider names for token connections.
const (
	ProviderGoogle = "google"
	ProviderX      = "x"
)

// Connection is a user's OAuth link to an external provider.
type Connection struct {
	OwnerID  string       `json:"owner_id"`
	Provider string       `json:"provider"`
	Token    oauth2.Token `json:"token"`
}

// TokenStore persists provider connections.
type TokenStore interface {
	// GetConnection returns the owner's connection for a provider, or
	// flowrge.ErrConnectionNotFound.
	GetConnection(ctx context.Context, ownerID, provider string) (*Connection, error)

	// SaveConnection inserts or replaces a connection. Used after a
	// token refresh so the new access token survives restarts.
	SaveConnection(ctx context.Context, conn *Connection) error
}

// refreshToken exchanges the connection's refresh token for a fresh
// access token via the provider's token endpoint and persists the
// result.
func refreshToken(ctx context.Context, cfg *oauth2.Config, store TokenStore, conn *Connection) error {
	stale := conn.Token
	stale.AccessToken = "" // force the source to refresh
	fresh, err := cfg.TokenSource(ctx, &stale).Token()
	if err != nil {
		return err
	}
	conn.Token = *fresh
	return store.SaveConnection(ctx, conn)
}
