package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/handler"
)

// GetConnection returns the owner's connection for a provider.
func (s *Store) GetConnection(ctx context.Context, ownerID, provider string) (*handler.Connection, error) {
	var tokenJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT token FROM flowrge_connections
		WHERE owner_id = $1 AND provider = $2`,
		ownerID, provider,
	).Scan(&tokenJSON)
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: get connection: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("flowrge/postgres: decode connection token: %w", err)
	}
	return &handler.Connection{OwnerID: ownerID, Provider: provider, Token: token}, nil
}

// SaveConnection upserts a provider connection, replacing the stored
// token on refresh.
func (s *Store) SaveConnection(ctx context.Context, conn *handler.Connection) error {
	tokenJSON, err := json.Marshal(conn.Token)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: encode connection token: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO flowrge_connections (owner_id, provider, token, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner_id, provider)
		DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`,
		conn.OwnerID, conn.Provider, tokenJSON,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: save connection: %w", err)
	}
	return nil
}
