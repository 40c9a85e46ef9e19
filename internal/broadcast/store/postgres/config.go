package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"brigade/internal/broadcast/models"
	"brigade/pkg/platform/sentinel"
)

// ConfigRepository stores broadcast overrides in organization_communications.
// The broadcast_config column maps event ids to {enabled, channels, minSecurityLevel}.
type ConfigRepository struct {
	db *sql.DB
}

// NewConfigRepository creates a PostgreSQL config repository.
func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// FetchConfig loads an organization's overrides or returns sentinel.ErrNotFound.
func (r *ConfigRepository) FetchConfig(ctx context.Context, organizationID string) (*models.OrganizationConfig, error) {
	var raw []byte
	cfg := &models.OrganizationConfig{OrganizationID: organizationID}
	err := r.db.QueryRowContext(ctx, `
		SELECT broadcast_config, updated_at
		FROM organization_communications
		WHERE organization_id = $1
	`, organizationID).Scan(&raw, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("broadcast config for %s: %w", organizationID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("query broadcast config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg.Rules); err != nil {
		return nil, fmt.Errorf("decode broadcast config: %w", err)
	}
	return cfg, nil
}

// SaveConfig upserts an organization's overrides.
func (r *ConfigRepository) SaveConfig(ctx context.Context, cfg *models.OrganizationConfig) error {
	if cfg == nil || cfg.OrganizationID == "" {
		return fmt.Errorf("broadcast config requires an organization: %w", sentinel.ErrInvalidState)
	}
	rules := cfg.Rules
	if rules == nil {
		rules = map[string]models.Rule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode broadcast config: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO organization_communications (organization_id, broadcast_config, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id) DO UPDATE SET
			broadcast_config = EXCLUDED.broadcast_config,
			updated_at = EXCLUDED.updated_at
	`, cfg.OrganizationID, raw, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save broadcast config: %w", err)
	}
	return nil
}
