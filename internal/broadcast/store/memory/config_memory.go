package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"brigade/internal/broadcast/models"
	"brigade/pkg/platform/sentinel"
)

// ConfigRepository keeps broadcast configurations in memory.
type ConfigRepository struct {
	mu      sync.RWMutex
	configs map[string]*models.OrganizationConfig
	fetches atomic.Int64
}

// NewConfigRepository creates an empty ConfigRepository.
func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{configs: make(map[string]*models.OrganizationConfig)}
}

// FetchConfig returns a copy of the stored configuration.
func (r *ConfigRepository) FetchConfig(_ context.Context, organizationID string) (*models.OrganizationConfig, error) {
	r.fetches.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[organizationID]
	if !ok {
		return nil, fmt.Errorf("broadcast config for %s: %w", organizationID, sentinel.ErrNotFound)
	}
	out := *cfg
	out.Rules = maps.Clone(cfg.Rules)
	return &out, nil
}

// SaveConfig replaces the stored configuration of cfg's organization.
func (r *ConfigRepository) SaveConfig(_ context.Context, cfg *models.OrganizationConfig) error {
	if cfg == nil || cfg.OrganizationID == "" {
		return fmt.Errorf("broadcast config requires an organization: %w", sentinel.ErrInvalidState)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *cfg
	stored.Rules = maps.Clone(cfg.Rules)
	r.configs[cfg.OrganizationID] = &stored
	return nil
}

// Fetches returns how many times FetchConfig has been called.
func (r *ConfigRepository) Fetches() int {
	return int(r.fetches.Load())
}

// TeamDirectory resolves display names from an in-memory roster.
type TeamDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewTeamDirectory creates an empty TeamDirectory.
func NewTeamDirectory() *TeamDirectory {
	return &TeamDirectory{names: make(map[string]string)}
}

// Add registers a team member's display name.
func (d *TeamDirectory) Add(organizationID, userID, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[organizationID+"/"+userID] = displayName
}

// DisplayName returns the member's display name or sentinel.ErrNotFound.
func (d *TeamDirectory) DisplayName(_ context.Context, organizationID, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[organizationID+"/"+userID]
	if !ok {
		return "", fmt.Errorf("team member %s: %w", userID, sentinel.ErrNotFound)
	}
	return name, nil
}
