package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"brigade/internal/broadcast/models"
	"brigade/internal/broadcast/taxonomy"
	"brigade/pkg/platform/sentinel"
)

// Repository is the persistent side of the broadcast configuration.
type Repository interface {
	Source
	SaveConfig(ctx context.Context, cfg *models.OrganizationConfig) error
}

// Publisher fans an invalidation out to the other replicas.
type Publisher interface {
	Publish(ctx context.Context, organizationID string) error
}

// Service is the administrative surface over broadcast configuration. Every write
// invalidates the cache so changes apply without waiting for the TTL.
type Service struct {
	repo      Repository
	cache     *Store
	registry  *taxonomy.Registry
	publisher Publisher
	logger    *slog.Logger
	clock     Clock
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithPublisher propagates invalidations to other replicas.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceClock sets the clock used to stamp saved configurations.
func WithServiceClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a Service.
func NewService(repo Repository, cache *Store, registry *taxonomy.Registry, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("config repository is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("config cache is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("taxonomy registry is required")
	}
	s := &Service{repo: repo, cache: cache, registry: registry, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the stored overrides, bypassing the cache.
func (s *Service) Get(ctx context.Context, organizationID string) (*models.OrganizationConfig, error) {
	return s.repo.FetchConfig(ctx, organizationID)
}

// Effective merges the stored overrides over the taxonomy defaults.
func (s *Service) Effective(ctx context.Context, organizationID string) (map[string]models.Rule, error) {
	rules := s.registry.DefaultBroadcastConfig()
	cfg, err := s.repo.FetchConfig(ctx, organizationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return rules, nil
		}
		return nil, err
	}
	maps.Copy(rules, cfg.Rules)
	return rules, nil
}

// Save validates and stores an organization's overrides, then invalidates them
// locally and on every replica.
func (s *Service) Save(ctx context.Context, organizationID string, rules map[string]models.Rule) (*models.OrganizationConfig, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is required: %w", sentinel.ErrInvalidState)
	}
	if err := s.validate(rules); err != nil {
		return nil, err
	}
	cfg := &models.OrganizationConfig{
		OrganizationID: organizationID,
		Rules:          maps.Clone(rules),
		UpdatedAt:      s.clock(),
	}
	if err := s.repo.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save broadcast config: %w", err)
	}
	s.Invalidate(ctx, organizationID)
	return cfg, nil
}

// Invalidate drops the cached configuration here and asks the other replicas to do
// the same. An empty organization id clears every organization. A publish failure is
// logged; the local cache is already clear.
func (s *Service) Invalidate(ctx context.Context, organizationID string) {
	if organizationID == "" {
		s.cache.InvalidateAll()
	} else {
		s.cache.Invalidate(organizationID)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, organizationID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish broadcast config invalidation",
			"organization_id", organizationID,
			"error", err,
		)
	}
}

func (s *Service) validate(rules map[string]models.Rule) error {
	for eventID, rule := range rules {
		if _, ok := s.registry.Definition(eventID); !ok {
			return fmt.Errorf("unknown event %q: %w", eventID, sentinel.ErrInvalidState)
		}
		for _, ch := range rule.Channels {
			if !ch.IsValid() {
				return fmt.Errorf("event %q: unknown channel %q: %w", eventID, ch, sentinel.ErrInvalidState)
			}
		}
		if rule.MinAudienceLevel < models.AudienceOwner || rule.MinAudienceLevel > models.AudienceEveryone {
			return fmt.Errorf("event %q: audience level %d out of range: %w", eventID, rule.MinAudienceLevel, sentinel.ErrInvalidState)
		}
	}
	return nil
}
