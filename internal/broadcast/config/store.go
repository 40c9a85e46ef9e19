// Package config caches per-organization broadcast overrides.
//
// Lookups fail open: a missing row or a store error means "use the taxonomy defaults",
// and neither outcome is cached, so the next dispatch retries the store.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"brigade/internal/broadcast/metrics"
	"brigade/internal/broadcast/models"
	"brigade/pkg/platform/sentinel"
)

// DefaultTTL is how long a fetched configuration is served from memory.
const DefaultTTL = 5 * time.Minute

// Source loads an organization's stored configuration.
// It returns sentinel.ErrNotFound when the organization has none.
type Source interface {
	FetchConfig(ctx context.Context, organizationID string) (*models.OrganizationConfig, error)
}

// Clock returns the current time.
type Clock func() time.Time

type cacheEntry struct {
	config    *models.OrganizationConfig
	fetchedAt time.Time
}

// stamp identifies the invalidation state a fetch started under.
type stamp struct {
	org uint64
	all uint64
}

// Store is the process-wide broadcast config cache. Construct one per process and
// share it between the dispatcher and the admin surface.
type Store struct {
	source  Source
	ttl     time.Duration
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	entries    map[string]cacheEntry
	generation map[string]uint64
	epoch      uint64

	flights singleflight.Group
}

// Option configures the Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a logger for fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a cache in front of source.
func New(source Source, opts ...Option) (*Store, error) {
	if source == nil {
		return nil, fmt.Errorf("config source is required")
	}
	s := &Store{
		source:     source,
		ttl:        DefaultTTL,
		clock:      time.Now,
		entries:    make(map[string]cacheEntry),
		generation: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConfigFor returns the organization's configuration, or false when the taxonomy
// defaults apply. Entries younger than the TTL are returned without a store query;
// concurrent misses for the same organization share one query.
func (s *Store) ConfigFor(ctx context.Context, organizationID string) (*models.OrganizationConfig, bool) {
	if cfg, ok := s.cached(organizationID); ok {
		s.metrics.IncConfigLookup("hit")
		return cfg, true
	}
	s.metrics.IncConfigLookup("miss")

	v, err, _ := s.flights.Do(organizationID, func() (any, error) {
		if cfg, ok := s.cached(organizationID); ok {
			return cfg, nil
		}
		started := s.stampOf(organizationID)
		cfg, err := s.source.FetchConfig(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, sentinel.ErrNotFound
		}
		s.put(organizationID, cfg, started)
		return cfg, nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncConfigLookup("absent")
			return nil, false
		}
		s.metrics.IncConfigLookup("error")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "broadcast config fetch failed, using defaults",
				"organization_id", organizationID,
				"error", err,
			)
		}
		return nil, false
	}
	return v.(*models.OrganizationConfig), true
}

// Invalidate drops the cached configuration of one organization.
func (s *Store) Invalidate(organizationID string) {
	s.mu.Lock()
	delete(s.entries, organizationID)
	s.generation[organizationID]++
	s.mu.Unlock()
	s.flights.Forget(organizationID)
}

// InvalidateAll drops every cached configuration.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	for orgID := range s.entries {
		s.flights.Forget(orgID)
	}
	s.entries = make(map[string]cacheEntry)
	s.epoch++
	s.mu.Unlock()
}

// Len returns the number of cached organizations, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) cached(organizationID string) (*models.OrganizationConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[organizationID]
	if !ok || s.clock().Sub(entry.fetchedAt) >= s.ttl {
		return nil, false
	}
	return entry.config, true
}

// stampOf snapshots the invalidation counters so a fetch that raced with an
// invalidation does not repopulate the cache with what may be a stale row.
func (s *Store) stampOf(organizationID string) stamp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stamp{org: s.generation[organizationID], all: s.epoch}
}

func (s *Store) put(organizationID string, cfg *models.OrganizationConfig, started stamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if (stamp{org: s.generation[organizationID], all: s.epoch}) != started {
		return
	}
	s.entries[organizationID] = cacheEntry{config: cfg, fetchedAt: s.clock()}
}
