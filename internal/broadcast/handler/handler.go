// Package handler exposes the broadcast engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"brigade/internal/broadcast/channel"
	"brigade/internal/broadcast/dispatcher"
	"brigade/internal/broadcast/models"
	"brigade/internal/broadcast/taxonomy"
	"brigade/internal/platform/metrics"
	"brigade/internal/platform/middleware"
	"brigade/pkg/platform/httputil"
	"brigade/pkg/platform/sentinel"
	"brigade/pkg/requestcontext"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// configAdminLevel is the lowest clearance allowed to change broadcast config.
	configAdminLevel = models.AudienceManager
)

// Enqueuer accepts events for asynchronous dispatch.
type Enqueuer interface {
	Enqueue(ev dispatcher.Event) bool
}

// ConfigService manages organization broadcast overrides.
type ConfigService interface {
	Get(ctx context.Context, organizationID string) (*models.OrganizationConfig, error)
	Effective(ctx context.Context, organizationID string) (map[string]models.Rule, error)
	Save(ctx context.Context, organizationID string, rules map[string]models.Rule) (*models.OrganizationConfig, error)
	Invalidate(ctx context.Context, organizationID string)
}

// ActivityReader lists recorded activity.
type ActivityReader interface {
	ListRecent(ctx context.Context, organizationID string, limit int) ([]models.ActivityLogEntry, error)
}

// FeedReader lists in-app notifications visible at a clearance.
type FeedReader interface {
	Recent(organizationID string, clearance, limit int) []channel.Toast
}

// Handler handles broadcast endpoints.
type Handler struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	registry     *taxonomy.Registry
	queue        Enqueuer
	configs      ConfigService
	activity     ActivityReader
	feed         FeedReader
	jwtValidator middleware.JWTValidator
}

// New creates a new broadcast Handler.
func New(
	registry *taxonomy.Registry,
	queue Enqueuer,
	configs ConfigService,
	activity ActivityReader,
	feed FeedReader,
	jwtValidator middleware.JWTValidator,
	logger *slog.Logger,
	metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:       logger,
		metrics:      metrics,
		registry:     registry,
		queue:        queue,
		configs:      configs,
		activity:     activity,
		feed:         feed,
		jwtValidator: jwtValidator,
	}
}

// Register registers the broadcast routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	v1 := chi.NewRouter()
	v1.Use(middleware.Recovery(h.logger))
	v1.Use(middleware.RequestID)
	v1.Use(middleware.RequestTime)
	v1.Use(middleware.Logger(h.logger))
	v1.Use(middleware.Timeout(30 * time.Second))
	v1.Use(middleware.ContentTypeJSON)
	v1.Use(middleware.LatencyMiddleware(h.metrics))
	v1.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	v1.Get("/events", h.handleListEvents)
	v1.Get("/events/defaults", h.handleDefaults)

	v1.Route("/organizations/{orgID}", func(org chi.Router) {
		org.Use(middleware.RequireOrganization("orgID", h.logger))
		org.Post("/activity", h.handleRecordActivity)
		org.Get("/activity", h.handleListActivity)
		org.Get("/notifications", h.handleListNotifications)
		org.Get("/broadcast-config", h.handleGetConfig)
		org.Get("/broadcast-config/effective", h.handleEffectiveConfig)
		org.Group(func(admin chi.Router) {
			admin.Use(middleware.RequireSecurityLevel(configAdminLevel, h.logger))
			admin.Put("/broadcast-config", h.handleSaveConfig)
			admin.Delete("/broadcast-config/cache", h.handleInvalidateConfig)
		})
	})

	r.Mount("/v1", v1)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"categories": toCategories(h.registry)})
}

func (h *Handler) handleDefaults(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": h.registry.DefaultBroadcastConfig()})
}

// handleRecordActivity queues an event and returns without waiting for the dispatch.
func (h *Handler) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	principal, _ := requestcontext.CurrentPrincipal(ctx)

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid activity request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, httputil.BadRequest("invalid request body"))
		return
	}
	if req.EventID == "" {
		httputil.WriteError(w, httputil.BadRequest("event_id is required"))
		return
	}
	if req.Overrides.Severity != "" && !req.Overrides.Severity.IsValid() {
		httputil.WriteError(w, httputil.BadRequest("unknown severity override"))
		return
	}

	ev := dispatcher.Event{
		OrganizationID: principal.OrganizationID,
		ActorID:        principal.UserID,
		EventID:        req.EventID,
		Details:        req.Details,
		Metadata:       withRequestID(req.Metadata, requestID),
		Overrides: dispatcher.Overrides{
			Severity:               req.Overrides.Severity,
			Message:                req.Overrides.Message,
			RequiresAcknowledgment: req.Overrides.RequiresAcknowledgment,
		},
	}
	if !h.queue.Enqueue(ev) {
		h.logger.WarnContext(ctx, "activity rejected, dispatch queue unavailable",
			"request_id", requestID,
			"organization_id", ev.OrganizationID,
			"event_id", ev.EventID,
		)
		httputil.WriteError(w, &httputil.Error{
			Status:      http.StatusServiceUnavailable,
			Code:        "unavailable",
			Description: "activity queue is full",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.activity.ListRecent(ctx, chi.URLParam(r, "orgID"), limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list activity",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"activity": toActivity(entries)})
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	principal, _ := requestcontext.CurrentPrincipal(r.Context())
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	toasts := h.feed.Recent(principal.OrganizationID, principal.SecurityLevel, limit)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"notifications": toNotifications(toasts)})
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.configs.Get(ctx, chi.URLParam(r, "orgID"))
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			h.logger.ErrorContext(ctx, "failed to fetch broadcast config",
				"request_id", middleware.GetRequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, configResponse{
		OrganizationID: cfg.OrganizationID,
		Rules:          cfg.Rules,
		UpdatedAt:      cfg.UpdatedAt,
	})
}

func (h *Handler) handleEffectiveConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rules, err := h.configs.Effective(ctx, chi.URLParam(r, "orgID"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to resolve effective broadcast config",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req struct {
		Rules map[string]models.Rule `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid broadcast config request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, httputil.BadRequest("invalid request body"))
		return
	}

	cfg, err := h.configs.Save(ctx, chi.URLParam(r, "orgID"), req.Rules)
	if err != nil {
		if !errors.Is(err, sentinel.ErrInvalidState) {
			h.logger.ErrorContext(ctx, "failed to save broadcast config",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, configResponse{
		OrganizationID: cfg.OrganizationID,
		Rules:          cfg.Rules,
		UpdatedAt:      cfg.UpdatedAt,
	})
}

func (h *Handler) handleInvalidateConfig(w http.ResponseWriter, r *http.Request) {
	h.configs.Invalidate(r.Context(), chi.URLParam(r, "orgID"))
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, httputil.BadRequest("limit must be a positive integer")
	}
	return min(limit, maxListLimit), nil
}

// withRequestID stamps the request id into the event metadata, since the queued
// dispatch runs outside the request context.
func withRequestID(metadata map[string]any, requestID string) map[string]any {
	if requestID == "" {
		return metadata
	}
	if _, set := metadata["request_id"]; set {
		return metadata
	}
	out := maps.Clone(metadata)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out["request_id"] = requestID
	return out
}
