package handler

import (
	"time"

	"github.com/google/uuid"

	"brigade/internal/broadcast/channel"
	"brigade/internal/broadcast/models"
	"brigade/internal/broadcast/taxonomy"
)

type overridesRequest struct {
	Severity               models.Severity `json:"severity,omitempty"`
	Message                string          `json:"message,omitempty"`
	RequiresAcknowledgment *bool           `json:"requires_acknowledgment,omitempty"`
}

type activityRequest struct {
	EventID   string           `json:"event_id"`
	Details   map[string]any   `json:"details,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Overrides overridesRequest `json:"overrides"`
}

type eventResponse struct {
	ID                   string           `json:"id"`
	Label                string           `json:"label"`
	DefaultChannels      []models.Channel `json:"default_channels"`
	DefaultAudience      int              `json:"default_audience"`
	NotifyAffectedPerson bool             `json:"notify_affected_person,omitempty"`
	Silent               bool             `json:"silent,omitempty"`
}

type categoryResponse struct {
	ID     models.CategoryID `json:"id"`
	Label  string            `json:"label"`
	Icon   string            `json:"icon"`
	Color  string            `json:"color"`
	Events []eventResponse   `json:"events"`
}

type activityResponse struct {
	ID                     uuid.UUID         `json:"id"`
	ActorID                string            `json:"actor_id,omitempty"`
	ActorName              string            `json:"actor_name,omitempty"`
	EventID                string            `json:"event_id"`
	Category               models.CategoryID `json:"category"`
	Severity               models.Severity   `json:"severity"`
	Message                string            `json:"message"`
	RequiresAcknowledgment bool              `json:"requires_acknowledgment"`
	Details                map[string]any    `json:"details,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
}

type configResponse struct {
	OrganizationID string                 `json:"organization_id"`
	Rules          map[string]models.Rule `json:"rules"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type notificationResponse struct {
	ActivityLogID uuid.UUID       `json:"activity_log_id"`
	EventID       string          `json:"event_id"`
	Message       string          `json:"message"`
	Severity      models.Severity `json:"severity"`
	AccentColor   string          `json:"accent_color,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toCategories(registry *taxonomy.Registry) []categoryResponse {
	categories := registry.Categories()
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		events := registry.ModuleEvents(c.ID)
		resp := categoryResponse{ID: c.ID, Label: c.Label, Icon: c.Icon, Color: c.Color, Events: make([]eventResponse, 0, len(events))}
		for _, def := range events {
			resp.Events = append(resp.Events, eventResponse{
				ID:                   def.ID,
				Label:                def.Label,
				DefaultChannels:      def.DefaultChannels,
				DefaultAudience:      def.DefaultAudience,
				NotifyAffectedPerson: def.NotifyAffectedPerson,
				Silent:               def.Toast.Mode == taxonomy.ToastSilent,
			})
		}
		out = append(out, resp)
	}
	return out
}

func toActivity(entries []models.ActivityLogEntry) []activityResponse {
	out := make([]activityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityResponse{
			ID:                     e.ID,
			ActorID:                e.ActorID,
			ActorName:              e.ActorName,
			EventID:                e.EventID,
			Category:               e.Category,
			Severity:               e.Severity,
			Message:                e.Message,
			RequiresAcknowledgment: e.RequiresAcknowledgment,
			Details:                e.Details,
			CreatedAt:              e.CreatedAt,
		})
	}
	return out
}

func toNotifications(toasts []channel.Toast) []notificationResponse {
	out := make([]notificationResponse, 0, len(toasts))
	for _, t := range toasts {
		out = append(out, notificationResponse{
			ActivityLogID: t.ActivityLogID,
			EventID:       t.EventID,
			Message:       t.Message,
			Severity:      t.Severity,
			AccentColor:   t.AccentColor,
			DurationMS:    t.Duration.Milliseconds(),
			CreatedAt:     t.CreatedAt,
		})
	}
	return out
}
