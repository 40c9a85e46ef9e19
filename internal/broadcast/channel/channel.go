// Package channel defines the delivery surfaces the dispatcher fans out to.
//
// The in-app surface is implemented in process (Feed). Email and SMS go through a
// ForwardSender, which hands the request to whatever delivers it.
package channel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"brigade/internal/broadcast/models"
)

// Toast is one in-app notification.
type Toast struct {
	OrganizationID string
	EventID        string
	ActivityLogID  uuid.UUID
	Message        string
	Severity       models.Severity
	AccentColor    string
	Duration       time.Duration
	AudienceLevel  int
	CreatedAt      time.Time
}

// Notifier shows a toast on the in-app surface. Implementations must not panic
// and have no failure result: a toast that cannot be shown is simply lost.
type Notifier interface {
	Notify(ctx context.Context, toast Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, toast Toast)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, toast Toast) { f(ctx, toast) }

// Fanout delivers each toast to every notifier in order.
type Fanout []Notifier

// Notify calls every notifier.
func (f Fanout) Notify(ctx context.Context, toast Toast) {
	for _, n := range f {
		n.Notify(ctx, toast)
	}
}

// RenderedContext is what a forward channel needs to compose its message.
type RenderedContext struct {
	ActivityLogID    uuid.UUID         `json:"activity_log_id"`
	Message          string            `json:"message"`
	Severity         models.Severity   `json:"severity"`
	Category         models.CategoryID `json:"category"`
	ActorName        string            `json:"actor_name,omitempty"`
	AffectedPersonID string            `json:"affected_person_id,omitempty"`
	Details          map[string]any    `json:"details,omitempty"`
}

// ForwardRequest asks an asynchronous channel to reach everyone in an organization
// whose clearance is at or below RecipientAudienceLevel.
type ForwardRequest struct {
	Channel                models.Channel  `json:"channel"`
	OrganizationID         string          `json:"organization_id"`
	EventID                string          `json:"event_id"`
	RecipientAudienceLevel int             `json:"recipient_audience_level"`
	Context                RenderedContext `json:"context"`
}

// Status is the outcome of a forward send.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusSkipped  Status = "skipped"
)

// Result reports what a ForwardSender did with a request.
type Result struct {
	Status    Status
	Reference string
}

// ForwardSender hands a request to an email or SMS pipeline.
type ForwardSender interface {
	Send(ctx context.Context, req ForwardRequest) (Result, error)
}

// NopSender accepts nothing and fails nothing.
type NopSender struct{}

// Send reports the request as skipped.
func (NopSender) Send(context.Context, ForwardRequest) (Result, error) {
	return Result{Status: StatusSkipped}, nil
}
