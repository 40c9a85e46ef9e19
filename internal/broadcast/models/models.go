// Package models holds the data shared by the broadcast engine components.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity drives the default acknowledgment requirement and presentation styling.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is one of the known severities.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// RequiresAcknowledgment is the default acknowledgment rule for a severity.
func (s Severity) RequiresAcknowledgment() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// CategoryID groups events for filtering and presentation.
type CategoryID string

const (
	CategoryTeam           CategoryID = "team"
	CategoryScheduling     CategoryID = "scheduling"
	CategoryRecipes        CategoryID = "recipes"
	CategoryInventory      CategoryID = "inventory"
	CategoryFoodSafety     CategoryID = "food_safety"
	CategoryFinancial      CategoryID = "financial"
	CategorySecurity       CategoryID = "security"
	CategoryCommunications CategoryID = "communications"
	CategorySystem         CategoryID = "system"
)

// Channel is a delivery surface for a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// IsValid reports whether c is one of the known channels.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Audience levels. A recipient whose clearance is at or below the event's minimum
// audience level is eligible; lower numbers are more privileged.
const (
	AudienceOwner      = 1
	AudienceManager    = 2
	AudienceSupervisor = 3
	AudienceStaff      = 4
	AudienceEveryone   = 5
)

// Rule is the broadcast rule for one event id in one organization.
type Rule struct {
	Enabled          bool      `json:"enabled" yaml:"enabled"`
	Channels         []Channel `json:"channels" yaml:"channels"`
	MinAudienceLevel int       `json:"minSecurityLevel" yaml:"minSecurityLevel"`
}

// HasChannel reports whether the rule routes to c.
func (r Rule) HasChannel(c Channel) bool {
	for _, ch := range r.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// OrganizationConfig holds an organization's per-event overrides.
// Events without an entry fall back to taxonomy defaults.
type OrganizationConfig struct {
	OrganizationID string
	Rules          map[string]Rule
	UpdatedAt      time.Time
}

// RuleFor returns the override for eventID, if the organization configured one.
func (c *OrganizationConfig) RuleFor(eventID string) (Rule, bool) {
	if c == nil {
		return Rule{}, false
	}
	rule, ok := c.Rules[eventID]
	return rule, ok
}

// ActivityLogEntry is the durable, append-only record of a dispatched event.
type ActivityLogEntry struct {
	ID                     uuid.UUID
	OrganizationID         string
	ActorID                string
	ActorName              string
	EventID                string
	Category               CategoryID
	Severity               Severity
	Message                string
	RequiresAcknowledgment bool
	Details                map[string]any
	Metadata               map[string]any
	CreatedAt              time.Time
}
