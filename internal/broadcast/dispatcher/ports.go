package dispatcher

import (
	"context"

	"github.com/google/uuid"

	"brigade/internal/broadcast/models"
)

// ActivityStore is the append-only audit log.
type ActivityStore interface {
	// InsertActivityLog persists entry and returns its id.
	InsertActivityLog(ctx context.Context, entry *models.ActivityLogEntry) (uuid.UUID, error)
	// InsertDiff persists a diff linked to an existing entry.
	InsertDiff(ctx context.Context, activityLogID uuid.UUID, diff *models.Diff) error
}

// Directory resolves an actor's display name.
type Directory interface {
	DisplayName(ctx context.Context, organizationID, userID string) (string, error)
}

// ConfigProvider returns an organization's broadcast overrides. The second result is
// false when the taxonomy defaults apply.
type ConfigProvider interface {
	ConfigFor(ctx context.Context, organizationID string) (*models.OrganizationConfig, bool)
}
