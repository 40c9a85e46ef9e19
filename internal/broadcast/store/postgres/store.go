// Package postgres implements the broadcast stores on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"brigade/internal/broadcast/models"
	"brigade/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

// Migrate creates the broadcast tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply broadcast schema: %w", err)
	}
	return nil
}

// foreignKeyViolation is the PostgreSQL SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

// ActivityStore persists activity logs and their diffs.
type ActivityStore struct {
	db *sql.DB
}

// NewActivityStore creates a PostgreSQL activity store.
func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// InsertActivityLog appends an entry to activity_logs and returns its id.
func (s *ActivityStore) InsertActivityLog(ctx context.Context, entry *models.ActivityLogEntry) (uuid.UUID, error) {
	if entry == nil {
		return uuid.Nil, fmt.Errorf("activity log entry is required: %w", sentinel.ErrInvalidState)
	}
	entryID := entry.ID
	if entryID == uuid.Nil {
		entryID = uuid.New()
	}

	details, err := marshalMap(entry.Details)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal activity details: %w", err)
	}
	metadata := entry.Metadata
	if entry.ActorName != "" {
		metadata = withActorName(metadata, entry.ActorName)
	}
	metadataBytes, err := marshalMap(metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal activity metadata: %w", err)
	}

	query := `
		INSERT INTO activity_logs (
			id, organization_id, user_id, activity_type, category, severity,
			message, requires_acknowledgment, details, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		entryID,
		entry.OrganizationID,
		entry.ActorID,
		entry.EventID,
		string(entry.Category),
		string(entry.Severity),
		entry.Message,
		entry.RequiresAcknowledgment,
		details,
		metadataBytes,
		entry.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert activity log: %w", err)
	}
	return entryID, nil
}

// InsertDiff stores a diff linked to an existing activity log.
func (s *ActivityStore) InsertDiff(ctx context.Context, activityLogID uuid.UUID, diff *models.Diff) error {
	if diff == nil {
		return fmt.Errorf("diff is required: %w", sentinel.ErrInvalidState)
	}
	oldValues, err := marshalMap(diff.OldValues)
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := marshalMap(diff.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}
	changes, err := json.Marshal(diff.Changes)
	if err != nil {
		return fmt.Errorf("marshal diff: %w", err)
	}

	query := `
		INSERT INTO activity_stream_diffs (
			id, activity_log_id, organization_id, table_name, record_id,
			old_values, new_values, diff
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		activityLogID,
		diff.OrganizationID,
		diff.TableName,
		diff.RecordID,
		oldValues,
		newValues,
		changes,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
			return fmt.Errorf("activity log %s: %w", activityLogID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("insert activity diff: %w", err)
	}
	return nil
}

// ListRecent returns up to limit entries of an organization, newest first.
func (s *ActivityStore) ListRecent(ctx context.Context, organizationID string, limit int) ([]models.ActivityLogEntry, error) {
	query := `
		SELECT id, organization_id, user_id, activity_type, category, severity,
			   message, requires_acknowledgment, details, metadata, created_at
		FROM activity_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityLogEntry
	for rows.Next() {
		var (
			entry             models.ActivityLogEntry
			category          string
			severity          string
			details, metadata []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.OrganizationID,
			&entry.ActorID,
			&entry.EventID,
			&category,
			&severity,
			&entry.Message,
			&entry.RequiresAcknowledgment,
			&details,
			&metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		entry.Category = models.CategoryID(category)
		entry.Severity = models.Severity(severity)
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("decode activity details: %w", err)
		}
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode activity metadata: %w", err)
		}
		if name, ok := entry.Metadata[actorNameKey].(string); ok {
			entry.ActorName = name
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity logs: %w", err)
	}
	return entries, nil
}

// TeamDirectory resolves actor display names from organization_team_members.
type TeamDirectory struct {
	db *sql.DB
}

// NewTeamDirectory creates a PostgreSQL team directory.
func NewTeamDirectory(db *sql.DB) *TeamDirectory {
	return &TeamDirectory{db: db}
}

// DisplayName returns "First Last" for a member, or sentinel.ErrNotFound.
func (d *TeamDirectory) DisplayName(ctx context.Context, organizationID, userID string) (string, error) {
	var first, last string
	err := d.db.QueryRowContext(ctx, `
		SELECT first_name, last_name
		FROM organization_team_members
		WHERE organization_id = $1 AND user_id = $2
	`, organizationID, userID).Scan(&first, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("team member %s: %w", userID, sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("lookup team member: %w", err)
	}
	return strings.TrimSpace(first + " " + last), nil
}

const actorNameKey = "actor_name"

func withActorName(metadata map[string]any, name string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[actorNameKey] = name
	return out
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
