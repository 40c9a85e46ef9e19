package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigade/internal/broadcast/models"
	"brigade/pkg/platform/sentinel"
)

func TestActivityStore_InsertAndList(t *testing.T) {
	ctx := context.Background()
	s := NewActivityStore()

	details := map[string]any{"name": "Jane"}
	first, err := s.InsertActivityLog(ctx, &models.ActivityLogEntry{OrganizationID: "org-1", EventID: "a", Details: details})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first)

	preset := uuid.New()
	second, err := s.InsertActivityLog(ctx, &models.ActivityLogEntry{ID: preset, OrganizationID: "org-1", EventID: "b"})
	require.NoError(t, err)
	assert.Equal(t, preset, second)

	_, err = s.InsertActivityLog(ctx, &models.ActivityLogEntry{OrganizationID: "org-2", EventID: "c"})
	require.NoError(t, err)

	details["name"] = "changed"
	recent, err := s.ListRecent(ctx, "org-1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].EventID)
	assert.Equal(t, "Jane", recent[1].Details["name"], "stored entries are isolated from caller maps")

	limited, err := s.ListRecent(ctx, "org-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.InsertActivityLog(ctx, nil)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestActivityStore_InsertDiff(t *testing.T) {
	ctx := context.Background()
	s := NewActivityStore()

	err := s.InsertDiff(ctx, uuid.New(), &models.Diff{TableName: "recipes"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	id, err := s.InsertActivityLog(ctx, &models.ActivityLogEntry{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.NoError(t, s.InsertDiff(ctx, id, &models.Diff{TableName: "recipes"}))

	diffs := s.Diffs()
	require.Len(t, diffs, 1)
	assert.Equal(t, id, diffs[0].ActivityLogID)

	s.Clear()
	assert.Empty(t, s.Entries())
	assert.Empty(t, s.Diffs())
}

func TestConfigRepository(t *testing.T) {
	ctx := context.Background()
	r := NewConfigRepository()

	_, err := r.FetchConfig(ctx, "org-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	rules := map[string]models.Rule{"recipe_deleted": {Enabled: false}}
	require.NoError(t, r.SaveConfig(ctx, &models.OrganizationConfig{OrganizationID: "org-1", Rules: rules}))
	rules["recipe_created"] = models.Rule{Enabled: true}

	cfg, err := r.FetchConfig(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 1)
	assert.Equal(t, 2, r.Fetches())

	assert.ErrorIs(t, r.SaveConfig(ctx, &models.OrganizationConfig{}), sentinel.ErrInvalidState)
}

func TestTeamDirectory(t *testing.T) {
	d := NewTeamDirectory()
	d.Add("org-1", "user-1", "Jane Doe")

	name, err := d.DisplayName(context.Background(), "org-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", name)

	_, err = d.DisplayName(context.Background(), "org-2", "user-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
