//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"brigade/internal/broadcast/models"
	"brigade/internal/broadcast/store/postgres"
	"brigade/pkg/platform/sentinel"
	"brigade/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	activity  *postgres.ActivityStore
	configs   *postgres.ConfigRepository
	directory *postgres.TeamDirectory
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.activity = postgres.NewActivityStore(s.postgres.DB)
	s.configs = postgres.NewConfigRepository(s.postgres.DB)
	s.directory = postgres.NewTeamDirectory(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"activity_stream_diffs", "activity_logs", "organization_communications", "organization_team_members")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) entry(org, event string, at time.Time) *models.ActivityLogEntry {
	return &models.ActivityLogEntry{
		OrganizationID:         org,
		ActorID:                "user-1",
		ActorName:              "Jane Doe",
		EventID:                event,
		Category:               models.CategoryTeam,
		Severity:               models.SeverityWarning,
		Message:                "Jane removed from the roster",
		RequiresAcknowledgment: true,
		Details:                map[string]any{"name": "Jane"},
		Metadata:               map[string]any{"request_id": "req-1"},
		CreatedAt:              at,
	}
}

func (s *PostgresStoreSuite) TestActivityRoundTrip() {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	firstID, err := s.activity.InsertActivityLog(ctx, s.entry("org-1", "team_member_added", base))
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, firstID)
	secondID, err := s.activity.InsertActivityLog(ctx, s.entry("org-1", "team_member_removed", base.Add(time.Minute)))
	s.Require().NoError(err)
	_, err = s.activity.InsertActivityLog(ctx, s.entry("org-2", "team_member_added", base))
	s.Require().NoError(err)

	recent, err := s.activity.ListRecent(ctx, "org-1", 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(secondID, recent[0].ID)
	s.Equal(firstID, recent[1].ID)

	got := recent[0]
	s.Equal("Jane Doe", got.ActorName)
	s.Equal("Jane Doe", got.Metadata["actor_name"])
	s.Equal("req-1", got.Metadata["request_id"])
	s.Equal(models.SeverityWarning, got.Severity)
	s.True(got.RequiresAcknowledgment)
	s.Equal("Jane", got.Details["name"])
	s.True(got.CreatedAt.Equal(base.Add(time.Minute)))

	limited, err := s.activity.ListRecent(ctx, "org-1", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *PostgresStoreSuite) TestDiffRequiresParent() {
	ctx := context.Background()
	diff := &models.Diff{
		OrganizationID: "org-1",
		TableName:      "recipes",
		RecordID:       "r-1",
		OldValues:      map[string]any{"yield": 4},
		NewValues:      map[string]any{"yield": 6},
		Changes:        models.ComputeChanges(map[string]any{"yield": 4}, map[string]any{"yield": 6}),
	}

	s.Run("orphan diff is rejected", func() {
		err := s.activity.InsertDiff(ctx, uuid.New(), diff)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("linked diff is stored", func() {
		id, err := s.activity.InsertActivityLog(ctx, s.entry("org-1", "recipe_updated", time.Now()))
		s.Require().NoError(err)
		s.Require().NoError(s.activity.InsertDiff(ctx, id, diff))

		var linked int
		err = s.postgres.DB.QueryRowContext(ctx,
			`SELECT count(*) FROM activity_stream_diffs WHERE activity_log_id = $1`, id).Scan(&linked)
		s.Require().NoError(err)
		s.Equal(1, linked)
	})
}

func (s *PostgresStoreSuite) TestConfigUpsert() {
	ctx := context.Background()

	_, err := s.configs.FetchConfig(ctx, "org-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	cfg := &models.OrganizationConfig{
		OrganizationID: "org-1",
		Rules: map[string]models.Rule{
			"recipe_deleted": {Enabled: false, Channels: []models.Channel{models.ChannelInApp}, MinAudienceLevel: 3},
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(s.configs.SaveConfig(ctx, cfg))

	cfg.Rules["recipe_created"] = models.Rule{Enabled: true, Channels: []models.Channel{models.ChannelEmail}, MinAudienceLevel: 4}
	s.Require().NoError(s.configs.SaveConfig(ctx, cfg))

	got, err := s.configs.FetchConfig(ctx, "org-1")
	s.Require().NoError(err)
	s.Equal(cfg.Rules, got.Rules)

	var raw string
	err = s.postgres.DB.QueryRowContext(ctx,
		`SELECT broadcast_config->'recipe_deleted'->>'minSecurityLevel' FROM organization_communications WHERE organization_id = $1`,
		"org-1").Scan(&raw)
	s.Require().NoError(err)
	s.Equal("3", raw)
}

func (s *PostgresStoreSuite) TestTeamDirectory() {
	ctx := context.Background()
	_, err := s.postgres.Exec(ctx, `
		INSERT INTO organization_team_members (organization_id, user_id, first_name, last_name)
		VALUES ('org-1', 'user-1', 'Jane', 'Doe'), ('org-1', 'user-2', 'Cher', '')
	`)
	s.Require().NoError(err)

	name, err := s.directory.DisplayName(ctx, "org-1", "user-1")
	s.Require().NoError(err)
	s.Equal("Jane Doe", name)

	name, err = s.directory.DisplayName(ctx, "org-1", "user-2")
	s.Require().NoError(err)
	s.Equal("Cher", name)

	_, err = s.directory.DisplayName(ctx, "org-2", "user-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
