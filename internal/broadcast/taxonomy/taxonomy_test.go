package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"brigade/internal/broadcast/models"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = Standard()
}

// TestEveryEventResolves verifies that each listed id resolves to a definition whose
// category is registered.
func (s *RegistrySuite) TestEveryEventResolves() {
	ids := s.registry.AllEventIDs()
	s.Require().NotEmpty(ids)

	for _, eventID := range ids {
		def, ok := s.registry.Definition(eventID)
		s.Require().True(ok, "definition missing for %s", eventID)
		s.Equal(eventID, def.ID)

		_, ok = s.registry.Category(def.Category)
		s.True(ok, "event %s references unregistered category %s", eventID, def.Category)
	}
}

func (s *RegistrySuite) TestDefinition() {
	s.Run("unknown event is absent", func() {
		_, ok := s.registry.Definition("custom_thing")
		s.False(ok)
	})

	s.Run("returned definitions cannot mutate the registry", func() {
		def, ok := s.registry.Definition("team_member_added")
		s.Require().True(ok)
		def.DefaultChannels[0] = models.ChannelSMS

		again, _ := s.registry.Definition("team_member_added")
		s.Equal(models.ChannelInApp, again.DefaultChannels[0])
	})
}

func (s *RegistrySuite) TestModuleEvents() {
	s.Run("returns category events in registration order", func() {
		events := s.registry.ModuleEvents(models.CategoryRecipes)
		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		s.Equal([]string{"recipe_created", "recipe_updated", "recipe_deleted", "allergen_updated"}, ids)
	})

	s.Run("unknown category is empty", func() {
		s.Empty(s.registry.ModuleEvents("pastry"))
	})
}

func (s *RegistrySuite) TestDefaultBroadcastConfig() {
	cfg := s.registry.DefaultBroadcastConfig()
	s.Len(cfg, len(s.registry.AllEventIDs()))

	for eventID, rule := range cfg {
		def, _ := s.registry.Definition(eventID)
		s.True(rule.Enabled, eventID)
		s.Equal(def.DefaultChannels, rule.Channels, eventID)
		s.Equal(def.DefaultAudience, rule.MinAudienceLevel, eventID)
	}
}

func (s *RegistrySuite) TestDerivedSeverity() {
	s.Run("price change escalates on large moves", func() {
		def, _ := s.registry.Definition("price_changed")

		sev, ok := def.SeverityFor(map[string]any{"item": "Butter", "percent_change": 25.0})
		s.True(ok)
		s.Equal(models.SeverityWarning, sev)

		sev, _ = def.SeverityFor(map[string]any{"item": "Butter", "percent_change": "3"})
		s.Equal(models.SeverityInfo, sev)
	})

	s.Run("stock out is critical", func() {
		def, _ := s.registry.Definition("stock_low")
		sev, _ := def.SeverityFor(map[string]any{"item": "Flour", "quantity": 0})
		s.Equal(models.SeverityCritical, sev)
	})
}

func (s *RegistrySuite) TestMessageTemplates() {
	def, _ := s.registry.Definition("team_member_added")
	s.Equal("Jane added to the roster", def.RenderMessage(map[string]any{"name": "Jane"}))
	s.Empty(def.RenderMessage(map[string]any{}), "missing detail leaves the template unfilled")
}

func TestNewRejectsInvalidCatalogs(t *testing.T) {
	cats := []Category{{ID: models.CategoryTeam}}

	_, err := New(cats, []EventDefinition{{ID: "a", Category: models.CategoryTeam}, {ID: "a", Category: models.CategoryTeam}})
	require.ErrorContains(t, err, "duplicate event")

	_, err = New(cats, []EventDefinition{{ID: "a", Category: models.CategoryFinancial}})
	require.ErrorContains(t, err, "unknown category")

	_, err = New(cats, []EventDefinition{{ID: "a", Category: models.CategoryTeam, DefaultChannels: []models.Channel{"pigeon"}}})
	require.ErrorContains(t, err, "unknown channel")
}

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"custom_thing":         "Custom Thing",
		"team-member.ADDED":    "Team Member Added",
		"  spaced  out  ":      "Spaced Out",
		"price_changed_v2":     "Price Changed V2",
		"":                     "Activity",
		"___":                  "Activity",
		"émincé_de_volaille":   "Émincé De Volaille",
		"inventory/stock:low":  "Inventory Stock Low",
	}
	for in, want := range cases {
		assert.Equal(t, want, Humanize(in), "Humanize(%q)", in)
	}
}
