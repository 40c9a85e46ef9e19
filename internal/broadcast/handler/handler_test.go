package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"brigade/internal/broadcast/channel"
	"brigade/internal/broadcast/config"
	"brigade/internal/broadcast/dispatcher"
	"brigade/internal/broadcast/handler"
	"brigade/internal/broadcast/models"
	"brigade/internal/broadcast/store/memory"
	"brigade/internal/broadcast/taxonomy"
	jwttoken "brigade/internal/jwt_token"
	"brigade/pkg/testutil"
)

type recordingQueue struct {
	mu     sync.Mutex
	events []dispatcher.Event
	full   bool
}

func (q *recordingQueue) Enqueue(ev dispatcher.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.events = append(q.events, ev)
	return true
}

// =============================================================================
// Test Suite Setup
// =============================================================================

type HandlerSuite struct {
	suite.Suite
	router   chi.Router
	jwt      *jwttoken.JWTService
	queue    *recordingQueue
	activity *memory.ActivityStore
	repo     *memory.ConfigRepository
	cache    *config.Store
	feed     *channel.Feed
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := taxonomy.Standard()

	s.jwt = jwttoken.NewJWTService("test-key", "brigade", "brigade-api")
	s.queue = &recordingQueue{}
	s.activity = memory.NewActivityStore()
	s.repo = memory.NewConfigRepository()
	s.feed = channel.NewFeed(10)

	cache, err := config.New(s.repo)
	s.Require().NoError(err)
	s.cache = cache
	svc, err := config.NewService(s.repo, cache, registry, config.WithServiceLogger(logger))
	s.Require().NoError(err)

	h := handler.New(registry, s.queue, svc, s.activity, s.feed,
		jwttoken.NewJWTServiceAdapter(s.jwt), logger, nil)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) token(orgID string, level int) string {
	tok, err := s.jwt.GenerateAccessToken("user-1", orgID, level, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.WithBearer(testutil.NewJSONRequest(s.T(), method, path, body), token)
	req.Header.Set("X-Request-ID", "req-7")
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

// =============================================================================
// Authentication and scoping
// =============================================================================

func (s *HandlerSuite) TestRequiresToken() {
	rec := s.do(http.MethodGet, "/v1/events", "", nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestRejectsOtherOrganization() {
	rec := s.do(http.MethodGet, "/v1/organizations/org-2/activity", s.token("org-1", 1), nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusForbidden, "forbidden")
}

// =============================================================================
// Taxonomy
// =============================================================================

func (s *HandlerSuite) TestListEvents() {
	rec := s.do(http.MethodGet, "/v1/events", s.token("org-1", 4), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Categories []struct {
			ID     string `json:"id"`
			Events []struct {
				ID string `json:"id"`
			} `json:"events"`
		} `json:"categories"`
	}
	s.decode(rec, &body)
	s.NotEmpty(body.Categories)

	total := 0
	for _, c := range body.Categories {
		total += len(c.Events)
	}
	s.Equal(len(taxonomy.Standard().AllEventIDs()), total)
}

func (s *HandlerSuite) TestDefaults() {
	rec := s.do(http.MethodGet, "/v1/events/defaults", s.token("org-1", 4), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Rules map[string]models.Rule `json:"rules"`
	}
	s.decode(rec, &body)
	s.Equal(taxonomy.Standard().DefaultBroadcastConfig(), body.Rules)
}

// =============================================================================
// Activity
// =============================================================================

func (s *HandlerSuite) TestRecordActivity() {
	s.Run("queues the event for the caller's organization", func() {
		ack := true
		rec := s.do(http.MethodPost, "/v1/organizations/org-1/activity", s.token("org-1", 3), map[string]any{
			"event_id":  "recipe_deleted",
			"details":   map[string]any{"name": "Bolognese"},
			"overrides": map[string]any{"requires_acknowledgment": ack},
		})
		s.Require().Equal(http.StatusAccepted, rec.Code)
		s.Require().Len(s.queue.events, 1)

		ev := s.queue.events[0]
		s.Equal("org-1", ev.OrganizationID)
		s.Equal("user-1", ev.ActorID)
		s.Equal("recipe_deleted", ev.EventID)
		s.Equal("Bolognese", ev.Details["name"])
		s.Equal("req-7", ev.Metadata["request_id"])
		s.Require().NotNil(ev.Overrides.RequiresAcknowledgment)
		s.True(*ev.Overrides.RequiresAcknowledgment)
	})

	s.Run("missing event id", func() {
		rec := s.do(http.MethodPost, "/v1/organizations/org-1/activity", s.token("org-1", 3), map[string]any{})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("invalid severity override", func() {
		rec := s.do(http.MethodPost, "/v1/organizations/org-1/activity", s.token("org-1", 3), map[string]any{
			"event_id":  "recipe_deleted",
			"overrides": map[string]any{"severity": "apocalyptic"},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("full queue", func() {
		s.queue.full = true
		defer func() { s.queue.full = false }()
		rec := s.do(http.MethodPost, "/v1/organizations/org-1/activity", s.token("org-1", 3), map[string]any{
			"event_id": "recipe_deleted",
		})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusServiceUnavailable, "unavailable")
	})
}

func (s *HandlerSuite) TestListActivity() {
	ctx := context.Background()
	for _, id := range []string{"recipe_created", "recipe_deleted"} {
		_, err := s.activity.InsertActivityLog(ctx, &models.ActivityLogEntry{
			OrganizationID: "org-1", EventID: id, Severity: models.SeverityInfo, Message: id,
		})
		s.Require().NoError(err)
	}

	rec := s.do(http.MethodGet, "/v1/organizations/org-1/activity?limit=1", s.token("org-1", 4), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var body struct {
		Activity []struct {
			EventID string `json:"event_id"`
		} `json:"activity"`
	}
	s.decode(rec, &body)
	s.Require().Len(body.Activity, 1)
	s.Equal("recipe_deleted", body.Activity[0].EventID)

	rec = s.do(http.MethodGet, "/v1/organizations/org-1/activity?limit=zero", s.token("org-1", 4), nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestListNotificationsFiltersByClearance() {
	ctx := context.Background()
	s.feed.Notify(ctx, channel.Toast{OrganizationID: "org-1", EventID: "owners_only", ActivityLogID: uuid.New(), AudienceLevel: models.AudienceOwner})
	s.feed.Notify(ctx, channel.Toast{OrganizationID: "org-1", EventID: "everyone", ActivityLogID: uuid.New(), AudienceLevel: models.AudienceEveryone})

	type feed struct {
		Notifications []struct {
			EventID string `json:"event_id"`
		} `json:"notifications"`
	}

	rec := s.do(http.MethodGet, "/v1/organizations/org-1/notifications", s.token("org-1", models.AudienceStaff), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var staff feed
	s.decode(rec, &staff)
	s.Require().Len(staff.Notifications, 1)
	s.Equal("everyone", staff.Notifications[0].EventID)

	rec = s.do(http.MethodGet, "/v1/organizations/org-1/notifications", s.token("org-1", models.AudienceOwner), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var owner feed
	s.decode(rec, &owner)
	s.Len(owner.Notifications, 2)
}

// =============================================================================
// Broadcast config
// =============================================================================

func (s *HandlerSuite) TestConfigLifecycle() {
	path := "/v1/organizations/org-1/broadcast-config"

	rec := s.do(http.MethodGet, path, s.token("org-1", 1), nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rules := map[string]any{"rules": map[string]any{
		"recipe_deleted": map[string]any{"enabled": false, "channels": []string{"in_app"}, "minSecurityLevel": 2},
	}}

	s.Run("staff cannot change config", func() {
		rec := s.do(http.MethodPut, path, s.token("org-1", models.AudienceStaff), rules)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("manager saves and the cache sees it", func() {
		_, ok := s.cache.ConfigFor(context.Background(), "org-1")
		s.False(ok)

		rec := s.do(http.MethodPut, path, s.token("org-1", models.AudienceManager), rules)
		s.Require().Equal(http.StatusOK, rec.Code)

		cfg, ok := s.cache.ConfigFor(context.Background(), "org-1")
		s.Require().True(ok)
		s.False(cfg.Rules["recipe_deleted"].Enabled)
	})

	s.Run("get returns stored overrides", func() {
		rec := s.do(http.MethodGet, path, s.token("org-1", 4), nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var body struct {
			Rules map[string]models.Rule `json:"rules"`
		}
		s.decode(rec, &body)
		s.Equal(models.AudienceManager, body.Rules["recipe_deleted"].MinAudienceLevel)
	})

	s.Run("effective merges defaults", func() {
		rec := s.do(http.MethodGet, path+"/effective", s.token("org-1", 4), nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var body struct {
			Rules map[string]models.Rule `json:"rules"`
		}
		s.decode(rec, &body)
		s.False(body.Rules["recipe_deleted"].Enabled)
		s.True(body.Rules["recipe_created"].Enabled)
	})

	s.Run("unknown event is rejected", func() {
		rec := s.do(http.MethodPut, path, s.token("org-1", 1), map[string]any{"rules": map[string]any{
			"not_an_event": map[string]any{"enabled": true, "minSecurityLevel": 4},
		}})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("cache invalidation", func() {
		before := s.repo.Fetches()
		rec := s.do(http.MethodDelete, path+"/cache", s.token("org-1", 1), nil)
		s.Require().Equal(http.StatusNoContent, rec.Code)
		_, _ = s.cache.ConfigFor(context.Background(), "org-1")
		s.Equal(before+1, s.repo.Fetches())
	})
}
