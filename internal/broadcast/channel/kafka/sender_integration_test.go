//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"brigade/internal/broadcast/channel"
	"brigade/internal/broadcast/channel/kafka"
	"brigade/internal/broadcast/models"
	"brigade/pkg/testutil/containers"
)

type KafkaSenderSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaSenderSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSenderSuite))
}

func (s *KafkaSenderSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaSenderSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	client := s.redpanda.NewClient(s.T())
	topic := "ensure-" + uuid.NewString()

	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 3, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 3, 1))
}

func (s *KafkaSenderSuite) TestSendIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "forward-" + uuid.NewString()
	producer := s.redpanda.NewClient(s.T())
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, topic, 1, 1))

	sender, err := kafka.NewSender(producer, kafka.WithTopic(topic))
	s.Require().NoError(err)

	req := channel.ForwardRequest{
		Channel:                models.ChannelEmail,
		OrganizationID:         "org-1",
		EventID:                "temperature_out_of_range",
		RecipientAudienceLevel: models.AudienceManager,
		Context: channel.RenderedContext{
			ActivityLogID: uuid.New(),
			Message:       "Walk-in cooler at 9°C",
			Severity:      models.SeverityCritical,
			Category:      models.CategoryFoodSafety,
		},
	}
	res, err := sender.Send(ctx, req)
	s.Require().NoError(err)
	s.Equal(channel.StatusAccepted, res.Status)

	consumer := s.redpanda.NewClient(s.T(),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("org-1", string(records[0].Key))

	var got channel.ForwardRequest
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(req, got)
}
