// Package dispatcher is the single ingestion point of the broadcast engine.
//
// Dispatch classifies an event, records it in the audit log and routes it to the
// channels the organization's rules allow. It never returns an error: instrumentation
// must not break the business action that produced the event. Failures are logged,
// counted and abort only the rest of that one dispatch.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"brigade/internal/broadcast/channel"
	"brigade/internal/broadcast/metrics"
	"brigade/internal/broadcast/models"
	"brigade/internal/broadcast/taxonomy"
	"brigade/pkg/requestcontext"
)

// DefaultStepTimeout bounds each I/O step of a dispatch.
const DefaultStepTimeout = 3 * time.Second

// Toast durations by severity.
const (
	criticalToastDuration = 7 * time.Second
	warningToastDuration  = 6 * time.Second
	infoToastDuration     = 4 * time.Second
)

// Detail and metadata keys read or written by the dispatcher.
const (
	detailUserName       = "user_name"
	detailAffectedUserID = "affected_user_id"
	metaRequestID        = "request_id"
)

// Failure stages, used as the metrics label and in logs.
const (
	stageActorLookup = "actor_lookup"
	stageAudit       = "audit"
	stageDiff        = "diff"
	stageConfig      = "config"
	stageInApp       = "in_app"
	stageForward     = "forward"
	stagePanic       = "panic"
)

var errStepTimeout = errors.New("step timed out")

// Overrides replace derived values of a single event.
type Overrides struct {
	Severity               models.Severity
	Message                string
	RequiresAcknowledgment *bool
}

// Event is one occurrence submitted by a caller.
type Event struct {
	OrganizationID string
	ActorID        string
	EventID        string
	Details        map[string]any
	Metadata       map[string]any
	Overrides      Overrides
}

// Dispatcher runs the classification, audit and broadcast pipeline.
type Dispatcher struct {
	registry  *taxonomy.Registry
	store     ActivityStore
	configs   ConfigProvider
	directory Directory
	notifier  channel.Notifier
	forward   channel.ForwardSender

	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	clock       func() time.Time
	stepTimeout time.Duration
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithDirectory sets the team directory used when details carry no user_name.
func WithDirectory(dir Directory) Option {
	return func(d *Dispatcher) {
		d.directory = dir
	}
}

// WithNotifier sets the in-app adapter.
func WithNotifier(n channel.Notifier) Option {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

// WithForwardSender sets the email/SMS adapter. Defaults to channel.NopSender.
func WithForwardSender(s channel.ForwardSender) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.forward = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithClock sets the clock used to stamp entries.
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithStepTimeout overrides DefaultStepTimeout.
func WithStepTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.stepTimeout = timeout
		}
	}
}

// New creates a Dispatcher.
func New(registry *taxonomy.Registry, store ActivityStore, configs ConfigProvider, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("taxonomy registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("activity store is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config provider is required")
	}
	d := &Dispatcher{
		registry:    registry,
		store:       store,
		configs:     configs,
		forward:     channel.NopSender{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("brigade/internal/broadcast/dispatcher"),
		clock:       time.Now,
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch records ev and broadcasts it. It always returns normally.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	defer d.metrics.ObserveDispatch(time.Now())

	ctx, span := d.tracer.Start(ctx, "broadcast.dispatch", trace.WithAttributes(
		attribute.String("organization.id", ev.OrganizationID),
		attribute.String("event.id", ev.EventID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, span, stagePanic, ev, fmt.Errorf("panic: %v", r))
		}
	}()

	d.dispatch(ctx, span, ev)
}

func (d *Dispatcher) dispatch(ctx context.Context, span trace.Span, ev Event) {
	def, known := d.registry.Definition(ev.EventID)
	category := models.CategorySystem
	if known {
		category = def.Category
	}
	severity := resolveSeverity(ev, def)
	requiresAck := severity.RequiresAcknowledgment()
	if ev.Overrides.RequiresAcknowledgment != nil {
		requiresAck = *ev.Overrides.RequiresAcknowledgment
	}
	message := ev.Overrides.Message
	if message == "" {
		message = def.RenderMessage(ev.Details)
	}
	if message == "" {
		message = taxonomy.Humanize(ev.EventID)
	}
	span.SetAttributes(
		attribute.String("event.category", string(category)),
		attribute.String("event.severity", string(severity)),
	)

	entry := &models.ActivityLogEntry{
		OrganizationID:         ev.OrganizationID,
		ActorID:                ev.ActorID,
		ActorName:              d.actorName(ctx, span, ev),
		EventID:                ev.EventID,
		Category:               category,
		Severity:               severity,
		Message:                message,
		RequiresAcknowledgment: requiresAck,
		Details:                ev.Details,
		Metadata:               withRequestID(ctx, ev.Metadata),
		CreatedAt:              d.clock(),
	}

	logID, err := runStep(ctx, d.stepTimeout, func(ctx context.Context) (uuid.UUID, error) {
		return d.store.InsertActivityLog(ctx, entry)
	})
	if err != nil {
		d.fail(ctx, span, stageAudit, ev, err)
		return
	}
	entry.ID = logID
	d.metrics.IncDispatched(category, severity)
	span.SetAttributes(attribute.String("activity_log.id", logID.String()))

	// The diff write and the rule lookup are independent; both finish before broadcast.
	var (
		g       errgroup.Group
		rule    models.Rule
		ruleErr error
	)
	if diff, ok := models.DiffFromMetadata(ev.OrganizationID, ev.Metadata); ok {
		diff.ActivityLogID = logID
		g.Go(func() error {
			_, err := runStep(ctx, d.stepTimeout, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, d.store.InsertDiff(ctx, logID, diff)
			})
			if err != nil {
				d.fail(ctx, span, stageDiff, ev, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		rule, ruleErr = runStep(ctx, d.stepTimeout, func(ctx context.Context) (models.Rule, error) {
			cfg, _ := d.configs.ConfigFor(ctx, ev.OrganizationID)
			return resolveRule(cfg, ev.EventID, def, known), nil
		})
		return nil
	})
	_ = g.Wait()

	if ruleErr != nil {
		d.fail(ctx, span, stageConfig, ev, ruleErr)
		return
	}
	if !rule.Enabled {
		d.logger.DebugContext(ctx, "broadcast disabled for event",
			"organization_id", ev.OrganizationID,
			"event_id", ev.EventID,
		)
		return
	}

	if rule.HasChannel(models.ChannelInApp) && def.Toast.Mode != taxonomy.ToastSilent {
		d.notify(ctx, span, ev, entry, def, rule)
	}

	rendered := channel.RenderedContext{
		ActivityLogID: logID,
		Message:       message,
		Severity:      severity,
		Category:      category,
		ActorName:     entry.ActorName,
		Details:       ev.Details,
	}
	if def.NotifyAffectedPerson {
		rendered.AffectedPersonID, _ = ev.Details[detailAffectedUserID].(string)
	}
	for _, ch := range []models.Channel{models.ChannelEmail, models.ChannelSMS} {
		if rule.HasChannel(ch) {
			d.sendForward(ctx, span, ev, ch, audienceOf(rule, def), rendered)
		}
	}
}

func resolveSeverity(ev Event, def taxonomy.EventDefinition) models.Severity {
	if ev.Overrides.Severity.IsValid() {
		return ev.Overrides.Severity
	}
	if s, ok := def.SeverityFor(ev.Details); ok {
		return s
	}
	return models.SeverityInfo
}

// resolveRule prefers the organization's entry, then the taxonomy default.
// Unregistered events reach everyone in-app only.
func resolveRule(cfg *models.OrganizationConfig, eventID string, def taxonomy.EventDefinition, known bool) models.Rule {
	if rule, ok := cfg.RuleFor(eventID); ok {
		return rule
	}
	if known {
		return def.DefaultRule()
	}
	return models.Rule{
		Enabled:          true,
		Channels:         []models.Channel{models.ChannelInApp},
		MinAudienceLevel: models.AudienceEveryone,
	}
}

func (d *Dispatcher) actorName(ctx context.Context, span trace.Span, ev Event) string {
	if name, ok := ev.Details[detailUserName].(string); ok && name != "" {
		return name
	}
	if d.directory == nil || ev.ActorID == "" {
		return ""
	}
	name, err := runStep(ctx, d.stepTimeout, func(ctx context.Context) (string, error) {
		return d.directory.DisplayName(ctx, ev.OrganizationID, ev.ActorID)
	})
	if err != nil {
		d.metrics.IncFailure(stageActorLookup)
		span.RecordError(err)
		d.logger.WarnContext(ctx, "actor lookup failed",
			"organization_id", ev.OrganizationID,
			"actor_id", ev.ActorID,
			"error", err,
		)
		return ""
	}
	return name
}

func (d *Dispatcher) notify(ctx context.Context, span trace.Span, ev Event, entry *models.ActivityLogEntry, def taxonomy.EventDefinition, rule models.Rule) {
	if d.notifier == nil {
		return
	}
	var accent string
	if cat, ok := d.registry.Category(entry.Category); ok {
		accent = cat.Color
	}
	toast := channel.Toast{
		OrganizationID: ev.OrganizationID,
		EventID:        ev.EventID,
		ActivityLogID:  entry.ID,
		Message:        entry.Message,
		Severity:       entry.Severity,
		AccentColor:    accent,
		Duration:       toastDuration(entry.Severity, def.Toast),
		AudienceLevel:  audienceOf(rule, def),
		CreatedAt:      entry.CreatedAt,
	}
	_, err := runStep(ctx, d.stepTimeout, func(ctx context.Context) (struct{}, error) {
		d.notifier.Notify(ctx, toast)
		return struct{}{}, nil
	})
	if err != nil {
		d.fail(ctx, span, stageInApp, ev, err)
		return
	}
	d.metrics.IncNotification(models.ChannelInApp)
}

// sendForward failures are independent per channel.
func (d *Dispatcher) sendForward(ctx context.Context, span trace.Span, ev Event, ch models.Channel, audience int, rendered channel.RenderedContext) {
	req := channel.ForwardRequest{
		Channel:                ch,
		OrganizationID:         ev.OrganizationID,
		EventID:                ev.EventID,
		RecipientAudienceLevel: audience,
		Context:                rendered,
	}
	res, err := runStep(ctx, d.stepTimeout, func(ctx context.Context) (channel.Result, error) {
		return d.forward.Send(ctx, req)
	})
	if err != nil {
		d.fail(ctx, span, stageForward, ev, fmt.Errorf("%s: %w", ch, err))
		return
	}
	if res.Status == channel.StatusAccepted {
		d.metrics.IncNotification(ch)
	}
	d.logger.DebugContext(ctx, "forward request handed off",
		"organization_id", ev.OrganizationID,
		"event_id", ev.EventID,
		"channel", string(ch),
		"status", string(res.Status),
		"reference", res.Reference,
	)
}

func (d *Dispatcher) fail(ctx context.Context, span trace.Span, stage string, ev Event, err error) {
	d.metrics.IncFailure(stage)
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	d.logger.ErrorContext(ctx, "activity dispatch step failed",
		"stage", stage,
		"organization_id", ev.OrganizationID,
		"event_id", ev.EventID,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func toastDuration(severity models.Severity, rule taxonomy.ToastRule) time.Duration {
	if rule.Mode == taxonomy.ToastCustom && rule.Duration > 0 {
		return rule.Duration
	}
	switch severity {
	case models.SeverityCritical:
		return criticalToastDuration
	case models.SeverityWarning:
		return warningToastDuration
	default:
		return infoToastDuration
	}
}

// audienceOf falls back to the event's default audience, then to owners only, when
// a stored rule carries no usable level.
func audienceOf(rule models.Rule, def taxonomy.EventDefinition) int {
	if validAudience(rule.MinAudienceLevel) {
		return rule.MinAudienceLevel
	}
	if validAudience(def.DefaultAudience) {
		return def.DefaultAudience
	}
	return models.AudienceOwner
}

func validAudience(level int) bool {
	return level >= models.AudienceOwner && level <= models.AudienceEveryone
}

func withRequestID(ctx context.Context, metadata map[string]any) map[string]any {
	requestID := requestcontext.RequestID(ctx)
	if requestID == "" {
		return metadata
	}
	if _, set := metadata[metaRequestID]; set {
		return metadata
	}
	out := maps.Clone(metadata)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[metaRequestID] = requestID
	return out
}

type stepResult[T any] struct {
	value T
	err   error
}

// runStep runs fn under its own deadline. A panic inside fn and an expired deadline
// are both returned as errors. fn keeps running after a timeout until it returns,
// but its result is discarded.
func runStep[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stepResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stepResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- stepResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", errStepTimeout, ctx.Err())
	}
}
