package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/rooms"
	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/session"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/logger"
	"mindpalace/backend/pkg/observability"
	"mindpalace/backend/pkg/resilience"
)

// MessageStore is the subset of store.Store the gateway writes to.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	InsertAlert(ctx context.Context, alert *models.Alert) error
	InsertLibraryEntry(ctx context.Context, entry *models.LibraryEntry) error
}

var _ MessageStore = (store.Store)(nil)

// CounsellorDirectory names the counsellor notified for an institution.
type CounsellorDirectory interface {
	CounsellorFor(institutionCode string) string
}

// Options tunes the gateway.
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	MessagesPerSec float64
	MessageBurst   int
	AllowedOrigins []string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024,
		MessagesPerSec: 5,
		MessageBurst:   20,
	}
}

// Gateway runs the per-connection event handling on top of a Hub.
type Gateway struct {
	hub        *Hub
	classifier sensitive.Classifier
	store      MessageStore
	breaker    *resilience.CircuitBreaker
	directory  CounsellorDirectory
	opts       Options
	log        *logger.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
	now        func() time.Time

	inflight sync.WaitGroup
}

// Deps are the gateway collaborators. Directory, Metrics and Breaker are
// optional.
type Deps struct {
	Hub        *Hub
	Classifier sensitive.Classifier
	Store      MessageStore
	Breaker    *resilience.CircuitBreaker
	Directory  CounsellorDirectory
	Metrics    *observability.Metrics
	Logger     *logger.Logger
}

// NewGateway wires a gateway.
func NewGateway(deps Deps, opts Options) *Gateway {
	defaults := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}
	if opts.MessagesPerSec <= 0 {
		opts.MessagesPerSec = defaults.MessagesPerSec
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = defaults.MessageBurst
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetGlobal()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics()
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultConfig("gateway-store"), log)
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(nil, log)
	}

	return &Gateway{
		hub:        hub,
		classifier: deps.Classifier,
		store:      deps.Store,
		breaker:    breaker,
		directory:  deps.Directory,
		opts:       opts,
		log:        log,
		metrics:    metrics,
		tracer:     otel.Tracer("mindpalace/backend/internal/ws"),
		now:        time.Now,
	}
}

// Hub returns the gateway's hub.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// Wait blocks until background persistence has finished.
func (g *Gateway) Wait() {
	g.inflight.Wait()
}

func (g *Gateway) connect(c *Client) {
	g.hub.Register(c)
	g.metrics.ActiveConnections.Add(context.Background(), 1)
	c.log.Info("client connected", "role", string(c.Identity.Role))
}

func (g *Gateway) disconnect(c *Client) {
	g.hub.Unregister(c)
	g.metrics.ActiveConnections.Add(context.Background(), -1)
	c.log.Info("client disconnected")
}

func (g *Gateway) dropped(c *Client, reason string) {
	g.metrics.EventsDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Handle processes one inbound event for c.
func (g *Gateway) Handle(c *Client, env Envelope) {
	switch env.Type {
	case EventJoin:
		g.handleJoin(c, env.Content)
	case EventLeave:
		g.handleLeave(c, env.Content)
	case EventMessage:
		g.handleMessage(c, env.Content)
	case EventRequestPrivateSession:
		g.handlePrivateSession(c, env.Content)
	case EventPing:
		c.sendEvent(EventPong, nil)
	default:
		c.log.Debug("dropping unknown event", "type", env.Type)
		g.dropped(c, "unknown_event")
	}
}

func (g *Gateway) handleJoin(c *Client, raw json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || !rooms.IsJoinable(p.RoomID) {
		c.log.Debug("dropping join", "room_id", p.RoomID)
		g.dropped(c, "invalid_room")
		return
	}
	g.hub.Join(c, p.RoomID)
	c.log.Debug("joined room", "room_id", p.RoomID)
}

func (g *Gateway) handleLeave(c *Client, raw json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		g.dropped(c, "invalid_room")
		return
	}
	g.hub.Leave(c, p.RoomID)
}

func (g *Gateway) handleMessage(c *Client, raw json.RawMessage) {
	var p MessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.dropped(c, "malformed")
		return
	}
	if strings.TrimSpace(p.Text) == "" || !rooms.IsJoinable(p.RoomID) || !g.hub.InRoom(c, p.RoomID) {
		c.log.Debug("dropping message", "room_id", p.RoomID)
		g.dropped(c, "invalid_message")
		return
	}
	if !c.limiter.Allow() {
		c.sendEvent(EventError, ErrorEvent{Message: "You are sending messages too quickly."})
		g.dropped(c, "rate_limited")
		return
	}

	if sensitive.ContainsContactDetails(p.Text) {
		c.sendEvent(EventAlert, AlertEvent{Severity: sensitive.SeverityHigh, Text: ContactBlockedText})
		g.metrics.ContactBlocks.Add(context.Background(), 1)
		return
	}

	if p.AuthorAnonymousID == "" {
		p.AuthorAnonymousID = c.Identity.AnonymousID
	}
	if !p.AuthorRole.Valid() {
		p.AuthorRole = c.Identity.Role
	}
	if p.Consent != nil && !p.Consent.Retained() {
		p.Consent = nil
	}
	if p.InstitutionCode == nil && c.Identity.InstitutionCode != "" {
		code := c.Identity.InstitutionCode
		p.InstitutionCode = &code
	}

	msg := ChatMessage{MessagePayload: p, ID: uuid.NewString(), CreatedAt: g.now().UTC()}
	frame, err := Encode(EventMessage, msg)
	if err != nil {
		c.log.LogError(err, "encode message failed")
		return
	}
	// Counted before the broadcast so Wait covers every delivered message.
	g.inflight.Add(1)
	g.hub.Broadcast(context.Background(), p.RoomID, frame)
	g.metrics.MessagesBroadcast.Add(context.Background(), 1)

	go func() {
		defer g.inflight.Done()
		g.persist(c.log.WithRoom(p.RoomID), msg)
	}()
}

// persist classifies and stores a broadcast message. Each step is
// independent: a failed step is logged and the others still run.
func (g *Gateway) persist(log *logger.Logger, msg ChatMessage) {
	ctx, span := g.tracer.Start(context.Background(), "gateway.persist",
		trace.WithAttributes(attribute.String("room_id", msg.RoomID)))
	defer span.End()

	institution := ""
	if msg.InstitutionCode != nil {
		institution = *msg.InstitutionCode
	}

	if g.classifier != nil {
		result := g.classifier.Classify(msg.Text)
		span.SetAttributes(attribute.String("severity", string(result.Severity)))
		if result.Flagged {
			g.raiseAlert(ctx, log, msg, institution, result)
		}
	}

	record := &models.Message{
		ID:                msg.ID,
		RoomID:            msg.RoomID,
		InstitutionCode:   msg.InstitutionCode,
		AuthorAnonymousID: msg.AuthorAnonymousID,
		AuthorRole:        msg.AuthorRole,
		Text:              msg.Text,
		Consent:           msg.Consent,
		Tags:              msg.Tags,
		CreatedAt:         msg.CreatedAt,
	}
	if err := g.write(ctx, func(ctx context.Context) error { return g.store.InsertMessage(ctx, record) }); err != nil {
		g.persistFailed(ctx, span, log, "message", err)
	}

	if msg.Consent != nil && msg.Consent.Retained() {
		tags := msg.Tags
		if tags == nil {
			tags = []string{}
		}
		entry := &models.LibraryEntry{
			MessageID:         msg.ID,
			RoomID:            msg.RoomID,
			InstitutionCode:   msg.InstitutionCode,
			AuthorAnonymousID: msg.AuthorAnonymousID,
			AuthorRole:        msg.AuthorRole,
			Text:              msg.Text,
			Tone:              *msg.Consent,
			Tags:              tags,
			CreatedAt:         msg.CreatedAt,
		}
		if err := g.write(ctx, func(ctx context.Context) error { return g.store.InsertLibraryEntry(ctx, entry) }); err != nil {
			g.persistFailed(ctx, span, log, "library_entry", err)
		}
	}
}

// raiseAlert stores the alert and, once stored, tells the room a message was
// flagged.
func (g *Gateway) raiseAlert(ctx context.Context, log *logger.Logger, msg ChatMessage, institution string, result sensitive.Result) {
	alert := &models.Alert{
		MessageID:          msg.ID,
		InstitutionCode:    institution,
		RoomID:             msg.RoomID,
		StudentAnonymousID: msg.AuthorAnonymousID,
		Text:               msg.Text,
		Keyword:            result.Keyword,
		Tags:               result.Tags(),
		Matches:            result.Matches,
		Severity:           result.Severity,
		Status:             models.AlertOpen,
		CreatedAt:          g.now().UTC(),
	}
	if g.directory != nil {
		alert.NotifyCounsellorID = g.directory.CounsellorFor(institution)
	}

	if err := g.write(ctx, func(ctx context.Context) error { return g.store.InsertAlert(ctx, alert) }); err != nil {
		g.persistFailed(ctx, trace.SpanFromContext(ctx), log, "alert", err)
		return
	}
	g.metrics.AlertsRaised.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", string(result.Severity))))
	log.Info("alert raised", "alert_id", alert.ID, "severity", string(result.Severity), "keyword", result.Keyword)

	frame, err := Encode(EventAlert, AlertEvent{Severity: result.Severity, Text: RoomAdvisoryText})
	if err != nil {
		log.LogError(err, "encode alert failed")
		return
	}
	g.hub.Broadcast(ctx, msg.RoomID, frame)
}

func (g *Gateway) write(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.store == nil {
		return errors.New("no store configured")
	}
	return g.breaker.Execute(ctx, fn)
}

func (g *Gateway) persistFailed(ctx context.Context, span trace.Span, log *logger.Logger, what string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, what+" write failed")
	g.metrics.PersistFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("record", what)))
	log.LogError(err, "persist failed", "record", what)
}

func (g *Gateway) handlePrivateSession(c *Client, raw json.RawMessage) {
	var p PrivateSessionRequest
	if err := json.Unmarshal(raw, &p); err != nil {
		g.dropped(c, "malformed")
		return
	}
	if p.InstitutionCode == "" {
		p.InstitutionCode = c.Identity.InstitutionCode
	}
	if p.CounsellorID == "" {
		p.CounsellorID = c.Identity.AnonymousID
	}

	delivery, err := session.RequestPrivateSession(session.Request{
		Role:            c.Identity.Role,
		InstitutionCode: p.InstitutionCode,
		CounsellorID:    p.CounsellorID,
		TargetStudentID: p.TargetStudentID,
	})
	switch {
	case errors.Is(err, session.ErrNotCounsellor):
		c.sendEvent(EventError, ErrorEvent{Message: "Only counsellors can start a private session."})
		return
	case err != nil:
		c.sendEvent(EventError, ErrorEvent{Message: "A counsellor and a student are required to start a private session."})
		return
	}

	frame, err := Encode(EventPrivateSessionInvite, delivery.Invite)
	if err != nil {
		c.log.LogError(err, "encode invite failed")
		return
	}
	g.hub.Broadcast(context.Background(), delivery.Room, frame)
	c.log.Info("private session invite sent", "room_id", delivery.Room, "private_room_id", delivery.Invite.PrivateRoomID)
}
