package observability

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics are the realtime gateway instruments.
type Metrics struct {
	MessagesBroadcast metric.Int64Counter
	ContactBlocks     metric.Int64Counter
	AlertsRaised      metric.Int64Counter
	PersistFailures   metric.Int64Counter
	EventsDropped     metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
}

// NewMetrics registers the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.MessagesBroadcast, err = meter.Int64Counter("gateway.messages.broadcast",
		metric.WithDescription("Chat messages fanned out to a room")); err != nil {
		return nil, err
	}
	if m.ContactBlocks, err = meter.Int64Counter("gateway.messages.contact_blocked",
		metric.WithDescription("Messages blocked for carrying contact details")); err != nil {
		return nil, err
	}
	if m.AlertsRaised, err = meter.Int64Counter("moderation.alerts.raised",
		metric.WithDescription("Alerts persisted for flagged messages")); err != nil {
		return nil, err
	}
	if m.PersistFailures, err = meter.Int64Counter("gateway.persist.failures",
		metric.WithDescription("Best-effort writes that failed")); err != nil {
		return nil, err
	}
	if m.EventsDropped, err = meter.Int64Counter("gateway.events.dropped",
		metric.WithDescription("Inbound events dropped as invalid")); err != nil {
		return nil, err
	}
	if m.ActiveConnections, err = meter.Int64UpDownCounter("gateway.connections.active",
		metric.WithDescription("Open realtime connections")); err != nil {
		return nil, err
	}
	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(""))
	return m
}
