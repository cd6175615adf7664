// Package metrics holds the Prometheus collectors for the transport and the
// scene reconciler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	connectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hexboard",
			Subsystem: "transport",
			Name:      "connect_attempts_total",
			Help:      "Physical WebSocket connection attempts.",
		},
	)
	connectionDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hexboard",
			Subsystem: "transport",
			Name:      "disconnects_total",
			Help:      "Closed connections and failed attempts.",
		},
	)
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hexboard",
			Subsystem: "transport",
			Name:      "inbound_messages_total",
			Help:      "Decoded inbound messages by type.",
		},
		[]string{"type"},
	)
	discardedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hexboard",
			Subsystem: "transport",
			Name:      "discarded_messages_total",
			Help:      "Inbound frames or entries dropped because they could not be decoded.",
		},
		[]string{"reason"},
	)
	zones = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hexboard",
			Subsystem: "scene",
			Name:      "zones",
			Help:      "Materialized zones.",
		},
	)
	zoneChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hexboard",
			Subsystem: "scene",
			Name:      "zone_changes_total",
			Help:      "Zone lifecycle and field changes applied by reconciliation.",
		},
		[]string{"op"},
	)
	overflowPlacements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hexboard",
			Subsystem: "scene",
			Name:      "overflow_placements_total",
			Help:      "Allocations that fell back to the overflow cell.",
		},
	)
	routedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hexboard",
			Subsystem: "scene",
			Name:      "events_total",
			Help:      "Events handled by the scene, by whether any zone matched.",
		},
		[]string{"matched"},
	)
)

// Register adds all collectors to the default registry. Safe to call many times.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectAttempts, connectionDrops, inboundMessages, discardedMessages,
			zones, zoneChanges, overflowPlacements, routedEvents,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func RecordConnectAttempt() { connectAttempts.Inc() }

func RecordDisconnect() { connectionDrops.Inc() }

func RecordInbound(msgType string) { inboundMessages.WithLabelValues(msgType).Inc() }

func RecordDiscard(reason string, n int) {
	if n <= 0 {
		return
	}
	discardedMessages.WithLabelValues(reason).Add(float64(n))
}

func SetZones(n int) { zones.Set(float64(n)) }

func RecordZoneChange(op string, n int) {
	if n <= 0 {
		return
	}
	zoneChanges.WithLabelValues(op).Add(float64(n))
}

func RecordOverflow() { overflowPlacements.Inc() }

func RecordEvent(matched bool) {
	if matched {
		routedEvents.WithLabelValues("true").Inc()
		return
	}
	routedEvents.WithLabelValues("false").Inc()
}
