package monitoring

import (
	"coedit/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes client-side protocol metrics. Call state is a
// labeled gauge: exactly one state label holds 1 at any time.
type PrometheusCollector struct {
	eventsSentTotal     *prometheus.CounterVec
	eventsReceivedTotal *prometheus.CounterVec

	editsBroadcastTotal  prometheus.Counter
	editsSuppressedTotal prometheus.Counter
	autosaveFailedTotal  prometheus.Counter

	peerLinksOpen  prometheus.Gauge
	peerLinksTotal prometheus.Counter

	callState *prometheus.GaugeVec
}

var _ ports.Collector = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		eventsSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_relay_events_sent_total",
			Help: "Relay events sent, by event name",
		}, []string{"event"}),

		eventsReceivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_relay_events_received_total",
			Help: "Relay events received, by event name",
		}, []string{"event"}),

		editsBroadcastTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coedit_edits_broadcast_total",
			Help: "Local edits broadcast to the document room",
		}),

		editsSuppressedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coedit_edits_suppressed_total",
			Help: "Buffer changes suppressed as echoes of remote updates",
		}),

		autosaveFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coedit_autosave_failures_total",
			Help: "Autosave requests that failed or were short-circuited",
		}),

		peerLinksOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "coedit_peer_links_open",
			Help: "Currently open call peer links, self included",
		}),

		peerLinksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coedit_peer_links_total",
			Help: "Peer links opened since start",
		}),

		callState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coedit_call_state",
			Help: "Current call lifecycle state (1 on the active state label)",
		}, []string{"state"}),
	}
}

func (p *PrometheusCollector) RecordEventSent(event string) {
	p.eventsSentTotal.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) RecordEventReceived(event string) {
	p.eventsReceivedTotal.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) RecordEditBroadcast() {
	p.editsBroadcastTotal.Inc()
}

func (p *PrometheusCollector) RecordEditSuppressed() {
	p.editsSuppressedTotal.Inc()
}

func (p *PrometheusCollector) RecordAutosaveFailure() {
	p.autosaveFailedTotal.Inc()
}

func (p *PrometheusCollector) RecordPeerLinkOpened() {
	p.peerLinksOpen.Inc()
	p.peerLinksTotal.Inc()
}

func (p *PrometheusCollector) RecordPeerLinkClosed() {
	p.peerLinksOpen.Dec()
}

var callStates = []string{"idle", "acquiring_media", "announced", "active"}

func (p *PrometheusCollector) SetCallState(state string) {
	for _, s := range callStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		p.callState.WithLabelValues(s).Set(value)
	}
}

// NopCollector discards all metrics; used when Prometheus is disabled and in
// tests.
type NopCollector struct{}

var _ ports.Collector = NopCollector{}

func (NopCollector) RecordEventSent(string)     {}
func (NopCollector) RecordEventReceived(string) {}
func (NopCollector) RecordEditBroadcast()       {}
func (NopCollector) RecordEditSuppressed()      {}
func (NopCollector) RecordAutosaveFailure()     {}
func (NopCollector) RecordPeerLinkOpened()      {}
func (NopCollector) RecordPeerLinkClosed()      {}
func (NopCollector) SetCallState(string)        {}
