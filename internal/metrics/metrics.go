// Package metrics holds the Prometheus collectors of the service. Collectors are
// owned by a Metrics value registered on an explicit registerer, so tests and
// multiple App instances never share process-wide counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the pipelines report to.
type Metrics struct {
	StreamMessages   *prometheus.CounterVec
	StreamReconnects *prometheus.CounterVec
	StreamGaps       *prometheus.CounterVec
	CrawlRuns        *prometheus.CounterVec
	CrawlDuration    *prometheus.HistogramVec
	FeedInserted     *prometheus.CounterVec
	Judgements       *prometheus.CounterVec
	HookInvocations  *prometheus.CounterVec
	RevertRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil registerer
// yields working but unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_stream_messages_total",
			Help: "Scoring stream messages by wiki and result (accepted, malformed, ignored).",
		}, []string{"wiki", "result"}),
		StreamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_stream_reconnects_total",
			Help: "Scoring stream reconnect attempts by wiki.",
		}, []string{"wiki"}),
		StreamGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_stream_gaps_total",
			Help: "Reconnects that resumed from now because no continuation point was available.",
		}, []string{"wiki"}),
		CrawlRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_crawl_runs_total",
			Help: "Category scope crawls by feed and result.",
		}, []string{"feed", "result"}),
		CrawlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_crawl_duration_seconds",
			Help:    "Category scope crawl duration.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"feed"}),
		FeedInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_feed_candidates_inserted_total",
			Help: "Candidates inserted into feeds.",
		}, []string{"feed"}),
		Judgements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_judgements_total",
			Help: "Judgement submissions by judgement and result.",
		}, []string{"judgement", "result"}),
		HookInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_hook_invocations_total",
			Help: "Hook invocations by hook and result.",
		}, []string{"hook", "result"}),
		RevertRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_revert_requests_total",
			Help: "Revert requests by final state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.StreamMessages, m.StreamReconnects, m.StreamGaps,
			m.CrawlRuns, m.CrawlDuration, m.FeedInserted,
			m.Judgements, m.HookInvocations, m.RevertRequests,
		)
	}
	return m
}

// Nop returns unregistered collectors, convenient for tests and tools.
func Nop() *Metrics {
	return New(nil)
}
