// README: Prometheus counters for dispatch, bidding, and penalty events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	BidsSubmitted       prometheus.Counter
	BidsClamped         *prometheus.CounterVec
	BidsBlocked         *prometheus.CounterVec
	AcceptanceCommits   prometheus.Counter
	AcceptanceConflicts prometheus.Counter
	CooldownsApplied    prometheus.Counter
	LocksApplied        prometheus.Counter
	CancelEvents        *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	BroadcastFallbacks  prometheus.Counter
	ScoresComputed      *prometheus.CounterVec
}

// NewCollector registers all counters on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		BidsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridebid_bids_submitted_total",
			Help: "Bids accepted for consideration after validation.",
		}),
		BidsClamped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridebid_bids_clamped_total",
			Help: "Bid amounts adjusted to the allowed range.",
		}, []string{"direction"}),
		BidsBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridebid_bids_blocked_total",
			Help: "Bid submissions rejected by eligibility checks.",
		}, []string{"reason"}),
		AcceptanceCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridebid_acceptance_commits_total",
			Help: "Successful single-winner acceptance writes.",
		}),
		AcceptanceConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridebid_acceptance_conflicts_total",
			Help: "Acceptance attempts that lost the commit race.",
		}),
		CooldownsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridebid_cooldowns_applied_total",
			Help: "Global bidding cooldowns applied to drivers.",
		}),
		LocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridebid_eligibility_locks_total",
			Help: "Permanent per-ride re-bid locks applied.",
		}),
		CancelEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridebid_cancel_events_total",
			Help: "Driver cancel-after-award events recorded.",
		}, []string{"exempted"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridebid_notifications_total",
			Help: "Outbound gateway events by type.",
		}, []string{"type"}),
		BroadcastFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridebid_broadcast_fallbacks_total",
			Help: "Broadcast reads served by the unindexed fallback path.",
		}),
		ScoresComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridebid_scores_computed_total",
			Help: "Reliability score recomputations by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		c.BidsSubmitted, c.BidsClamped, c.BidsBlocked,
		c.AcceptanceCommits, c.AcceptanceConflicts,
		c.CooldownsApplied, c.LocksApplied, c.CancelEvents,
		c.NotificationsSent, c.BroadcastFallbacks, c.ScoresComputed,
	)
	return c
}

// NewNopCollector returns a collector on a private registry, for tests.
func NewNopCollector() *Collector {
	return NewCollector(prometheus.NewRegistry())
}
