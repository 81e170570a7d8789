// Package metrics exposes the small set of prometheus gauges/counters
// that let an operator see round progress, vote traffic, and MST
// activity from the outside. Full observability (tracing, structured
// per-request logging pipelines) is out of scope, but a running node
// still reports the handful of numbers an operator needs to tell "it's
// stuck" from "it's working".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the set of metrics one node process exposes. Components
// take a *Registry (or nil, in which case they record nothing) rather
// than reaching for prometheus's default global registry, so tests can
// run without a metrics endpoint at all.
type Registry struct {
	CurrentRound      prometheus.Gauge
	RoundsCommitted   prometheus.Counter
	RoundsRejected    prometheus.Counter
	VotesReceived     prometheus.Counter
	VotesDropped      prometheus.Counter
	ProposalsPrepared prometheus.Counter
	BatchesAdmitted   prometheus.Counter
	MstPendingBatches prometheus.Gauge
	SyncBlocksApplied prometheus.Counter
	SyncSignatoryMiss prometheus.Counter
}

// New registers and returns the node's metric set against reg. Pass
// prometheus.NewRegistry() in production, or a fresh registry per test
// to avoid collisions between parallel test processes.
func New(reg *prometheus.Registry) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		CurrentRound: factory.NewGauge(prometheus.GaugeOpts{
			Name: "irohad_current_round_block",
			Help: "Block round of the round currently in progress.",
		}),
		RoundsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_rounds_committed_total",
			Help: "Consensus rounds resolved as a commit.",
		}),
		RoundsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_rounds_rejected_total",
			Help: "Consensus rounds resolved as a reject.",
		}),
		VotesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_yac_votes_received_total",
			Help: "Votes accepted into vote storage.",
		}),
		VotesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_yac_votes_dropped_total",
			Help: "Votes dropped for a bad signature or an already-cleaned-up round.",
		}),
		ProposalsPrepared: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_ordering_proposals_prepared_total",
			Help: "Proposals built by the ordering service.",
		}),
		BatchesAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_ordering_batches_admitted_total",
			Help: "Transaction batches admitted past the replay cache.",
		}),
		MstPendingBatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "irohad_mst_pending_batches",
			Help: "Batches currently held pending additional signatures.",
		}),
		SyncBlocksApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_sync_blocks_applied_total",
			Help: "Blocks applied and committed by the synchronizer.",
		}),
		SyncSignatoryMiss: factory.NewCounter(prometheus.CounterOpts{
			Name: "irohad_sync_signatory_miss_total",
			Help: "Signatories that failed to supply a valid chain during VoteOther recovery.",
		}),
	}
}
