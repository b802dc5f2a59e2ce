package metrics

import (
	"strconv"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "moloch"

var (
	registerOnce sync.Once

	proposalsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "submitted_total",
			Help:      "Proposals appended to the queue.",
		},
	)
	proposalsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "processed_total",
			Help:      "Processed proposals by outcome.",
		},
		[]string{"passed", "aborted"},
	)
	proposalsAborted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "aborted_total",
			Help:      "Proposals aborted by their applicant.",
		},
	)
	votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "cast_total",
			Help:      "Ballots cast by choice.",
		},
		[]string{"vote"},
	)
	ragequitShares = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "members",
			Name:      "ragequit_shares_total",
			Help:      "Shares burned by ragequit.",
		},
	)
	delegateKeyUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "members",
			Name:      "delegate_key_updates_total",
			Help:      "Delegate key changes.",
		},
	)
	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rejections_total",
			Help:      "Rejected operations by operation and error kind.",
		},
		[]string{"op", "kind"},
	)
	totalShares = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "shares",
			Name:      "total",
			Help:      "Shares held by all members.",
		},
	)
	totalSharesRequested = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "shares",
			Name:      "requested",
			Help:      "Shares reserved by unprocessed proposals.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			proposalsSubmitted,
			proposalsProcessed,
			proposalsAborted,
			votes,
			ragequitShares,
			delegateKeyUpdates,
			rejections,
			totalShares,
			totalSharesRequested,
		)
	})
}

func float(v *uint256.Int) float64 {
	f, _ := v.ToBig().Float64()
	return f
}

func RecordProposalSubmitted() {
	RegisterMetrics()
	proposalsSubmitted.Inc()
}

func RecordProposalProcessed(passed, aborted bool) {
	RegisterMetrics()
	proposalsProcessed.WithLabelValues(strconv.FormatBool(passed), strconv.FormatBool(aborted)).Inc()
}

func RecordAbort() {
	RegisterMetrics()
	proposalsAborted.Inc()
}

func RecordVote(vote string) {
	RegisterMetrics()
	votes.WithLabelValues(vote).Inc()
}

func RecordRagequit(shares *uint256.Int) {
	RegisterMetrics()
	ragequitShares.Add(float(shares))
}

func RecordDelegateKeyUpdate() {
	RegisterMetrics()
	delegateKeyUpdates.Inc()
}

func RecordRejection(op, kind string) {
	RegisterMetrics()
	rejections.WithLabelValues(op, kind).Inc()
}

func RecordShares(total, requested *uint256.Int) {
	RegisterMetrics()
	totalShares.Set(float(total))
	totalSharesRequested.Set(float(requested))
}
