package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"

	KindData     = "data"
	KindAck      = "ack"
	KindSentinel = "sentinel"

	ReasonChecksum  = "checksum"
	ReasonMalformed = "malformed"
	ReasonStale     = "stale"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shuttle",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status endpoint HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shuttle",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status endpoint HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shuttle",
			Subsystem: "transport",
			Name:      "packets_sent_total",
			Help:      "Packets handed to the channel.",
		},
		[]string{"role", "kind"},
	)
	retransmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shuttle",
			Subsystem: "transport",
			Name:      "retransmits_total",
			Help:      "Chunk packets resent after an ack wait expired.",
		},
	)
	packetsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shuttle",
			Subsystem: "transport",
			Name:      "packets_dropped_total",
			Help:      "Inbound packets discarded without side effect.",
		},
		[]string{"role", "reason"},
	)
	acksApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shuttle",
			Subsystem: "transport",
			Name:      "acks_applied_total",
			Help:      "Acks that added a new index to the ack registry.",
		},
	)
	chunksStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shuttle",
			Subsystem: "transport",
			Name:      "chunks_stored_total",
			Help:      "Chunks upserted into the reassembly buffer.",
		},
		[]string{"duplicate"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shuttle",
			Subsystem: "transport",
			Name:      "transfer_duration_seconds",
			Help:      "Wall time of one transfer.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"role", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			packetsSent, retransmits, packetsDropped, acksApplied, chunksStored, transferDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacketSent(role, kind string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(role, kind).Inc()
}

func RecordRetransmit() {
	RegisterMetrics()
	retransmits.Inc()
}

func RecordPacketDropped(role, reason string) {
	RegisterMetrics()
	packetsDropped.WithLabelValues(role, reason).Inc()
}

func RecordAckApplied() {
	RegisterMetrics()
	acksApplied.Inc()
}

func RecordChunkStored(duplicate bool) {
	RegisterMetrics()
	chunksStored.WithLabelValues(strconv.FormatBool(duplicate)).Inc()
}

func RecordTransfer(role, outcome string, duration time.Duration) {
	RegisterMetrics()
	transferDuration.WithLabelValues(role, outcome).Observe(duration.Seconds())
}
