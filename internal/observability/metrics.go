package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	receiverMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nxcp",
			Subsystem: "receiver",
			Name:      "messages_total",
			Help:      "Messages decoded from a stream.",
		},
		[]string{"conn", "kind"},
	)
	receiverBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nxcp",
			Subsystem: "receiver",
			Name:      "bytes_total",
			Help:      "Wire bytes consumed by decoded messages.",
		},
		[]string{"conn"},
	)
	receiverErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nxcp",
			Subsystem: "receiver",
			Name:      "errors_total",
			Help:      "Terminal receive errors by reason.",
		},
		[]string{"conn", "reason"},
	)
	receiverBuffer = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nxcp",
			Subsystem: "receiver",
			Name:      "buffer_bytes",
			Help:      "Current receive buffer capacity.",
		},
		[]string{"conn"},
	)
	senderMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nxcp",
			Subsystem: "sender",
			Name:      "messages_total",
			Help:      "Messages encoded and written.",
		},
		[]string{"conn", "kind", "compressed", "encrypted"},
	)
	senderBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nxcp",
			Subsystem: "sender",
			Name:      "bytes_total",
			Help:      "Wire bytes written.",
		},
		[]string{"conn"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			receiverMessages, receiverBytes, receiverErrors, receiverBuffer,
			senderMessages, senderBytes,
		)
	})
}

func RecordReceived(conn, kind string, size int) {
	RegisterMetrics()
	receiverMessages.WithLabelValues(conn, kind).Inc()
	receiverBytes.WithLabelValues(conn).Add(float64(size))
}

func RecordReceiveError(conn, reason string) {
	RegisterMetrics()
	receiverErrors.WithLabelValues(conn, reason).Inc()
}

func SetBufferSize(conn string, capacity int) {
	RegisterMetrics()
	receiverBuffer.WithLabelValues(conn).Set(float64(capacity))
}

func RecordSent(conn, kind string, size int, compressed, encrypted bool) {
	RegisterMetrics()
	senderMessages.WithLabelValues(conn, kind, strconv.FormatBool(compressed), strconv.FormatBool(encrypted)).Inc()
	senderBytes.WithLabelValues(conn).Add(float64(size))
}
