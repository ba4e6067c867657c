package msgstream

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	streamBounded     = "bounded"
	streamDurable     = "durable"
	streamPartitioned = "partitioned"
)

var (
	messagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "msgstream_appends_total", Help: "Total messages appended"},
		[]string{"stream"},
	)

	rangesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "msgstream_reads_total", Help: "Total range reads served"},
		[]string{"stream"},
	)

	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "msgstream_rejections_total", Help: "Total operations rejected, by error kind"},
		[]string{"stream", "kind"},
	)

	flushes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "msgstream_flushes_total", Help: "Total batch flushes to a journal"},
	)

	flushedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "msgstream_flushed_messages_total", Help: "Total messages written by batch flushes"},
	)

	resyncs = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "msgstream_resyncs_total", Help: "Total journal resynchronizations"},
	)

	partitionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "msgstream_partitions_active", Help: "Partitions bound to a key across all partitioned streams"},
	)

	notifications = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "msgstream_notifications_total", Help: "Total messages delivered to subscribers"},
	)
)

func init() {
	prometheus.MustRegister(messagesAppended, rangesRead, rejections, flushes, flushedMessages,
		resyncs, partitionsActive, notifications)
}

// reject records err against the stream label and returns it unchanged.
func reject(stream string, err error) error {
	if err != nil {
		rejections.WithLabelValues(stream, KindOf(err).String()).Inc()
	}
	return err
}
