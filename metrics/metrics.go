package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChunksReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vidbridge_chunks_received_total",
		Help: "Chunks applied to upload sessions, including idempotent re-deliveries.",
	})
	UploadsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vidbridge_uploads_completed_total",
		Help: "Uploads fully reassembled and tokenized.",
	})
	UploadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vidbridge_upload_errors_total",
		Help: "Chunk writes that failed and were reported to the sender.",
	})
	ActiveUploads = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vidbridge_active_uploads",
		Help: "Upload sessions currently held in memory.",
	})
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vidbridge_deliveries_total",
		Help: "Delivery attempts by outcome.",
	}, []string{"outcome"})
	BytesServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vidbridge_bytes_served_total",
		Help: "Bytes streamed to recipients by the file server.",
	})
)

func init() {
	prometheus.MustRegister(
		ChunksReceivedTotal,
		UploadsCompletedTotal,
		UploadErrorsTotal,
		ActiveUploads,
		DeliveriesTotal,
		BytesServedTotal,
	)
}
