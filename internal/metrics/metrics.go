package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription relay
type Metrics struct {
	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Audio metrics
	FramesReceived prometheus.Counter
	FramesDropped  *prometheus.CounterVec

	// Recognition metrics
	Transcripts  *prometheus.CounterVec
	StreamErrors prometheus.Counter

	// Report metrics
	ReportsWritten prometheus.Counter
	ReportErrors   prometheus.Counter
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_sessions_active",
			Help: "Current number of streaming transcription sessions",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_total",
			Help: "Total number of transcription sessions started",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_session_duration_seconds",
			Help:    "Time from session start to close",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audio_frames_total",
			Help: "Total number of audio frames queued for recognition",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_audio_frames_dropped_total",
			Help: "Total number of audio frames dropped",
		}, []string{"reason"}),
		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_transcripts_total",
			Help: "Total number of transcript updates sent to clients",
		}, []string{"kind"}),
		StreamErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_stream_errors_total",
			Help: "Total number of recognition streams that failed",
		}),
		ReportsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_reports_written_total",
			Help: "Total number of transcript reports written",
		}),
		ReportErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_report_errors_total",
			Help: "Total number of transcript reports that failed to write",
		}),
	}
}
