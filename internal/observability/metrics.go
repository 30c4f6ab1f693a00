package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtp_translator_active_calls",
		Help: "Number of calls with a live session",
	})

	totalCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtp_translator_calls_total",
		Help: "Total number of call sessions created",
	})

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtp_translator_call_duration_seconds",
		Help:    "Duration of call sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Packet metrics
	packetsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtp_translator_packets_received_total",
		Help: "RTP packets accepted on listener sockets",
	})

	packetsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtp_translator_packets_sent_total",
		Help: "RTP packets written back to callers",
	})

	malformedPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtp_translator_malformed_packets_total",
		Help: "Datagrams dropped because they were not valid RTP",
	})

	// Window and pipeline metrics
	windowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtp_translator_windows_total",
		Help: "Audio windows flushed, by outcome",
	}, []string{"outcome"}) // dispatched, silent, empty, failed

	dispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtp_translator_dispatch_in_flight",
		Help: "Windows currently being processed by the pipeline",
	})

	translationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtp_translator_translations_total",
		Help: "Windows translated and sent back to the caller",
	})

	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtp_translator_stage_requests_total",
		Help: "Pipeline stage invocations",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rtp_translator_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtp_translator_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rtp_translator_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtp_translator_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtp_translator_audio_bytes_total",
		Help: "Total μ-law payload bytes",
	}, []string{"direction"}) // direction: "in" or "out"
)

// MetricsHandler exposes the default Prometheus registry
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordCallStart records a new call session
func RecordCallStart() {
	activeCalls.Inc()
	totalCalls.Inc()
}

// RecordCallEnd records the end of a call session
func RecordCallEnd(duration time.Duration) {
	activeCalls.Dec()
	callDuration.Observe(duration.Seconds())
}

// RecordPacketIn records one accepted inbound packet and its payload size
func RecordPacketIn(payloadBytes int) {
	packetsReceived.Inc()
	audioBytesProcessed.WithLabelValues("in").Add(float64(payloadBytes))
}

// RecordPacketOut records one outbound packet and its payload size
func RecordPacketOut(payloadBytes int) {
	packetsSent.Inc()
	audioBytesProcessed.WithLabelValues("out").Add(float64(payloadBytes))
}

// RecordMalformedPacket records a dropped datagram
func RecordMalformedPacket() {
	malformedPackets.Inc()
}

// RecordWindow records what happened to a flushed window
func RecordWindow(outcome string) {
	windowsTotal.WithLabelValues(outcome).Inc()
}

// RecordTranslation records one translated window
func RecordTranslation() {
	translationsTotal.Inc()
}

// DispatchStarted and DispatchFinished track windows inside the pipeline
func DispatchStarted() {
	dispatchInFlight.Inc()
}

func DispatchFinished() {
	dispatchInFlight.Dec()
}

// ObserveStage records latency and outcome of one pipeline stage call
func ObserveStage(stage string, start time.Time, err error) {
	stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
