package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"head-monitor/app/src/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var measurementLabels = []string{"dataset", "measurement_name"}

// DelayBuckets are the histogram buckets for delays, in milliseconds.
var DelayBuckets = []float64{10, 25, 50, 100, 150, 200, 250, 300, 350, 400, 450, 500, 600, 700, 800, 900, 1000, 2500, 5000, 10000, 25000}

var (
	// Delay metrics
	DelayHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "head_monitor_result_ms",
		Help:    "Delay between reference timestamp and service head",
		Buckets: DelayBuckets,
	}, measurementLabels)
	LastDelay = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "head_monitor_result_ms_last",
		Help: "Last delay between reference timestamp and service head",
	}, measurementLabels)

	// Stream metrics
	BlockNumber = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "head_monitor_block_number",
		Help: "Highest block number observed on the target",
	}, measurementLabels)
	StreamErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "head_monitor_stream_errors_total",
		Help: "Total number of failed head or stream requests to the target",
	}, measurementLabels)
	ReferenceFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "head_monitor_reference_failures_total",
		Help: "Total number of failed block-time lookups, excluding not-found answers",
	}, measurementLabels)
	SkippedBlocksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "head_monitor_skipped_blocks_total",
		Help: "Total number of blocks dropped because no reference knew their timestamp",
	}, measurementLabels)
	MonitorRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "head_monitor_monitor_restarts_total",
		Help: "Total number of monitor restarts after a crash",
	}, measurementLabels)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "head_monitor_http_requests_total",
		Help: "Total number of API requests",
	})
	HTTPRequestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "head_monitor_http_request_errors_total",
		Help: "Total number of API request errors",
	})
	ProcessingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "head_monitor_request_duration_seconds",
		Help:    "Duration of API request processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Archive metrics
	ArchiveFlushTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "head_monitor_archive_flush_total",
		Help: "Total number of archive batch flushes",
	})
	ArchiveFlushDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "head_monitor_archive_flush_duration_seconds",
		Help:    "Duration of archive batch flushes in seconds",
		Buckets: prometheus.DefBuckets,
	})
	ArchiveBatchSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "head_monitor_archive_batch_size",
		Help: "Size of the last flushed archive batch",
	})
	ArchiveDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "head_monitor_archive_dropped_total",
		Help: "Total number of samples dropped because the archive queue was full",
	})
	ArchiveWriteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "head_monitor_archive_write_errors_total",
		Help: "Total number of failed archive writes",
	})

	registerOnce     sync.Once
	serverOnce       sync.Once
	metricsServerErr error
)

func init() {
	InitMetrics()
}

// InitMetrics registers all Prometheus collectors used by the application.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DelayHistogram,
			LastDelay,
			BlockNumber,
			StreamErrorsTotal,
			ReferenceFailuresTotal,
			SkippedBlocksTotal,
			MonitorRestartsTotal,
			HTTPRequestsTotal,
			HTTPRequestErrorsTotal,
			ProcessingDurationSeconds,
			ArchiveFlushTotal,
			ArchiveFlushDurationSeconds,
			ArchiveBatchSize,
			ArchiveDroppedTotal,
			ArchiveWriteErrorsTotal,
		)
	})
}

// Handler returns an HTTP handler that exposes the registered Prometheus metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// StartMetricsServer exposes /metrics on the given port. Only the first call
// starts a listener; later calls return the outcome of that first attempt.
func StartMetricsServer(logger *Logger, port string) error {
	InitMetrics()
	serverOnce.Do(func() {
		_, metricsServerErr = serveMetrics(logger, fmt.Sprintf(":%s", port))
	})
	return metricsServerErr
}

// serveMetrics binds addr before returning, so a busy port is reported to the caller.
// The returned server's Addr holds the bound address.
func serveMetrics(logger *Logger, addr string) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics server: listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(context.Background(), "metrics server error: %v", err)
		}
	}()
	return server, nil
}

// PrometheusRecorder records delay samples into the delay histogram and last-value gauge.
type PrometheusRecorder struct{}

func NewPrometheusRecorder() *PrometheusRecorder {
	InitMetrics()
	return &PrometheusRecorder{}
}

func (PrometheusRecorder) Record(_ context.Context, sample domain.DelaySample) {
	RecordDelay(sample)
}

var _ domain.DelayRecorder = PrometheusRecorder{}

// RecordDelay observes a delay sample. Negative delays are recorded as-is.
func RecordDelay(sample domain.DelaySample) {
	delay := float64(sample.DelayMillis)
	DelayHistogram.WithLabelValues(sample.ID.Dataset, sample.ID.Name).Observe(delay)
	LastDelay.WithLabelValues(sample.ID.Dataset, sample.ID.Name).Set(delay)
}

func ObserveBlockNumber(id domain.MeasurementID, number uint64) {
	BlockNumber.WithLabelValues(id.Dataset, id.Name).Set(float64(number))
}

func IncStreamErrors(id domain.MeasurementID) {
	StreamErrorsTotal.WithLabelValues(id.Dataset, id.Name).Inc()
}

func IncReferenceFailures(id domain.MeasurementID) {
	ReferenceFailuresTotal.WithLabelValues(id.Dataset, id.Name).Inc()
}

func IncSkippedBlocks(id domain.MeasurementID) {
	SkippedBlocksTotal.WithLabelValues(id.Dataset, id.Name).Inc()
}

func IncMonitorRestarts(id domain.MeasurementID) {
	MonitorRestartsTotal.WithLabelValues(id.Dataset, id.Name).Inc()
}

// RecordArchiveFlush tracks a completed archive batch flush.
func RecordArchiveFlush(duration time.Duration, size int) {
	if duration < 0 {
		duration = 0
	}
	ArchiveFlushTotal.Inc()
	ArchiveFlushDurationSeconds.Observe(duration.Seconds())
	ArchiveBatchSize.Set(float64(size))
}

func IncArchiveDropped() {
	ArchiveDroppedTotal.Inc()
}

func IncArchiveWriteErrors() {
	ArchiveWriteErrorsTotal.Inc()
}

// HTTPMiddleware instruments HTTP handlers with request/latency metrics.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		defer func() {
			ProcessingDurationSeconds.Observe(time.Since(start).Seconds())
			HTTPRequestsTotal.Inc()

			if recorder.Status() >= http.StatusBadRequest {
				HTTPRequestErrorsTotal.Inc()
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// GRPCUnaryInterceptor instruments gRPC unary handlers with request/latency metrics.
func GRPCUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			ProcessingDurationSeconds.Observe(time.Since(start).Seconds())
			HTTPRequestsTotal.Inc()

			if status.Code(err) != codes.OK {
				HTTPRequestErrorsTotal.Inc()
			}
		}()

		return handler(ctx, req)
	}
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Status() int {
	return r.status
}
