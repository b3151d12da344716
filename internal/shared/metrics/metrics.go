package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	requestsCreatedTotal     atomic.Uint64
	signaturesSubmittedTotal atomic.Uint64
	documentsCompletedTotal  atomic.Uint64
	finalizeFailedTotal      atomic.Uint64
	notificationsSentTotal   atomic.Uint64
	notificationsFailedTotal atomic.Uint64
	meterFailedTotal         atomic.Uint64
	jobsReceivedTotal        atomic.Uint64
	jobsCompletedTotal       atomic.Uint64
	jobsFailedTotal          atomic.Uint64
	jobsDroppedTotal         atomic.Uint64

	renderDuration = newHistogram([]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000})
)

// IncRequestsCreated counts signature requests sent.
func IncRequestsCreated() {
	requestsCreatedTotal.Add(1)
}

// IncSignaturesSubmitted counts signatures recorded.
func IncSignaturesSubmitted() {
	signaturesSubmittedTotal.Add(1)
}

// IncDocumentsCompleted counts documents whose last signer signed.
func IncDocumentsCompleted() {
	documentsCompletedTotal.Add(1)
}

// IncFinalizeFailed counts final merges that could not be produced.
func IncFinalizeFailed() {
	finalizeFailedTotal.Add(1)
}

// AddNotifications records a fan-out outcome.
func AddNotifications(sent, failed int) {
	if sent > 0 {
		notificationsSentTotal.Add(uint64(sent))
	}
	if failed > 0 {
		notificationsFailedTotal.Add(uint64(failed))
	}
}

// IncMeterFailed counts usage metering calls that failed.
func IncMeterFailed() {
	meterFailedTotal.Add(1)
}

// IncJobsReceived counts queue messages picked up by the worker.
func IncJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncJobsCompleted counts queue messages delivered and deleted.
func IncJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncJobsFailed counts deliveries left on the queue for retry.
func IncJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncJobsDropped counts unrecoverable messages deleted without delivery.
func IncJobsDropped() {
	jobsDroppedTotal.Add(1)
}

// ObserveRenderDurationMs records a PDF render duration in milliseconds.
func ObserveRenderDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	renderDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "signature_requests_created_total", "Total signature requests sent", requestsCreatedTotal.Load())
	writeCounter(&buf, "signatures_submitted_total", "Total signatures recorded", signaturesSubmittedTotal.Load())
	writeCounter(&buf, "documents_completed_total", "Total documents completed", documentsCompletedTotal.Load())
	writeCounter(&buf, "finalize_failed_total", "Total final merges that failed", finalizeFailedTotal.Load())
	writeCounter(&buf, "notifications_sent_total", "Total notifications delivered", notificationsSentTotal.Load())
	writeCounter(&buf, "notifications_failed_total", "Total notifications that failed", notificationsFailedTotal.Load())
	writeCounter(&buf, "usage_meter_failed_total", "Total usage metering failures", meterFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Total queue messages received", jobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Total queue messages delivered", jobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Total queue deliveries left for retry", jobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_dropped_total", "Total unrecoverable queue messages deleted", jobsDroppedTotal.Load())
	writeHistogram(&buf, "render_duration_ms", "PDF render duration in milliseconds", renderDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	// Observe already counts each value into every bucket it fits, so counts are cumulative.
	for i, bound := range snap.buckets {
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), snap.counts[i])
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
