// Package metrics provides per-client stream counters.
//
// The Collector accumulates counters across every chat turn and upload a
// client runs. It depends only on Prometheus so that a Collector can be
// registered directly with a prometheus.Registerer.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatwire"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Chat turns
	TurnsStarted   int64
	TurnsCompleted int64
	TurnsAborted   int64
	TurnsFailed    int64

	// Frames (chat and upload)
	FramesReceived   int64
	MalformedFrames  int64
	ToolStatusFrames int64

	// Uploads
	UploadsStarted   int64
	UploadsCompleted int64
	UploadsFailed    int64
	UploadsAborted   int64

	// Transport and notification
	TransportErrors int64
	NotifySuccess   int64
	NotifyFailures  int64

	// Dimensions (informational, set at construction)
	Dialect string
	Adapter string
}

// Collector accumulates stream counters.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	turnsStarted   int64
	turnsCompleted int64
	turnsAborted   int64
	turnsFailed    int64

	framesReceived   int64
	malformedFrames  int64
	toolStatusFrames int64

	uploadsStarted   int64
	uploadsCompleted int64
	uploadsFailed    int64
	uploadsAborted   int64

	transportErrors int64
	notifySuccess   int64
	notifyFailures  int64

	dialect string
	adapter string
}

// NewCollector creates a Collector with dimension labels.
// dialect names the chat payload dialect; adapter names the notification
// adapter ("none" when disabled).
func NewCollector(dialect, adapter string) *Collector {
	return &Collector{dialect: dialect, adapter: adapter}
}

func (c *Collector) inc(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// --- Chat turns ---

// IncTurnStarted records a chat turn entering the sending state.
func (c *Collector) IncTurnStarted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsStarted)
}

// IncTurnCompleted records a normal finalization ([DONE] or end of stream).
func (c *Collector) IncTurnCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsCompleted)
}

// IncTurnAborted records a cancelled turn.
func (c *Collector) IncTurnAborted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsAborted)
}

// IncTurnFailed records a turn finalized with the fallback message.
func (c *Collector) IncTurnFailed() {
	if c == nil {
		return
	}
	c.inc(&c.turnsFailed)
}

// --- Frames ---

// IncFrameReceived records one data payload read from a stream.
func (c *Collector) IncFrameReceived() {
	if c == nil {
		return
	}
	c.inc(&c.framesReceived)
}

// IncMalformedFrame records a payload that failed to decode and was skipped.
func (c *Collector) IncMalformedFrame() {
	if c == nil {
		return
	}
	c.inc(&c.malformedFrames)
}

// IncToolStatusFrame records a tool_status payload.
func (c *Collector) IncToolStatusFrame() {
	if c == nil {
		return
	}
	c.inc(&c.toolStatusFrames)
}

// --- Uploads ---

// IncUploadStarted records an upload request being issued.
func (c *Collector) IncUploadStarted() {
	if c == nil {
		return
	}
	c.inc(&c.uploadsStarted)
}

// IncUploadCompleted records a complete event.
func (c *Collector) IncUploadCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.uploadsCompleted)
}

// IncUploadFailed records an error event or a stream that ended without one.
func (c *Collector) IncUploadFailed() {
	if c == nil {
		return
	}
	c.inc(&c.uploadsFailed)
}

// IncUploadAborted records a cancelled upload.
func (c *Collector) IncUploadAborted() {
	if c == nil {
		return
	}
	c.inc(&c.uploadsAborted)
}

// --- Transport and notification ---

// IncTransportError records a request or mid-stream transport failure.
func (c *Collector) IncTransportError() {
	if c == nil {
		return
	}
	c.inc(&c.transportErrors)
}

// IncNotifySuccess records a published invalidation event.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.inc(&c.notifySuccess)
}

// IncNotifyFailure records an invalidation event that could not be published.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.inc(&c.notifyFailures)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		TurnsStarted:   c.turnsStarted,
		TurnsCompleted: c.turnsCompleted,
		TurnsAborted:   c.turnsAborted,
		TurnsFailed:    c.turnsFailed,

		FramesReceived:   c.framesReceived,
		MalformedFrames:  c.malformedFrames,
		ToolStatusFrames: c.toolStatusFrames,

		UploadsStarted:   c.uploadsStarted,
		UploadsCompleted: c.uploadsCompleted,
		UploadsFailed:    c.uploadsFailed,
		UploadsAborted:   c.uploadsAborted,

		TransportErrors: c.transportErrors,
		NotifySuccess:   c.notifySuccess,
		NotifyFailures:  c.notifyFailures,

		Dialect: c.dialect,
		Adapter: c.adapter,
	}
}

// --- Prometheus export ---

var (
	labelNames = []string{"dialect", "adapter"}

	turnsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "chat", "turns_total"),
		"Chat turns by outcome.",
		append([]string{"outcome"}, labelNames...), nil,
	)
	framesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "stream", "frames_total"),
		"Data payloads read from streams by class.",
		append([]string{"class"}, labelNames...), nil,
	)
	uploadsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "upload", "uploads_total"),
		"Uploads by outcome.",
		append([]string{"outcome"}, labelNames...), nil,
	)
	transportErrorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "stream", "transport_errors_total"),
		"Request and mid-stream transport failures.",
		labelNames, nil,
	)
	notifyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "adapter", "notifications_total"),
		"Invalidation notifications by result.",
		append([]string{"result"}, labelNames...), nil,
	)
)

var _ prometheus.Collector = (*Collector)(nil)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- turnsDesc
	ch <- framesDesc
	ch <- uploadsDesc
	ch <- transportErrorsDesc
	ch <- notifyDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	counter := func(desc *prometheus.Desc, v int64, labels ...string) {
		labels = append(labels, s.Dialect, s.Adapter)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(turnsDesc, s.TurnsStarted, "started")
	counter(turnsDesc, s.TurnsCompleted, "completed")
	counter(turnsDesc, s.TurnsAborted, "aborted")
	counter(turnsDesc, s.TurnsFailed, "failed")

	counter(framesDesc, s.FramesReceived, "received")
	counter(framesDesc, s.MalformedFrames, "malformed")
	counter(framesDesc, s.ToolStatusFrames, "tool_status")

	counter(uploadsDesc, s.UploadsStarted, "started")
	counter(uploadsDesc, s.UploadsCompleted, "completed")
	counter(uploadsDesc, s.UploadsFailed, "failed")
	counter(uploadsDesc, s.UploadsAborted, "aborted")

	counter(transportErrorsDesc, s.TransportErrors)

	counter(notifyDesc, s.NotifySuccess, "success")
	counter(notifyDesc, s.NotifyFailures, "failure")
}
