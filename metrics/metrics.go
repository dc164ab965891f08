// Package metrics collects per-run upload counters and produces the
// summary report the Orchestrator logs, adapting the counters/report shape
// to upload progress instead of record-processing progress.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Metrics collects upload counters for a single run. All increment
// operations are atomic so shard and worker goroutines can share one
// instance without a lock.
type Metrics struct {
	filesUploaded int64
	filesFailed   int64
	bytesUploaded int64
	startTime     time.Time
}

// New creates a Metrics instance with its clock started.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordUploaded records one successful upload of size bytes.
func (m *Metrics) RecordUploaded(size int64) {
	atomic.AddInt64(&m.filesUploaded, 1)
	atomic.AddInt64(&m.bytesUploaded, size)
}

// RecordFailed records one failed upload attempt.
func (m *Metrics) RecordFailed() {
	atomic.AddInt64(&m.filesFailed, 1)
}

// Report is the final summary for one run's upload attempt, logged by the
// Orchestrator. It is not included in the notification payload.
type Report struct {
	RunID         string        `json:"runId"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	FilesUploaded int64         `json:"filesUploaded"`
	FilesFailed   int64         `json:"filesFailed"`
	BytesUploaded int64         `json:"bytesUploaded"`
	Duration      time.Duration `json:"duration"`
	Throughput    float64       `json:"throughputBytesPerSec"`
}

// GenerateReport snapshots the current counters into a Report for runID.
func (m *Metrics) GenerateReport(runID string) Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	var throughput float64
	if duration > 0 {
		throughput = float64(atomic.LoadInt64(&m.bytesUploaded)) / duration.Seconds()
	}

	return Report{
		RunID:         runID,
		StartTime:     m.startTime,
		EndTime:       endTime,
		FilesUploaded: atomic.LoadInt64(&m.filesUploaded),
		FilesFailed:   atomic.LoadInt64(&m.filesFailed),
		BytesUploaded: atomic.LoadInt64(&m.bytesUploaded),
		Duration:      duration,
		Throughput:    throughput,
	}
}

// MarshalJSON renders Duration as a human string for stdout/report output.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String returns a human-readable summary for console logging.
func (r Report) String() string {
	return fmt.Sprintf(
		"run %s completed in %s\nuploaded: %d\nfailed: %d\nbytes: %d\nthroughput: %.2f B/s",
		r.RunID,
		r.Duration,
		r.FilesUploaded,
		r.FilesFailed,
		r.BytesUploaded,
		r.Throughput,
	)
}
