// Package metrics counts what a bulk import did and renders the final report for
// the console, as JSON, or as an object in S3.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/config"
)

// maxRejects caps how many rejected lines a report lists individually.
const maxRejects = 100

// Reject identifies one line the import skipped.
type Reject struct {
	File   string `json:"file"`
	Offset int64  `json:"offset"` // byte offset just past the line
	Reason string `json:"reason"`
}

// Metrics collects import counters. Safe for concurrent use.
type Metrics struct {
	linesRead      atomic.Int64
	moviesWritten  atomic.Int64
	batchesWritten atomic.Int64
	corrupt        atomic.Int64
	invalid        atomic.Int64
	filesCompleted atomic.Int64
	filesSkipped   atomic.Int64
	errors         atomic.Int64

	mu        sync.Mutex
	rejects   []Reject
	startTime time.Time
	now       func() time.Time
}

// NewMetrics creates a Metrics instance whose clock starts now.
func NewMetrics() *Metrics {
	return newMetrics(time.Now)
}

func newMetrics(now func() time.Time) *Metrics {
	return &Metrics{startTime: now(), now: now}
}

// RecordLine counts one non-blank input line.
func (m *Metrics) RecordLine() { m.linesRead.Add(1) }

// RecordBatchWritten counts a batch of n movies written to the catalog.
func (m *Metrics) RecordBatchWritten(n int) {
	m.batchesWritten.Add(1)
	m.moviesWritten.Add(int64(n))
}

// RecordCorrupt counts a line that is not a JSON movie object.
func (m *Metrics) RecordCorrupt(file string, offset int64, reason string) {
	m.corrupt.Add(1)
	m.reject(file, offset, reason)
}

// RecordInvalid counts a decoded movie that failed validation.
func (m *Metrics) RecordInvalid(file string, offset int64, reason string) {
	m.invalid.Add(1)
	m.reject(file, offset, reason)
}

// RecordFileCompleted counts a file imported to its end.
func (m *Metrics) RecordFileCompleted() { m.filesCompleted.Add(1) }

// RecordFileSkipped counts a file already completed by an earlier run.
func (m *Metrics) RecordFileSkipped() { m.filesSkipped.Add(1) }

// RecordError counts a file that failed.
func (m *Metrics) RecordError() { m.errors.Add(1) }

func (m *Metrics) reject(file string, offset int64, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rejects) < maxRejects {
		m.rejects = append(m.rejects, Reject{File: file, Offset: offset, Reason: reason})
	}
}

// Report is the summary of one import run.
type Report struct {
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	LinesRead      int64         `json:"linesRead"`
	MoviesWritten  int64         `json:"moviesWritten"`
	BatchesWritten int64         `json:"batchesWritten"`
	CorruptCount   int64         `json:"corruptCount"`
	InvalidCount   int64         `json:"invalidCount"`
	FilesCompleted int64         `json:"filesCompleted"`
	FilesSkipped   int64         `json:"filesSkipped"`
	FailedFiles    int64         `json:"failedFiles"`
	Rejects        []Reject      `json:"rejects,omitempty"`
	Duration       time.Duration `json:"duration"`
	Throughput     float64       `json:"throughput"` // movies written per second
}

// GenerateReport snapshots the counters.
func (m *Metrics) GenerateReport() Report {
	endTime := m.now()
	duration := endTime.Sub(m.startTime)

	written := m.moviesWritten.Load()
	var throughput float64
	if duration > 0 {
		throughput = float64(written) / duration.Seconds()
	}

	m.mu.Lock()
	rejects := append([]Reject(nil), m.rejects...)
	m.mu.Unlock()

	return Report{
		StartTime:      m.startTime,
		EndTime:        endTime,
		LinesRead:      m.linesRead.Load(),
		MoviesWritten:  written,
		BatchesWritten: m.batchesWritten.Load(),
		CorruptCount:   m.corrupt.Load(),
		InvalidCount:   m.invalid.Load(),
		FilesCompleted: m.filesCompleted.Load(),
		FilesSkipped:   m.filesSkipped.Load(),
		FailedFiles:    m.errors.Load(),
		Rejects:        rejects,
		Duration:       duration,
		Throughput:     throughput,
	}
}

// MarshalJSON renders Duration in time.Duration's string form.
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

// String returns the console summary.
func (r Report) String() string {
	return fmt.Sprintf(
		"Import completed in %s\n"+
			"Movies written: %d (%d batches)\n"+
			"Lines read: %d, corrupt: %d, invalid: %d\n"+
			"Files completed: %d, skipped: %d, failed: %d\n"+
			"Throughput: %.2f movies/sec",
		r.Duration,
		r.MoviesWritten, r.BatchesWritten,
		r.LinesRead, r.CorruptCount, r.InvalidCount,
		r.FilesCompleted, r.FilesSkipped, r.FailedFiles,
		r.Throughput,
	)
}

// Upload writes the JSON report to an s3://bucket/key URI.
func (r Report) Upload(ctx context.Context, client aws.S3Client, uri string) error {
	bucket, key, err := config.ParseS3URI(uri)
	if err != nil {
		return fmt.Errorf("invalid report URI: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	contentType := "application/json"
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	return nil
}
