// Package importer bulk-loads movies from JSON-lines objects in S3 into the catalog.
// Files are processed in parallel, one file per worker, and progress is checkpointed
// per file so an interrupted import resumes after the last written batch.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/checkpoint"
	"github.com/gurre/moviecat/config"
	"github.com/gurre/moviecat/metrics"
	"github.com/gurre/moviecat/model"
	"github.com/gurre/s3streamer"
)

const (
	defaultWorkers          = 4
	defaultBatchSize        = 25
	defaultCheckpointEvery  = 10
	defaultProgressInterval = 5 * time.Second
	maxStreamRetries        = 3
)

// BatchWriter stores a batch of movies as unconditional upserts.
type BatchWriter interface {
	PutBatch(ctx context.Context, movies []model.Movie) error
}

// Options tunes an import run. Zero values pick the defaults.
type Options struct {
	Workers          int
	BatchSize        int
	CheckpointEvery  int           // save the checkpoint every N written batches per file
	ProgressInterval time.Duration // how often progress is logged
	ReportURI        string        // s3://bucket/key for the JSON report; empty skips the upload
	RetryBase        time.Duration // first delay between stream retries
}

// Importer orchestrates one import.
type Importer struct {
	s3       aws.S3Client
	streamer s3streamer.Streamer
	decoder  Decoder
	writer   BatchWriter
	store    checkpoint.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	opts     Options

	mu     sync.Mutex
	state  checkpoint.State
	saveMu sync.Mutex // orders snapshot and save so an older state never overwrites a newer one
}

// New creates an Importer. A nil logger uses slog.Default.
func New(
	s3Client aws.S3Client,
	streamer s3streamer.Streamer,
	decoder Decoder,
	writer BatchWriter,
	store checkpoint.Store,
	opts Options,
	logger *slog.Logger,
) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = defaultCheckpointEvery
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		s3:       s3Client,
		streamer: streamer,
		decoder:  decoder,
		writer:   writer,
		store:    store,
		metrics:  metrics.NewMetrics(),
		logger:   logger,
		opts:     opts,
	}
}

// Run imports every .jsonl or .json object under source (s3://bucket/prefix).
// Failed files are counted and joined into the returned error; the other files
// still complete. The report is returned even when err is non-nil.
func (im *Importer) Run(ctx context.Context, source string) (metrics.Report, error) {
	bucket, prefix, err := config.ParseS3URI(source)
	if err != nil {
		return metrics.Report{}, fmt.Errorf("invalid source: %w", err)
	}

	state, err := im.store.Load(ctx)
	if err != nil {
		return metrics.Report{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if state.Source != "" && state.Source != source {
		im.logger.Warn("checkpoint belongs to another source, starting over",
			slog.String("checkpoint_source", state.Source), slog.String("source", source))
		state = checkpoint.State{}
	}
	state.Source = source
	if state.Offsets == nil {
		state.Offsets = make(map[string]int64)
	}
	im.state = state

	files, err := listSourceFiles(ctx, im.s3, bucket, prefix)
	if err != nil {
		return metrics.Report{}, err
	}
	im.logger.Info("starting import",
		slog.String("source", source),
		slog.Int("files", len(files)),
		slog.Int("workers", im.opts.Workers))

	tasks := make(chan sourceFile)
	errCh := make(chan error, len(files))

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go im.reportProgress(progressCtx)

	var wg sync.WaitGroup
	for i := 0; i < im.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for f := range tasks {
				if err := im.processFile(ctx, bucket, f); err != nil {
					im.metrics.RecordError()
					im.logger.Error("file import failed",
						slog.Int("worker", workerID), slog.String("key", f.Key), slog.Any("error", err))
					errCh <- fmt.Errorf("%s: %w", f.Key, err)
				}
			}
		}(i)
	}

dispatch:
	for _, f := range files {
		if im.isDone(f.Key) {
			im.metrics.RecordFileSkipped()
			im.logger.Debug("skipping completed file", slog.String("key", f.Key))
			continue
		}
		select {
		case tasks <- f:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}

	// Persist whatever progress was made, even when the run was interrupted.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := im.saveCheckpoint(saveCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to save checkpoint: %w", err))
	}

	report := im.metrics.GenerateReport()
	if im.opts.ReportURI != "" {
		if err := report.Upload(saveCtx, im.s3, im.opts.ReportURI); err != nil {
			errs = append(errs, err)
		}
	}

	im.logger.Info("import finished",
		slog.Int64("movies_written", report.MoviesWritten),
		slog.Int64("files_completed", report.FilesCompleted),
		slog.Int64("files_failed", report.FailedFiles))
	return report, errors.Join(errs...)
}

// processFile streams one object from its checkpointed offset, retrying the stream
// from the last written batch on failure. Checkpoint offsets are absolute positions
// in the object; the streamer reports each line's start relative to where it began.
func (im *Importer) processFile(ctx context.Context, bucket string, f sourceFile) error {
	resume := im.offset(f.Key)
	b := newBatch(im.opts.BatchSize)
	written := 0

	var streamErr error
	for retry := 0; retry < maxStreamRetries && resume < f.Size; retry++ {
		if retry > 0 {
			im.logger.Warn("retrying stream",
				slog.String("key", f.Key), slog.Int64("offset", resume), slog.Int("retry", retry), slog.Any("error", streamErr))
			select {
			case <-time.After(time.Duration(1<<uint(retry-1)) * im.opts.RetryBase):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// Lines after the last written batch are read again.
		b.reset()
		start := resume

		streamErr = im.streamer.Stream(ctx, bucket, f.Key, start, func(line []byte, lineOffset int64) error {
			lineStart := start + lineOffset
			next := min(lineStart+int64(len(line))+1, f.Size)
			if len(bytes.TrimSpace(line)) == 0 {
				b.offset = next
				return nil
			}
			im.metrics.RecordLine()

			m, err := im.decoder.Decode(line)
			if err != nil {
				if errors.Is(err, ErrCorrupt) {
					im.metrics.RecordCorrupt(f.Key, lineStart, err.Error())
					b.offset = next
					return nil
				}
				return err
			}
			if err := m.Validate(); err != nil {
				im.metrics.RecordInvalid(f.Key, lineStart, err.Error())
				b.offset = next
				return nil
			}

			b.add(m, next)
			if !b.full() {
				return nil
			}
			off := b.offset
			if err := im.flush(ctx, f.Key, b); err != nil {
				return err
			}
			resume = off
			written++
			if written%im.opts.CheckpointEvery == 0 {
				return im.saveCheckpoint(ctx)
			}
			return nil
		})
		if streamErr == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	// A failure after the last line was written leaves nothing to read again.
	if streamErr != nil && resume < f.Size {
		return fmt.Errorf("stream failed after %d attempts: %w", maxStreamRetries, streamErr)
	}

	if err := im.flush(ctx, f.Key, b); err != nil {
		return err
	}
	im.setOffset(f.Key, checkpoint.Completed)
	im.metrics.RecordFileCompleted()
	im.logger.Debug("file completed", slog.String("key", f.Key), slog.Int64("size", f.Size))
	return im.saveCheckpoint(ctx)
}

// flush writes the pending movies and advances the file's offset past them.
func (im *Importer) flush(ctx context.Context, key string, b *batch) error {
	if len(b.movies) > 0 {
		if err := im.writer.PutBatch(ctx, b.movies); err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}
		im.metrics.RecordBatchWritten(len(b.movies))
	}
	if b.offset > 0 {
		im.setOffset(key, b.offset)
	}
	b.reset()
	return nil
}

func (im *Importer) offset(key string) int64 {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.state.Offset(key)
}

func (im *Importer) isDone(key string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.state.Done(key)
}

func (im *Importer) setOffset(key string, off int64) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.state.Offsets[key] = off
}

func (im *Importer) saveCheckpoint(ctx context.Context) error {
	im.saveMu.Lock()
	defer im.saveMu.Unlock()
	im.mu.Lock()
	snapshot := im.state.Clone()
	im.mu.Unlock()
	return im.store.Save(ctx, snapshot)
}

func (im *Importer) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(im.opts.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := im.metrics.GenerateReport()
			im.logger.Info("import progress",
				slog.Int64("lines_read", r.LinesRead),
				slog.Int64("movies_written", r.MoviesWritten),
				slog.Int64("files_completed", r.FilesCompleted),
				slog.Float64("movies_per_sec", r.Throughput))
		}
	}
}
