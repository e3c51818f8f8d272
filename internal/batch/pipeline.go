// Package batch checks datasets of posts offline and records the outcomes.
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/logger"
	"github.com/raaihank/compliance-sentinel/internal/metrics"
	"github.com/raaihank/compliance-sentinel/internal/store"
)

// Saver persists a batch of check records.
type Saver interface {
	SaveBatch(ctx context.Context, recs []store.Record) error
}

// Pipeline checks input files with a pool of workers
type Pipeline struct {
	engine  *compliance.Engine
	saver   Saver
	metrics *metrics.Collector
	options Options
	logger  *logger.Logger
}

// NewPipeline creates a new batch pipeline. saver and collector may be nil.
func NewPipeline(engine *compliance.Engine, saver Saver, collector *metrics.Collector, options Options, log *logger.Logger) *Pipeline {
	if options.BatchSize <= 0 {
		options.BatchSize = 500
	}
	if options.WorkerCount <= 0 {
		options.WorkerCount = 1
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Pipeline{
		engine:  engine,
		saver:   saver,
		metrics: collector,
		options: options,
		logger:  log.WithComponent("batch"),
	}
}

// ProcessFile checks every record of a CSV, JSON lines or Parquet file. Bad
// rows are counted and skipped. The returned report is populated even when an
// error ends the run early.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*Report, error) {
	format := DetectFileFormat(filePath)
	report := newReport(filePath, format, p.options.DryRun)

	p.logger.Info("Starting batch check",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.options.BatchSize),
		zap.Int("workers", p.options.WorkerCount),
		zap.Bool("dry_run", p.options.DryRun))

	src, err := openSource(filePath, format)
	if err != nil {
		return report, err
	}
	defer src.Close()

	start := time.Now()
	err = p.run(ctx, src, report)
	report.finish(time.Since(start))

	p.logger.Info("Batch check completed",
		zap.Int64("total_records", report.TotalRecords),
		zap.Int64("checked", report.Checked),
		zap.Int64("invalid", report.Invalid),
		zap.Int64("non_compliant", report.NonCompliant),
		zap.Int64("persisted", report.Persisted),
		zap.Int64("persist_failed", report.PersistFailed),
		zap.Float64("duration_seconds", report.DurationSeconds))

	return report, err
}

// run feeds batches from src to the worker pool until the input is exhausted
// or ctx is done.
func (p *Pipeline) run(ctx context.Context, src source, report *Report) error {
	batches := make(chan []InputRecord, p.options.WorkerCount)

	var wg sync.WaitGroup
	for i := 0; i < p.options.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				p.processBatch(ctx, batch, report)
			}
		}()
	}

	readErr := p.readBatches(ctx, src, batches, report)
	close(batches)
	wg.Wait()

	if readErr != nil {
		return readErr
	}
	return ctx.Err()
}

func (p *Pipeline) readBatches(ctx context.Context, src source, batches chan<- []InputRecord, report *Report) error {
	batch := make([]InputRecord, 0, p.options.BatchSize)
	var row int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			var invalid *ValidationError
			if errors.As(err, &invalid) {
				p.logger.Debug("Skipping unreadable row", zap.Error(err))
				report.addInvalid(err)
				continue
			}
			return err
		}

		if err := p.validateRecord(row, rec); err != nil {
			p.logger.Debug("Skipping invalid record", zap.Error(err))
			report.addInvalid(err)
			continue
		}

		batch = append(batch, rec)
		if len(batch) == p.options.BatchSize {
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
			batch = make([]InputRecord, 0, p.options.BatchSize)
		}
	}

	if len(batch) > 0 {
		select {
		case batches <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// processBatch checks one batch and persists it in a single call
func (p *Pipeline) processBatch(ctx context.Context, batch []InputRecord, report *Report) {
	records := make([]store.Record, 0, len(batch))

	for _, in := range batch {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		result := p.engine.Check(in.Content, in.Platform)
		duration := time.Since(start)

		if p.metrics != nil {
			p.metrics.RecordCheck("batch", in.Platform, result, duration)
		}
		report.addResult(in.Platform, result)
		p.reportProgress(report)

		postID := in.PostID
		if postID == "" {
			postID = derivePostID(in.Platform, in.Content)
		}
		records = append(records, store.NewRecord(postID, in.Platform, in.Content, result, time.Now()))
	}

	if p.saver == nil || p.options.DryRun {
		return
	}

	if err := p.saver.SaveBatch(ctx, records); err != nil {
		p.logger.Error("Failed to persist batch", zap.Int("batch_size", len(records)), zap.Error(err))
		if p.metrics != nil {
			p.metrics.RecordPersistFailure()
		}
		report.addPersistFailure(len(records), err)
		return
	}
	report.addPersisted(len(records))
}

// validateRecord validates an input record
func (p *Pipeline) validateRecord(row int64, rec InputRecord) error {
	if !p.options.ValidateData {
		return nil
	}

	if strings.TrimSpace(rec.Content) == "" {
		return &ValidationError{Row: row, Field: "content", Message: "empty content"}
	}
	if rec.Platform == "" {
		return &ValidationError{Row: row, Field: "platform", Message: "empty platform"}
	}
	if limit := p.options.MaxContentLength; limit > 0 {
		if n := utf8.RuneCountInString(rec.Content); n > limit {
			return &ValidationError{Row: row, Field: "content", Message: fmt.Sprintf("content too long (%d/%d characters)", n, limit)}
		}
	}
	return nil
}

// reportProgress logs every ProgressReport checked records
func (p *Pipeline) reportProgress(report *Report) {
	if p.options.ProgressReport <= 0 {
		return
	}

	report.mu.Lock()
	checked := report.Checked
	nonCompliant := report.NonCompliant
	started := report.StartedAt
	report.mu.Unlock()

	if checked%int64(p.options.ProgressReport) != 0 {
		return
	}

	elapsed := time.Since(started)
	p.logger.Info("Batch progress",
		zap.Int64("records_checked", checked),
		zap.Int64("non_compliant", nonCompliant),
		zap.Float64("rate_per_sec", float64(checked)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}

// derivePostID names a record by a hash of its platform and content. The same
// post always gets the same ID.
func derivePostID(platform, content string) string {
	hash := sha256.Sum256([]byte(platform + "\x00" + content))
	return "post_" + hex.EncodeToString(hash[:16])
}
