package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"gopkg.in/yaml.v3"
)

// maxReportedErrors caps Report.Errors so a bad input cannot grow the report
// without bound.
const maxReportedErrors = 100

// InputRecord represents a single post read from the input dataset
type InputRecord struct {
	PostID   string `parquet:"post_id" json:"post_id"`
	Platform string `parquet:"platform" json:"platform"`
	Content  string `parquet:"content" json:"content"`
}

// Options contains batch pipeline configuration
type Options struct {
	BatchSize      int
	WorkerCount    int
	ProgressReport int
	ValidateData   bool
	// MaxContentLength rejects longer records when ValidateData is set. Zero
	// disables the check.
	MaxContentLength int
	// DryRun checks records without persisting them.
	DryRun bool
}

// ValidationError describes an input row that was skipped
type ValidationError struct {
	Row     int64  `json:"row" yaml:"row"`
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Message string `json:"message" yaml:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// Report summarizes a batch run
type Report struct {
	Input           string           `json:"input" yaml:"input"`
	Format          FileFormat       `json:"format" yaml:"format"`
	DryRun          bool             `json:"dry_run" yaml:"dry_run"`
	StartedAt       time.Time        `json:"started_at" yaml:"started_at"`
	DurationSeconds float64          `json:"duration_seconds" yaml:"duration_seconds"`
	TotalRecords    int64            `json:"total_records" yaml:"total_records"`
	Checked         int64            `json:"checked" yaml:"checked"`
	Invalid         int64            `json:"invalid" yaml:"invalid"`
	Compliant       int64            `json:"compliant" yaml:"compliant"`
	NonCompliant    int64            `json:"non_compliant" yaml:"non_compliant"`
	ComplianceRate  float64          `json:"compliance_rate" yaml:"compliance_rate"`
	Persisted       int64            `json:"persisted" yaml:"persisted"`
	PersistFailed   int64            `json:"persist_failed" yaml:"persist_failed"`
	ByRisk          map[string]int64 `json:"by_risk" yaml:"by_risk"`
	ByPlatform      map[string]int64 `json:"by_platform" yaml:"by_platform"`
	ByViolation     map[string]int64 `json:"by_violation" yaml:"by_violation"`
	Errors          []string         `json:"errors,omitempty" yaml:"errors,omitempty"`

	mu sync.Mutex
}

func newReport(input string, format FileFormat, dryRun bool) *Report {
	return &Report{
		Input:       input,
		Format:      format,
		DryRun:      dryRun,
		StartedAt:   time.Now().UTC(),
		ByRisk:      make(map[string]int64),
		ByPlatform:  make(map[string]int64),
		ByViolation: make(map[string]int64),
	}
}

func (r *Report) addInvalid(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TotalRecords++
	r.Invalid++
	r.appendError(err.Error())
}

func (r *Report) addResult(platform string, result compliance.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TotalRecords++
	r.Checked++
	if result.IsCompliant {
		r.Compliant++
	} else {
		r.NonCompliant++
	}
	r.ByRisk[string(result.RiskLevel)]++
	r.ByPlatform[platform]++
	for _, v := range result.Violations {
		r.ByViolation[v.Type.String()]++
	}
}

func (r *Report) addPersisted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Persisted += int64(n)
}

func (r *Report) addPersistFailure(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PersistFailed += int64(n)
	r.appendError(err.Error())
}

func (r *Report) appendError(msg string) {
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, msg)
	}
}

func (r *Report) finish(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DurationSeconds = duration.Seconds()
	if r.Checked > 0 {
		r.ComplianceRate = float64(r.Compliant) / float64(r.Checked) * 100
	}
}

// Write encodes the report as "json" or "yaml".
func (r *Report) Write(w io.Writer, format string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// FileFormat represents supported input formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. JSON input is one
// object per line.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
