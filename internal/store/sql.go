package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/raaihank/compliance-sentinel/internal/logger"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS compliance_checks (
	post_id          TEXT PRIMARY KEY,
	platform         TEXT NOT NULL,
	content          TEXT NOT NULL,
	status           TEXT NOT NULL,
	violation_reason TEXT NOT NULL,
	violations       TEXT NOT NULL,
	risk_level       TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_compliance_checks_created_at ON compliance_checks (created_at);
CREATE INDEX IF NOT EXISTS idx_compliance_checks_platform ON compliance_checks (platform);
`

const recordColumns = `post_id, platform, content, status, violation_reason, violations, risk_level, created_at`

// SQLStore persists check records through sqlx on PostgreSQL or SQLite.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *logger.Logger
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (*SQLStore, error) {
	if log == nil {
		log = logger.NewNop()
	}

	dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
		logger: log.WithComponent("store"),
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info("Record store initialized",
		zap.String("driver", cfg.Driver),
		zap.String("dsn", maskDSN(cfg.DSN)))

	return s, nil
}

func dataSource(cfg config.StoreConfig) (string, error) {
	switch cfg.Driver {
	case "postgres":
		return cfg.DSN, nil
	case "sqlite":
		if strings.HasPrefix(cfg.DSN, "file:") {
			return cfg.DSN, nil
		}
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DSN), nil
	default:
		return "", fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts a record, replacing any earlier record with the same PostID.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO compliance_checks (` + recordColumns + `)
		VALUES (:post_id, :platform, :content, :status, :violation_reason, :violations, :risk_level, :created_at)
		ON CONFLICT (post_id) DO UPDATE SET
			platform = excluded.platform,
			content = excluded.content,
			status = excluded.status,
			violation_reason = excluded.violation_reason,
			violations = excluded.violations,
			risk_level = excluded.risk_level,
			created_at = excluded.created_at`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		s.logger.Error("Failed to save record", zap.String("post_id", rec.PostID), zap.Error(err))
		return fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Debug("Record saved",
		zap.String("post_id", rec.PostID),
		zap.String("status", rec.Status))
	return nil
}

// SaveBatch writes records in a single transaction.
func (s *SQLStore) SaveBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO compliance_checks (` + recordColumns + `)
		VALUES (:post_id, :platform, :content, :status, :violation_reason, :violations, :risk_level, :created_at)
		ON CONFLICT (post_id) DO NOTHING`

	for _, rec := range recs {
		if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
			return fmt.Errorf("failed to save record %s: %w", rec.PostID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// Get returns the record for postID or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, postID string) (*Record, error) {
	var rec Record
	query := s.db.Rebind(`SELECT ` + recordColumns + ` FROM compliance_checks WHERE post_id = ?`)
	if err := s.db.GetContext(ctx, &rec, query, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// Recent returns up to limit records, newest first. An empty platform
// matches every platform.
func (s *SQLStore) Recent(ctx context.Context, limit int, platform string) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + recordColumns + ` FROM compliance_checks`
	args := []any{}
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY created_at DESC, post_id DESC LIMIT ?`
	args = append(args, limit)

	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// Summary aggregates every stored record.
func (s *SQLStore) Summary(ctx context.Context) (*Summary, error) {
	var groups []struct {
		Status    string `db:"status"`
		RiskLevel string `db:"risk_level"`
		Platform  string `db:"platform"`
		Count     int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &groups, `
		SELECT status, risk_level, platform, COUNT(*) AS n
		FROM compliance_checks
		GROUP BY status, risk_level, platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate records: %w", err)
	}

	summary := newSummary()
	for _, g := range groups {
		summary.Total += g.Count
		if g.Status == StatusCompliant {
			summary.Compliant += g.Count
		} else {
			summary.NonCompliant += g.Count
		}
		summary.ByRisk[g.RiskLevel] += g.Count
		summary.ByPlatform[g.Platform] += g.Count
	}
	if summary.Total > 0 {
		summary.ComplianceRate = float64(summary.Compliant) / float64(summary.Total) * 100
	}

	var reasons []string
	query := s.db.Rebind(`SELECT violation_reason FROM compliance_checks WHERE status = ?`)
	if err := s.db.SelectContext(ctx, &reasons, query, StatusNonCompliant); err != nil {
		return nil, fmt.Errorf("failed to aggregate violations: %w", err)
	}
	for _, reason := range reasons {
		for _, label := range strings.Split(reason, ", ") {
			if label != "" {
				summary.ByViolation[label]++
			}
		}
	}

	return summary, nil
}

// DeleteBefore removes records created before cutoff and reports how many
// were removed.
func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM compliance_checks WHERE created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// maskDSN hides credentials in a database URL for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
