package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/raaihank/compliance-sentinel/internal/cache"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/metrics"
	"github.com/raaihank/compliance-sentinel/internal/store"
	"github.com/raaihank/compliance-sentinel/internal/websocket"
	"go.uber.org/zap"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 1000
	maxExportLimit     = 10000
)

// CheckRequest is the body of POST /api/v1/check.
type CheckRequest struct {
	Content  string `json:"content"`
	Platform string `json:"platform"`
	PostID   string `json:"postId,omitempty"`
}

// CheckResponse is the result of a check plus delivery details.
type CheckResponse struct {
	PostID   string `json:"postId"`
	Platform string `json:"platform"`
	compliance.Result
	Highlighted  string  `json:"highlighted"`
	Cached       bool    `json:"cached"`
	Persisted    bool    `json:"persisted"`
	ProcessingMS float64 `json:"processingMs"`
}

// HighlightRequest is the body of POST /api/v1/highlight. When Violations is
// empty the content is checked against Platform first.
type HighlightRequest struct {
	Content    string                 `json:"content"`
	Platform   string                 `json:"platform,omitempty"`
	Violations []compliance.Violation `json:"violations,omitempty"`
}

type patternInfo struct {
	Pattern string                   `json:"pattern"`
	Type    compliance.ViolationType `json:"type"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if pinger, ok := s.store.(interface{ Ping(ctx context.Context) error }); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("Store health check failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["store"] = "unavailable"
		} else {
			body["store"] = "ok"
		}
	}

	writeJSON(w, status, body)
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":              "compliance-sentinel",
		"version":           s.version,
		"rules_version":     compliance.RulesVersion,
		"active_rules":      s.engine.RuleCount(),
		"platforms":         len(s.engine.Platforms().Profiles()),
		"cache_enabled":     s.cache != nil,
		"store_enabled":     s.store != nil,
		"websocket_enabled": s.config.WebSocket.Enabled,
		"metrics_enabled":   s.config.Metrics.Enabled && s.metrics != nil,
	})
}

// handleCheck runs a compliance check, then caches, records and broadcasts it.
// Content is trimmed first, so offsets refer to the trimmed text. Persistence
// failures are logged and reported in the response but never fail the request.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	var req CheckRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "content and platform are required")
		return
	}
	if n := utf8.RuneCountInString(req.Content); n > s.config.Server.MaxContentLength {
		writeError(w, http.StatusRequestEntityTooLarge, "content exceeds maximum length")
		return
	}

	start := time.Now()
	result, cached := s.evaluate(r, req.Platform, req.Content)
	duration := time.Since(start)

	s.totalChecks.Add(1)
	if !result.IsCompliant {
		s.nonCompliant.Add(1)
	}
	if s.metrics != nil {
		s.metrics.RecordCheck("api", req.Platform, result, duration)
	}
	log.LogCheck(req.Platform, result.IsCompliant, string(result.RiskLevel), len(result.Violations), duration)

	postID := req.PostID
	if postID == "" {
		postID = store.NewPostID()
	}

	persisted := false
	if s.store != nil {
		rec := store.NewRecord(postID, req.Platform, req.Content, result, time.Now())
		if err := s.store.Save(r.Context(), rec); err != nil {
			log.Error("Failed to persist check record", zap.String("post_id", postID), zap.Error(err))
			if s.metrics != nil {
				s.metrics.RecordPersistFailure()
			}
		} else {
			persisted = true
		}
	}

	processingMS := float64(duration.Microseconds()) / 1000
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeComplianceCheck,
		Timestamp: time.Now(),
		RequestID: getRequestID(r.Context()),
		Data: websocket.ComplianceCheckEvent{
			PostID:       postID,
			Platform:     req.Platform,
			IsCompliant:  result.IsCompliant,
			RiskLevel:    result.RiskLevel,
			Violations:   len(result.Violations),
			Labels:       compliance.Labels(result.Violations),
			ClientIP:     getClientIP(r),
			Cached:       cached,
			ProcessingMS: processingMS,
		},
	})

	writeJSON(w, http.StatusOK, CheckResponse{
		PostID:       postID,
		Platform:     req.Platform,
		Result:       result,
		Highlighted:  compliance.Highlight(req.Content, result.Violations),
		Cached:       cached,
		Persisted:    persisted,
		ProcessingMS: processingMS,
	})
}

// evaluate consults the cache before running the engine. Cache errors fall
// back to the engine.
func (s *Server) evaluate(r *http.Request, platform, content string) (compliance.Result, bool) {
	if s.cache == nil {
		return s.engine.Check(content, platform), false
	}

	ctx := r.Context()
	cachedResult, err := s.cache.Get(ctx, platform, content)
	switch {
	case err == nil:
		s.recordCacheLookup(metrics.CacheHit)
		return *cachedResult, true
	case errors.Is(err, cache.ErrCacheMiss):
		s.recordCacheLookup(metrics.CacheMiss)
	default:
		s.recordCacheLookup(metrics.CacheError)
		s.logger.Warn("Cache lookup failed", zap.Error(err))
	}

	result := s.engine.Check(content, platform)
	if err := s.cache.Set(ctx, platform, content, result); err != nil {
		s.logger.Warn("Failed to cache result", zap.Error(err))
	}
	return result, false
}

func (s *Server) recordCacheLookup(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(outcome)
	}
}

// handleHighlight renders marked-up content for a set of violations.
func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if utf8.RuneCountInString(req.Content) > s.config.Server.MaxContentLength {
		writeError(w, http.StatusRequestEntityTooLarge, "content exceeds maximum length")
		return
	}

	violations := req.Violations
	if len(violations) == 0 {
		if req.Platform == "" {
			writeError(w, http.StatusBadRequest, "platform is required when no violations are given")
			return
		}
		violations = s.engine.Check(req.Content, req.Platform).Violations
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"highlighted": compliance.Highlight(req.Content, violations),
		"violations":  violations,
	})
}

// handlePlatforms lists the supported platforms and their limits.
func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": s.engine.Platforms().Profiles(),
	})
}

// handleRules lists the loaded rule tables.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules := s.engine.Patterns().Rules()
	patterns := make([]patternInfo, len(rules))
	for i, rule := range rules {
		patterns[i] = patternInfo{Pattern: rule.Pattern.String(), Type: rule.Type}
	}

	types := compliance.AllTypes()
	labels := make([]string, len(types))
	for i, t := range types {
		labels[i] = t.String()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":  compliance.RulesVersion,
		"phrases":  compliance.SeedPhrases(),
		"patterns": patterns,
		"types":    labels,
	})
}

// handleStats combines stored record totals with live counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"system":    s.SystemStatus(),
		"websocket": s.wsHub.GetStats(),
	}

	if s.store != nil {
		summary, err := s.store.Summary(r.Context())
		if err != nil {
			s.logger.Error("Failed to load record summary", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load statistics")
			return
		}
		body["records"] = summary
	}

	if statter, ok := s.cache.(interface {
		Stats(ctx context.Context) (*cache.Stats, error)
	}); ok {
		if stats, err := statter.Stats(r.Context()); err == nil {
			body["cache"] = stats
		}
	}

	writeJSON(w, http.StatusOK, body)
}

// handleRecords lists recent records, optionally for one platform.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store is disabled")
		return
	}

	limit, err := parseLimit(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.store.Recent(r.Context(), limit, r.URL.Query().Get("platform"))
	if err != nil {
		s.logger.Error("Failed to list records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// handleRecord returns one record by post ID.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store is disabled")
		return
	}

	rec, err := s.store.Get(r.Context(), mux.Vars(r)["postId"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load record", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleExport downloads recent records as CSV or JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store is disabled")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, "format must be csv or json")
		return
	}

	limit, err := parseLimit(r, maxExportLimit, maxExportLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.store.Recent(r.Context(), limit, r.URL.Query().Get("platform"))
	if err != nil {
		s.logger.Error("Failed to export records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export records")
		return
	}

	filename := "compliance-checks-" + time.Now().UTC().Format("20060102") + "." + format
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if format == "json" {
		writeJSON(w, http.StatusOK, records)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	cw := csv.NewWriter(w)
	cw.Write([]string{"post_id", "platform", "status", "risk_level", "violation_reason", "content", "created_at"})
	for _, rec := range records {
		cw.Write([]string{
			rec.PostID,
			rec.Platform,
			rec.Status,
			string(rec.RiskLevel),
			rec.ViolationReason,
			rec.Content,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("Failed to write export", zap.Error(err))
	}
}

// decodeBody reads a JSON body capped relative to the content limit. It
// writes the error response itself and reports whether decoding succeeded.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := int64(s.config.Server.MaxContentLength)*4 + 64*1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseLimit(r *http.Request, def, upper int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > upper {
		limit = upper
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
