package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
)

// Status values written to Record.Status.
const (
	StatusCompliant    = "Compliant"
	StatusNonCompliant = "Non-Compliant"
)

// maxStoredContent is the number of characters of content kept per record.
const maxStoredContent = 500

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Record is one persisted check outcome.
type Record struct {
	PostID          string               `db:"post_id" json:"postId" yaml:"postId"`
	Platform        string               `db:"platform" json:"platform" yaml:"platform"`
	Content         string               `db:"content" json:"content" yaml:"content"`
	Status          string               `db:"status" json:"status" yaml:"status"`
	ViolationReason string               `db:"violation_reason" json:"violationReason" yaml:"violationReason"`
	Violations      ViolationList        `db:"violations" json:"violations" yaml:"violations"`
	RiskLevel       compliance.RiskLevel `db:"risk_level" json:"riskLevel" yaml:"riskLevel"`
	CreatedAt       time.Time            `db:"created_at" json:"createdAt" yaml:"createdAt"`
}

// NewRecord builds the record for a finished check. ViolationReason lists the
// label of every violation in order. Content is truncated to the first 500
// characters.
func NewRecord(postID, platform, content string, result compliance.Result, now time.Time) Record {
	status := StatusCompliant
	reason := "None"
	if !result.IsCompliant {
		status = StatusNonCompliant
		labels := make([]string, len(result.Violations))
		for i, v := range result.Violations {
			labels[i] = v.Type.String()
		}
		reason = strings.Join(labels, ", ")
	}

	if runes := []rune(content); len(runes) > maxStoredContent {
		content = string(runes[:maxStoredContent])
	}

	return Record{
		PostID:          postID,
		Platform:        platform,
		Content:         content,
		Status:          status,
		ViolationReason: reason,
		Violations:      ViolationList(result.Violations),
		RiskLevel:       result.RiskLevel,
		CreatedAt:       now.UTC(),
	}
}

// NewPostID returns a fresh identifier for a checked post.
func NewPostID() string {
	return "post_" + uuid.NewString()
}

// ViolationList is stored as a JSON text column.
type ViolationList []compliance.Violation

// Value implements driver.Valuer.
func (vl ViolationList) Value() (driver.Value, error) {
	if vl == nil {
		vl = ViolationList{}
	}
	data, err := json.Marshal(vl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode violations: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (vl *ViolationList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*vl = ViolationList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into violation list", src)
	}

	var list ViolationList
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode violations: %w", err)
	}
	if list == nil {
		list = ViolationList{}
	}
	*vl = list
	return nil
}

// Summary aggregates stored records for the statistics endpoints.
type Summary struct {
	Total          int            `json:"total" yaml:"total"`
	Compliant      int            `json:"compliant" yaml:"compliant"`
	NonCompliant   int            `json:"nonCompliant" yaml:"nonCompliant"`
	ComplianceRate float64        `json:"complianceRate" yaml:"complianceRate"`
	ByRisk         map[string]int `json:"byRisk" yaml:"byRisk"`
	ByPlatform     map[string]int `json:"byPlatform" yaml:"byPlatform"`
	ByViolation    map[string]int `json:"byViolation" yaml:"byViolation"`
}

func newSummary() *Summary {
	return &Summary{
		ByRisk:      make(map[string]int),
		ByPlatform:  make(map[string]int),
		ByViolation: make(map[string]int),
	}
}
