package store

import (
	"strings"
	"testing"
	"time"

	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	violations := []compliance.Violation{
		{Phrase: "invest now", Type: compliance.TypeFinancial, Position: 25, OriginalPhrase: "Invest now"},
		{Phrase: "GUARANTEED 500%", Type: compliance.TypeUnrealisticGuarantee},
		{Phrase: "easy money", Type: compliance.TypeFinancial, Position: 40},
	}
	result := compliance.Result{Violations: violations, RiskLevel: compliance.RiskHigh}

	rec := NewRecord("post_1", "twitter", "GUARANTEED 500% returns! Invest now!", result, now)
	assert.Equal(t, StatusNonCompliant, rec.Status)
	assert.Equal(t, "Financial Violation, Unrealistic Guarantee, Financial Violation", rec.ViolationReason)
	assert.Equal(t, compliance.RiskHigh, rec.RiskLevel)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.True(t, rec.CreatedAt.Equal(now))
	assert.Len(t, rec.Violations, 3)

	clean := NewRecord("post_2", "facebook", "hello", compliance.Result{IsCompliant: true, RiskLevel: compliance.RiskLow}, now)
	assert.Equal(t, StatusCompliant, clean.Status)
	assert.Equal(t, "None", clean.ViolationReason)
}

func TestNewRecordTruncatesByCharacter(t *testing.T) {
	content := strings.Repeat("ü", 600)
	rec := NewRecord("post_1", "facebook", content, compliance.Result{IsCompliant: true}, time.Now())
	assert.Equal(t, strings.Repeat("ü", 500), rec.Content)
}

func TestNewPostID(t *testing.T) {
	a, b := NewPostID(), NewPostID()
	assert.True(t, strings.HasPrefix(a, "post_"))
	assert.Len(t, a, len("post_")+36)
	assert.NotEqual(t, a, b)
}

func TestViolationListScan(t *testing.T) {
	var list ViolationList

	require.NoError(t, list.Scan(`[{"phrase":"scam","type":"Inappropriate Content","position":3}]`))
	require.Len(t, list, 1)
	assert.Equal(t, compliance.TypeInappropriate, list[0].Type)

	require.NoError(t, list.Scan([]byte(`null`)))
	assert.NotNil(t, list)
	assert.Empty(t, list)

	require.NoError(t, list.Scan(nil))
	assert.Empty(t, list)

	assert.Error(t, list.Scan(42))
	assert.Error(t, list.Scan(`{"phrase":`))

	value, err := ViolationList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}
