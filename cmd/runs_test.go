//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voxmetrics/sentinel/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	runs := []model.RunManifest{
		{
			RunID:        "abc12345-6789-0000-0000-000000000000",
			TargetCombos: 24,
			ObservedOK:   23,
			ObservedFail: 1,
			Coverage:     0.958,
			Tier:         model.TierHealthy,
			Status:       model.ManifestClosed,
			CreatedAt:    now,
		},
		{
			RunID:        "def12345-6789-0000-0000-000000000000",
			TargetCombos: 24,
			ObservedOK:   10,
			ObservedFail: 8,
			Coverage:     0.417,
			Tier:         model.TierInvalid,
			Status:       model.ManifestClosed,
			CreatedAt:    now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "RUN")
	assert.Contains(t, output, "TIER")
	assert.Contains(t, output, "COVERAGE")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "def12345")
	assert.Contains(t, output, string(model.TierHealthy))
	assert.Contains(t, output, string(model.TierInvalid))
	assert.Contains(t, output, "95.8%")
	assert.Contains(t, output, "2026-03-10 09:15")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "hello", truncateText("hello", 10))
	long := truncateText("a very long prompt text that keeps going", 20)
	assert.Len(t, long, 20)
	assert.Contains(t, long, "...")
}
