package aml

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(amount string, at time.Time) HistoryEntry {
	return HistoryEntry{
		Type:      "bet",
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: at,
	}
}

func TestComputeStats(t *testing.T) {
	stats := computeStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5, stats.mean, 0.001)
	assert.InDelta(t, 2, stats.stddev, 0.001)
	assert.InDelta(t, 2, stats.min, 0.001)
	assert.InDelta(t, 9, stats.max, 0.001)

	empty := computeStats(nil)
	assert.Zero(t, empty.mean)
	assert.Zero(t, empty.stddev)
}

func TestDetectTimeDeviation(t *testing.T) {
	// Four weeks of Monday and Tuesday afternoon play.
	monday := time.Date(2026, 7, 20, 14, 0, 0, 0, time.UTC)
	var history []HistoryEntry
	for week := 0; week < 4; week++ {
		history = append(history, entryAt("50.00", monday.AddDate(0, 0, 7*week)))
		history = append(history, entryAt("50.00", monday.AddDate(0, 0, 7*week+1)))
	}

	flagged, detail := detectTimeDeviation(history, time.Date(2026, 8, 14, 3, 0, 0, 0, time.UTC), 5)
	assert.True(t, flagged)
	assert.Contains(t, detail, "no prior activity")

	// The usual slot is never flagged.
	flagged, _ = detectTimeDeviation(history, time.Date(2026, 8, 17, 14, 0, 0, 0, time.UTC), 5)
	assert.False(t, flagged)

	// A single normal dimension is enough to pass: usual hour on an odd
	// day, and usual day at an odd hour.
	flagged, _ = detectTimeDeviation(history, time.Date(2026, 8, 14, 14, 0, 0, 0, time.UTC), 5)
	assert.False(t, flagged)
	flagged, _ = detectTimeDeviation(history, time.Date(2026, 8, 17, 3, 0, 0, 0, time.UTC), 5)
	assert.False(t, flagged)

	flagged, _ = detectTimeDeviation(history[:4], time.Date(2026, 8, 14, 3, 0, 0, 0, time.UTC), 5)
	assert.False(t, flagged, "short history must not be scored")
}

func TestDetectAmountDeviation(t *testing.T) {
	now := time.Now().UTC()
	var history []HistoryEntry
	for i := 0; i < 6; i++ {
		history = append(history, entryAt("90.00", now.Add(-time.Duration(2*i+1)*time.Hour)))
		history = append(history, entryAt("110.00", now.Add(-time.Duration(2*i+2)*time.Hour)))
	}

	flagged, detail := detectAmountDeviation(history, decimal.RequireFromString("500.00"), 10)
	require.True(t, flagged)
	assert.Contains(t, detail, "outside historical range")

	flagged, _ = detectAmountDeviation(history, decimal.RequireFromString("105.00"), 10)
	assert.False(t, flagged)

	flagged, _ = detectAmountDeviation(history[:9], decimal.RequireFromString("500.00"), 10)
	assert.False(t, flagged, "short history must not be scored")
}

func TestDetectAmountDeviationZScore(t *testing.T) {
	// One historic outlier stretches the range without normalizing
	// amounts far from the mean.
	now := time.Now().UTC()
	var history []HistoryEntry
	for i := 0; i < 20; i++ {
		history = append(history, entryAt("100.00", now.Add(-time.Duration(i+1)*time.Hour)))
	}
	history = append(history, entryAt("300.00", now.Add(-30*time.Hour)))

	flagged, detail := detectAmountDeviation(history, decimal.RequireFromString("250.00"), 10)
	require.True(t, flagged)
	assert.Contains(t, detail, "deviates from historical mean")

	flagged, _ = detectAmountDeviation(history, decimal.RequireFromString("150.00"), 10)
	assert.False(t, flagged)
}

func TestDetectAmountDeviationFlatHistory(t *testing.T) {
	now := time.Now().UTC()
	var history []HistoryEntry
	for i := 0; i < 12; i++ {
		history = append(history, entryAt("25.00", now.Add(-time.Duration(i+1)*time.Hour)))
	}

	flagged, _ := detectAmountDeviation(history, decimal.RequireFromString("26.00"), 10)
	assert.True(t, flagged, "flat history still flags anything outside the range")

	flagged, _ = detectAmountDeviation(history, decimal.RequireFromString("25.00"), 10)
	assert.False(t, flagged)
}

func TestDetectFrequencyDeviation(t *testing.T) {
	now := time.Now().UTC()
	var history []HistoryEntry
	for day := 2; day <= 10; day++ {
		history = append(history, entryAt("10.00", now.Add(-time.Duration(day)*24*time.Hour)))
	}

	flagged, _ := detectFrequencyDeviation(history, now, 5)
	assert.False(t, flagged, "steady daily activity is baseline, not a burst")

	for i := 1; i <= 5; i++ {
		history = append(history, entryAt("10.00", now.Add(-time.Duration(i)*30*time.Minute)))
	}
	flagged, detail := detectFrequencyDeviation(history, now, 5)
	require.True(t, flagged)
	assert.Contains(t, detail, "6 transactions in 24h")

	flagged, _ = detectFrequencyDeviation(history[:3], now, 5)
	assert.False(t, flagged, "short history must not be scored")
}

func TestDetectFrequencyDeviationCountFloor(t *testing.T) {
	// A dormant account's first transaction beats the floored baseline by
	// ratio but not by absolute count.
	now := time.Now().UTC()
	var history []HistoryEntry
	for i := 0; i < 5; i++ {
		history = append(history, entryAt("10.00", now.Add(-29*24*time.Hour).Add(time.Duration(i)*time.Hour)))
	}

	flagged, _ := detectFrequencyDeviation(history, now, 5)
	assert.False(t, flagged)
}
