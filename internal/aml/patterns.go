package aml

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type sampleStats struct {
	mean   float64
	stddev float64
	min    float64
	max    float64
}

func computeStats(values []float64) sampleStats {
	if len(values) == 0 {
		return sampleStats{}
	}
	stats := sampleStats{min: math.Inf(1), max: math.Inf(-1)}
	var sum float64
	for _, v := range values {
		sum += v
		stats.min = math.Min(stats.min, v)
		stats.max = math.Max(stats.max, v)
	}
	stats.mean = sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - stats.mean) * (v - stats.mean)
	}
	stats.stddev = math.Sqrt(variance / float64(len(values)))
	return stats
}

func filterByType(history []HistoryEntry, txType string) []HistoryEntry {
	filtered := make([]HistoryEntry, 0, len(history))
	for _, entry := range history {
		if entry.Type == txType {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// detectTimeDeviation flags activity whose hour of day and day of week both
// fall outside the player's normal window. Buckets covering at least 10% of
// history count as normal. Skipped on insufficient history.
func detectTimeDeviation(history []HistoryEntry, at time.Time, minHistory int) (bool, string) {
	if len(history) < minHistory {
		return false, ""
	}

	hour, day := at.UTC().Hour(), at.UTC().Weekday()
	var hourHits, dayHits int
	for _, entry := range history {
		ts := entry.CreatedAt.UTC()
		if ts.Hour() == hour {
			hourHits++
		}
		if ts.Weekday() == day {
			dayHits++
		}
	}

	total := float64(len(history))
	if float64(hourHits)/total >= normalActivityShare || float64(dayHits)/total >= normalActivityShare {
		return false, ""
	}
	if hourHits == 0 {
		return true, fmt.Sprintf("no prior activity at hour %02d UTC and unusual day %s", hour, day)
	}
	return true, fmt.Sprintf("hour %02d UTC and day %s both outside the normal activity window", hour, day)
}

// detectAmountDeviation flags amounts outside the historical range or more
// than 2.5 standard deviations from the historical mean.
func detectAmountDeviation(history []HistoryEntry, amount decimal.Decimal, minHistory int) (bool, string) {
	if len(history) < minHistory {
		return false, ""
	}

	values := make([]float64, len(history))
	for i, entry := range history {
		values[i], _ = entry.Amount.Float64()
	}
	stats := computeStats(values)

	current, _ := amount.Float64()
	if current < stats.min || current > stats.max {
		return true, fmt.Sprintf("amount %s outside historical range [%.2f, %.2f]", amount, stats.min, stats.max)
	}
	if stats.stddev == 0 {
		return false, ""
	}
	if z := (current - stats.mean) / stats.stddev; math.Abs(z) > zScoreLimit {
		return true, fmt.Sprintf("amount %s deviates from historical mean %.2f (z=%.2f)", amount, stats.mean, z)
	}
	return false, ""
}

// detectFrequencyDeviation compares the last-24h transaction count, current
// transaction included, against the better of the weekly and monthly daily
// averages (floored so a quiet history cannot divide by zero).
func detectFrequencyDeviation(history []HistoryEntry, at time.Time, minHistory int) (bool, string) {
	if len(history) < minHistory {
		return false, ""
	}

	var last24h, last7d, last30d int
	for _, entry := range history {
		age := at.Sub(entry.CreatedAt)
		if age < 0 {
			continue
		}
		if age <= 24*time.Hour {
			last24h++
		}
		if age <= 7*24*time.Hour {
			last7d++
		}
		if age <= 30*24*time.Hour {
			last30d++
		}
	}

	recent := last24h + 1
	baseline := math.Max(float64(last7d)/7, float64(last30d)/30)
	if baseline < baselineFloor {
		baseline = baselineFloor
	}
	ratio := float64(recent) / baseline
	if ratio > frequencyRatioLimit && recent > frequencyCountFloor {
		return true, fmt.Sprintf("%d transactions in 24h against a daily baseline of %.2f (ratio %.1f)", recent, baseline, ratio)
	}
	return false, ""
}
