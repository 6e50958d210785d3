package aml

import (
	"math"

	"github.com/shopspring/decimal"
)

// Factor scores and decision floors. Scores are additive per factor, the
// composite bonus is capped, and the final total is capped at 100.
const (
	largeTransactionScore  = 40.0
	structuringScore       = 25.0
	structuringRepeatScore = 35.0
	patternBaseScore       = 25.0
	multiAccountScore      = 10.0
	pepMatchScore          = 20.0
	sanctionsMatchScore    = 40.0

	comboBonusCap = 40.0
	totalScoreCap = 100.0

	alertScoreFloor    = 40.0
	reportScoreFloor   = 75.0
	mediumScoreFloor   = 55.0
	highScoreFloor     = 75.0
	criticalScoreFloor = 85.0
)

// Pattern detector tuning.
const (
	normalActivityShare = 0.10
	zScoreLimit         = 2.5
	frequencyRatioLimit = 3.0
	frequencyCountFloor = 3
	baselineFloor       = 0.1
)

// Profile scores follow assessments by exponential smoothing so one clean
// transaction cannot wash out an established pattern.
const (
	profileSmoothingKeep  = 0.7
	profileSmoothingBlend = 0.3
)

// largeTransactionThresholds holds the per-currency reporting thresholds.
// Currencies without an entry fall back to the USD figure.
var largeTransactionThresholds = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(10000),
	"EUR": decimal.NewFromInt(9200),
	"GBP": decimal.NewFromInt(8500),
	"JPY": decimal.NewFromInt(1500000),
	"KRW": decimal.NewFromInt(13000000),
}

var defaultLargeThreshold = decimal.NewFromInt(10000)

// structuringBandRatio defines the band just under the reporting threshold
// where deliberate threshold avoidance is suspected.
var structuringBandRatio = decimal.NewFromFloat(0.9)

func largeThresholdFor(currency string) decimal.Decimal {
	if threshold, ok := largeTransactionThresholds[currency]; ok {
		return threshold
	}
	return defaultLargeThreshold
}

type comboRule struct {
	factors []FactorType
	bonus   float64
}

// comboRules assign extra weight to factor combinations that individually
// look benign but together form a recognized typology.
var comboRules = []comboRule{
	{factors: []FactorType{FactorMultiAccount, FactorStructuring}, bonus: 25},
	{factors: []FactorType{FactorPEPMatch, FactorStructuring}, bonus: 30},
	{factors: []FactorType{FactorPEPMatch, FactorLargeTransaction}, bonus: 25},
	{factors: []FactorType{FactorSanctionsMatch, FactorLargeTransaction}, bonus: 30},
	{factors: []FactorType{FactorStructuring, FactorFrequencyDeviation}, bonus: 20},
	{factors: []FactorType{FactorMultiAccount, FactorStructuring, FactorFrequencyDeviation}, bonus: 25},
	{factors: []FactorType{FactorPEPMatch, FactorStructuring, FactorLargeTransaction}, bonus: 30},
}

func comboBonus(present map[FactorType]bool) float64 {
	var bonus float64
	for _, rule := range comboRules {
		matched := true
		for _, factorType := range rule.factors {
			if !present[factorType] {
				matched = false
				break
			}
		}
		if matched {
			bonus += rule.bonus
		}
	}
	return math.Min(bonus, comboBonusCap)
}

// alertPriority orders factor types for choosing an alert's headline type
// when several factors fire at once.
var alertPriority = map[FactorType]int{
	FactorSanctionsMatch:     8,
	FactorPEPMatch:           7,
	FactorStructuring:        6,
	FactorLargeTransaction:   5,
	FactorFrequencyDeviation: 4,
	FactorAmountDeviation:    3,
	FactorTimeDeviation:      2,
	FactorMultiAccount:       1,
}

func dominantFactor(factors []RiskFactor) FactorType {
	dominant := factors[0].Type
	for _, factor := range factors[1:] {
		if alertPriority[factor.Type] > alertPriority[dominant] {
			dominant = factor.Type
		}
	}
	return dominant
}

// severityFor grades a final score. A PEP match is critical no matter how
// the numbers add up.
func severityFor(score float64, present map[FactorType]bool) RiskSeverity {
	switch {
	case present[FactorPEPMatch] || score >= criticalScoreFloor:
		return SeverityCritical
	case score >= highScoreFloor:
		return SeverityHigh
	case score >= mediumScoreFloor:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
