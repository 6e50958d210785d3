package aml

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/musig5344/ocasino-sub000/internal/config"
	"github.com/musig5344/ocasino-sub000/internal/events"
)

// Engine is the asynchronous risk pipeline. One instance serves the whole
// process; events for different players are scored concurrently on the bus
// goroutines that deliver them.
type Engine struct {
	repo              *Repository
	pep               *ScreeningList
	sanctions         *ScreeningList
	historyWindow     time.Duration
	patternMinHistory int
	zscoreMinHistory  int
	logger            *zap.SugaredLogger
	tracer            trace.Tracer
}

func NewEngine(repo *Repository, cfg config.AMLConfig, logger *zap.Logger) *Engine {
	windowDays := cfg.HistoryWindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	patternMin := cfg.PatternMinHistory
	if patternMin <= 0 {
		patternMin = 5
	}
	zscoreMin := cfg.ZScoreMinHistory
	if zscoreMin <= 0 {
		zscoreMin = 10
	}
	return &Engine{
		repo:              repo,
		pep:               NewScreeningList(cfg.PEPNames),
		sanctions:         NewScreeningList(cfg.SanctionedNames),
		historyWindow:     time.Duration(windowDays) * 24 * time.Hour,
		patternMinHistory: patternMin,
		zscoreMinHistory:  zscoreMin,
		logger:            logger.Sugar(),
		tracer:            otel.Tracer("aml"),
	}
}

// HandleTransactionEvent is the event bus entry point. Errors stop here.
func (e *Engine) HandleTransactionEvent(ctx context.Context, event interface{}) {
	completed, ok := event.(*events.TransactionCompletedEvent)
	if !ok {
		return
	}
	if _, err := e.Assess(ctx, completed); err != nil {
		e.logger.Errorw("risk assessment failed",
			"transaction_id", completed.TransactionID,
			"error", err)
	}
}

// Assess scores one committed transaction and applies the side effects the
// score demands. Calling it again for the same transaction returns the
// stored assessment without repeating side effects.
func (e *Engine) Assess(ctx context.Context, event *events.TransactionCompletedEvent) (*RiskAssessment, error) {
	ctx, span := e.tracer.Start(ctx, "aml.assess")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction_id", event.TransactionID.String()),
		attribute.String("type", event.Type),
	)
	start := time.Now()
	defer func() {
		amlAssessmentDuration.Observe(time.Since(start).Seconds())
	}()

	existing, err := e.repo.FindAssessmentByTransaction(ctx, event.TransactionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAssessmentNotFound) {
		return nil, err
	}

	at := event.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	history, err := e.repo.TransactionHistory(ctx, event.PlayerID, event.PartnerID, at.Add(-e.historyWindow), event.TransactionID)
	if err != nil {
		return nil, err
	}

	factors := e.collectFactors(ctx, event, history, at)

	present := make(map[FactorType]bool, len(factors))
	var total float64
	for _, factor := range factors {
		total += factor.Score
		present[factor.Type] = true
	}
	total += comboBonus(present)
	if total > totalScoreCap {
		total = totalScoreCap
	}

	assessment := &RiskAssessment{
		ID:                 uuid.New(),
		TransactionID:      event.TransactionID,
		PlayerID:           event.PlayerID,
		PartnerID:          event.PartnerID,
		Type:               event.Type,
		Amount:             event.Amount,
		Currency:           event.Currency,
		Score:              total,
		Severity:           severityFor(total, present),
		IsLargeTransaction: present[FactorLargeTransaction],
		RequiresAlert:      total >= alertScoreFloor,
		RequiresReport:     present[FactorLargeTransaction] || total >= reportScoreFloor,
		CreatedAt:          time.Now().UTC(),
	}
	assessment.SetFactors(factors)

	if err := e.repo.CreateAssessment(ctx, assessment); err != nil {
		// Another worker got the same event first; its assessment wins.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return e.repo.FindAssessmentByTransaction(ctx, event.TransactionID)
		}
		return nil, err
	}
	amlAssessments.WithLabelValues(string(assessment.Severity)).Inc()

	var alert *Alert
	if assessment.RequiresAlert {
		alert, err = e.raiseAlert(ctx, assessment, factors)
		if err != nil {
			e.logger.Errorw("failed to raise alert",
				"transaction_id", event.TransactionID,
				"error", err)
		}
	}
	if assessment.RequiresReport && alert != nil {
		if _, err := e.repo.AutoFileReport(ctx, alert, reportNarrative(assessment, factors)); err != nil {
			e.logger.Errorw("failed to file report",
				"alert_id", alert.ID,
				"error", err)
		}
	}
	if err := e.updateProfile(ctx, event, history, assessment, factors); err != nil {
		e.logger.Errorw("failed to update risk profile",
			"player_id", event.PlayerID,
			"error", err)
	}

	e.logger.Infow("transaction assessed",
		"transaction_id", event.TransactionID,
		"score", assessment.Score,
		"severity", assessment.Severity,
		"factors", len(factors))
	return assessment, nil
}

func (e *Engine) collectFactors(ctx context.Context, event *events.TransactionCompletedEvent, history []HistoryEntry, at time.Time) []RiskFactor {
	var factors []RiskFactor

	threshold := largeThresholdFor(event.Currency)
	switch {
	case event.Amount.GreaterThanOrEqual(threshold):
		factors = append(factors, RiskFactor{
			Type:        FactorLargeTransaction,
			Score:       largeTransactionScore,
			Description: fmt.Sprintf("amount %s %s meets the reporting threshold %s", event.Amount, event.Currency, threshold),
		})
	case event.Amount.GreaterThanOrEqual(threshold.Mul(structuringBandRatio)):
		score := structuringScore
		detail := fmt.Sprintf("amount %s %s sits just under the reporting threshold %s", event.Amount, event.Currency, threshold)
		if prior := countRecentBand(history, threshold, at); prior >= 2 {
			score = structuringRepeatScore
			detail = fmt.Sprintf("%s (%d similar amounts in the last 7 days)", detail, prior)
		}
		factors = append(factors, RiskFactor{Type: FactorStructuring, Score: score, Description: detail})
	}

	type deviation struct {
		kind   FactorType
		detail string
	}
	var deviations []deviation
	sameType := filterByType(history, event.Type)
	if ok, detail := detectTimeDeviation(sameType, at, e.patternMinHistory); ok {
		deviations = append(deviations, deviation{FactorTimeDeviation, detail})
	}
	if ok, detail := detectAmountDeviation(sameType, event.Amount, e.zscoreMinHistory); ok {
		deviations = append(deviations, deviation{FactorAmountDeviation, detail})
	}
	if ok, detail := detectFrequencyDeviation(sameType, at, e.patternMinHistory); ok {
		deviations = append(deviations, deviation{FactorFrequencyDeviation, detail})
	}
	if len(deviations) > 0 {
		// Concurrent deviations reinforce each other: every flagged
		// pattern carries the shared severity weight.
		score := patternBaseScore * float64(len(deviations)) / 3.0
		for _, d := range deviations {
			factors = append(factors, RiskFactor{Type: d.kind, Score: score, Description: d.detail})
		}
	}

	if count, err := e.repo.CountPartnersForPlayer(ctx, event.PlayerID); err != nil {
		e.logger.Warnw("multi-account check failed",
			"player_id", event.PlayerID,
			"error", err)
	} else if count > 1 {
		factors = append(factors, RiskFactor{
			Type:        FactorMultiAccount,
			Score:       multiAccountScore,
			Description: fmt.Sprintf("player holds wallets under %d partners", count),
		})
	}

	if name := event.Metadata["player_name"]; name != "" {
		if entry, similarity, ok := e.sanctions.Match(name); ok {
			factors = append(factors, RiskFactor{
				Type:        FactorSanctionsMatch,
				Score:       sanctionsMatchScore,
				Description: fmt.Sprintf("name matches sanctions list entry %q (similarity %.2f)", entry, similarity),
			})
		}
		if entry, similarity, ok := e.pep.Match(name); ok {
			factors = append(factors, RiskFactor{
				Type:        FactorPEPMatch,
				Score:       pepMatchScore,
				Description: fmt.Sprintf("name matches PEP list entry %q (similarity %.2f)", entry, similarity),
			})
		}
	}

	return factors
}

func countRecentBand(history []HistoryEntry, threshold decimal.Decimal, at time.Time) int {
	band := threshold.Mul(structuringBandRatio)
	count := 0
	for _, entry := range history {
		if at.Sub(entry.CreatedAt) > 7*24*time.Hour {
			continue
		}
		if entry.Amount.GreaterThanOrEqual(band) && entry.Amount.LessThan(threshold) {
			count++
		}
	}
	return count
}

func (e *Engine) raiseAlert(ctx context.Context, assessment *RiskAssessment, factors []RiskFactor) (*Alert, error) {
	dominant := dominantFactor(factors)
	description := ""
	for _, factor := range factors {
		if factor.Type == dominant {
			description = factor.Description
			break
		}
	}

	now := time.Now().UTC()
	alert := &Alert{
		ID:            uuid.New(),
		AssessmentID:  assessment.ID,
		TransactionID: assessment.TransactionID,
		PlayerID:      assessment.PlayerID,
		PartnerID:     assessment.PartnerID,
		Type:          dominant,
		Severity:      assessment.Severity,
		Status:        AlertStatusNew,
		Score:         assessment.Score,
		Description:   description,
		Factors:       assessment.Factors,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.repo.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	amlAlerts.WithLabelValues(string(dominant)).Inc()
	e.logger.Infow("alert raised",
		"alert_id", alert.ID,
		"transaction_id", alert.TransactionID,
		"type", alert.Type,
		"severity", alert.Severity)
	return alert, nil
}

func (e *Engine) updateProfile(ctx context.Context, event *events.TransactionCompletedEvent, history []HistoryEntry, assessment *RiskAssessment, factors []RiskFactor) error {
	profile, err := e.repo.GetProfile(ctx, event.PlayerID, event.PartnerID)
	fresh := errors.Is(err, ErrProfileNotFound)
	if err != nil && !fresh {
		return err
	}

	now := time.Now().UTC()
	if fresh {
		profile = &RiskProfile{
			ID:        uuid.New(),
			PlayerID:  event.PlayerID,
			PartnerID: event.PartnerID,
			CreatedAt: now,
		}
	}

	category := profileCategory(event.Type)
	if fresh {
		// First observation seeds the profile instead of smoothing
		// against an empty baseline.
		profile.OverallScore = assessment.Score
		profile.setCategoryScore(category, assessment.Score)
	} else {
		profile.OverallScore = smooth(profile.OverallScore, assessment.Score)
		profile.setCategoryScore(category, smooth(profile.categoryScore(category), assessment.Score))
	}

	var volume7, volume30 decimal.Decimal
	var count7, count30 int
	for _, entry := range history {
		age := now.Sub(entry.CreatedAt)
		if age <= 7*24*time.Hour {
			volume7 = volume7.Add(entry.Amount)
			count7++
		}
		if age <= 30*24*time.Hour {
			volume30 = volume30.Add(entry.Amount)
			count30++
		}
	}
	profile.Volume7d = volume7.Add(event.Amount)
	profile.Volume30d = volume30.Add(event.Amount)
	profile.Count7d = count7 + 1
	profile.Count30d = count30 + 1

	counts := profile.FactorCountMap()
	for _, factor := range factors {
		counts[string(factor.Type)]++
	}
	profile.SetFactorCounts(counts)

	profile.LastAssessedAt = now
	profile.UpdatedAt = now
	if fresh {
		return e.repo.CreateProfile(ctx, profile)
	}
	return e.repo.UpdateProfile(ctx, profile)
}

func smooth(old, current float64) float64 {
	return profileSmoothingKeep*old + profileSmoothingBlend*current
}

func reportNarrative(assessment *RiskAssessment, factors []RiskFactor) string {
	names := make([]string, len(factors))
	for i, factor := range factors {
		names[i] = string(factor.Type)
	}
	return fmt.Sprintf("Automated filing for transaction %s: %s %s %s scored %.0f (%s); factors: %s",
		assessment.TransactionID, assessment.Type, assessment.Amount, assessment.Currency,
		assessment.Score, assessment.Severity, strings.Join(names, ", "))
}

// Assessment returns the stored assessment for a transaction.
func (e *Engine) Assessment(ctx context.Context, transactionID uuid.UUID) (*RiskAssessment, error) {
	return e.repo.FindAssessmentByTransaction(ctx, transactionID)
}

// ListAlerts pages through a partner's alerts.
func (e *Engine) ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, int64, error) {
	return e.repo.ListAlerts(ctx, filter)
}

// ReviewAlert records an analyst verdict on an open alert.
func (e *Engine) ReviewAlert(ctx context.Context, alertID uuid.UUID, reviewer string, falsePositive bool, notes string) (*Alert, error) {
	return e.repo.ReviewAlert(ctx, alertID, reviewer, falsePositive, notes)
}

// FileReport files a regulatory report for a reviewed alert.
func (e *Engine) FileReport(ctx context.Context, alertID uuid.UUID, filedBy, narrative string) (*Report, error) {
	return e.repo.FileReport(ctx, alertID, filedBy, narrative)
}
