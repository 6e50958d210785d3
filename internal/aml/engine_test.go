package aml

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/musig5344/ocasino-sub000/internal/codec"
	"github.com/musig5344/ocasino-sub000/internal/config"
	"github.com/musig5344/ocasino-sub000/internal/events"
	"github.com/musig5344/ocasino-sub000/internal/ledger"
)

type amlFixture struct {
	engine    *Engine
	repo      *Repository
	db        *gorm.DB
	codec     *codec.AmountCodec
	partnerID uuid.UUID
}

func setupEngine(t *testing.T) *amlFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database visible to every
	// goroutine.
	sqlDB.SetMaxOpenConns(1)

	amountCodec, err := codec.NewAmountCodec("test-master-key", "test-salt")
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewRepository(db, amountCodec, logger)
	require.NoError(t, repo.AutoMigrate())
	require.NoError(t, db.AutoMigrate(&ledger.Wallet{}, &ledger.Transaction{}))

	engine := NewEngine(repo, config.AMLConfig{
		HistoryWindowDays: 30,
		PatternMinHistory: 5,
		ZScoreMinHistory:  10,
		PEPNames:          []string{"Viktor Petrov"},
		SanctionedNames:   []string{"Dmitri Volkov"},
	}, logger)

	return &amlFixture{engine: engine, repo: repo, db: db, codec: amountCodec, partnerID: uuid.New()}
}

func (fx *amlFixture) completedEvent(playerID uuid.UUID, txType, amount string) *events.TransactionCompletedEvent {
	value := decimal.RequireFromString(amount)
	return &events.TransactionCompletedEvent{
		TransactionID: uuid.New(),
		ReferenceID:   "evt-" + uuid.NewString(),
		WalletID:      uuid.New(),
		PlayerID:      playerID,
		PartnerID:     fx.partnerID,
		Type:          txType,
		Amount:        value,
		Currency:      "USD",
		Balance:       value,
		Timestamp:     time.Now().UTC(),
	}
}

// seedTransaction plants a committed ledger row so it shows up as history.
func (fx *amlFixture) seedTransaction(t *testing.T, playerID uuid.UUID, txType, amount string, at time.Time) uuid.UUID {
	t.Helper()
	value := decimal.RequireFromString(amount)
	encrypted, err := fx.codec.EncryptAmount(value)
	require.NoError(t, err)
	row := &ledger.Transaction{
		ID:              uuid.New(),
		ReferenceID:     "hist-" + uuid.NewString(),
		PartnerID:       fx.partnerID,
		WalletID:        uuid.New(),
		PlayerID:        playerID,
		Type:            ledger.TransactionType(txType),
		EncryptedAmount: encrypted,
		Currency:        "USD",
		Status:          ledger.TransactionStatusCompleted,
		OriginalBalance: decimal.Zero,
		UpdatedBalance:  value,
		CreatedAt:       at,
	}
	require.NoError(t, fx.db.Create(row).Error)
	return row.ID
}

func (fx *amlFixture) createWallet(t *testing.T, playerID, partnerID uuid.UUID) {
	t.Helper()
	require.NoError(t, fx.db.Create(&ledger.Wallet{
		ID:        uuid.New(),
		PlayerID:  playerID,
		PartnerID: partnerID,
		Balance:   decimal.Zero,
		Currency:  "USD",
		IsActive:  true,
	}).Error)
}

func factorScores(factors []RiskFactor) map[FactorType]float64 {
	byType := make(map[FactorType]float64, len(factors))
	for _, factor := range factors {
		byType[factor.Type] = factor.Score
	}
	return byType
}

func TestAssessFlagsLargeTransaction(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	assessment, err := fx.engine.Assess(ctx, fx.completedEvent(uuid.New(), "deposit", "12000"))
	require.NoError(t, err)

	assert.True(t, assessment.IsLargeTransaction)
	assert.True(t, assessment.RequiresAlert)
	assert.True(t, assessment.RequiresReport)
	assert.InDelta(t, 40, assessment.Score, 0.001)
	assert.Equal(t, SeverityLow, assessment.Severity)

	byType := factorScores(assessment.FactorList())
	require.Contains(t, byType, FactorLargeTransaction)
	assert.InDelta(t, 40, byType[FactorLargeTransaction], 0.001)

	alerts, total, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	alert := alerts[0]
	assert.Equal(t, FactorLargeTransaction, alert.Type)
	assert.Equal(t, AlertStatusReported, alert.Status)

	report, err := fx.repo.GetReportByAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "system", report.FiledBy)
	assert.True(t, strings.HasPrefix(report.Reference, "STR-"), "reference = %s", report.Reference)
	assert.Equal(t, assessment.TransactionID, report.TransactionID)
}

func TestAssessIsIdempotentPerTransaction(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	event := fx.completedEvent(uuid.New(), "deposit", "12000")

	first, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)
	second, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var alertCount, reportCount int64
	require.NoError(t, fx.db.Model(&Alert{}).Count(&alertCount).Error)
	require.NoError(t, fx.db.Model(&Report{}).Count(&reportCount).Error)
	assert.EqualValues(t, 1, alertCount)
	assert.EqualValues(t, 1, reportCount)
}

func TestAssessFlagsStructuringBand(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	assessment, err := fx.engine.Assess(ctx, fx.completedEvent(uuid.New(), "deposit", "9500"))
	require.NoError(t, err)

	byType := factorScores(assessment.FactorList())
	require.Contains(t, byType, FactorStructuring)
	assert.NotContains(t, byType, FactorLargeTransaction)
	assert.InDelta(t, 25, byType[FactorStructuring], 0.001)
	assert.False(t, assessment.IsLargeTransaction)
	assert.False(t, assessment.RequiresAlert)
}

func TestRepeatedStructuringScoresHigher(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	playerID := uuid.New()
	now := time.Now().UTC()
	fx.seedTransaction(t, playerID, "deposit", "9200", now.Add(-48*time.Hour))
	fx.seedTransaction(t, playerID, "deposit", "9400", now.Add(-24*time.Hour))

	assessment, err := fx.engine.Assess(ctx, fx.completedEvent(playerID, "deposit", "9500"))
	require.NoError(t, err)

	byType := factorScores(assessment.FactorList())
	require.Contains(t, byType, FactorStructuring)
	assert.InDelta(t, 35, byType[FactorStructuring], 0.001)
}

func TestAssessFlagsAmountDeviation(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	playerID := uuid.New()
	now := time.Now().UTC()
	for i := 1; i <= 12; i++ {
		fx.seedTransaction(t, playerID, "bet", "100.00", now.Add(-time.Duration(i)*24*time.Hour))
	}

	event := fx.completedEvent(playerID, "bet", "500.00")
	event.Timestamp = now
	assessment, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)

	byType := factorScores(assessment.FactorList())
	require.Contains(t, byType, FactorAmountDeviation)
	assert.NotContains(t, byType, FactorTimeDeviation)
	assert.NotContains(t, byType, FactorFrequencyDeviation)
	// One deviating pattern of three carries a third of the pattern weight.
	assert.InDelta(t, 25.0/3, byType[FactorAmountDeviation], 0.01)
	assert.False(t, assessment.RequiresAlert)
}

func TestPEPMatchForcesCriticalSeverity(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	event := fx.completedEvent(uuid.New(), "deposit", "15000")
	event.Metadata = map[string]string{"player_name": "Viktor Petrov"}

	assessment, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)

	// large 40 + pep 20 + composite bonus 25
	assert.InDelta(t, 85, assessment.Score, 0.001)
	assert.Equal(t, SeverityCritical, assessment.Severity)
	assert.True(t, assessment.RequiresReport)

	alerts, _, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, FactorPEPMatch, alerts[0].Type)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
}

func TestSanctionsMatchIsFuzzy(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	event := fx.completedEvent(uuid.New(), "deposit", "50.00")
	event.Metadata = map[string]string{"player_name": "Dmitry Volkov"}

	assessment, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)

	byType := factorScores(assessment.FactorList())
	require.Contains(t, byType, FactorSanctionsMatch)
	assert.NotContains(t, byType, FactorPEPMatch)
	assert.InDelta(t, 40, assessment.Score, 0.001)
	assert.True(t, assessment.RequiresAlert)
	assert.False(t, assessment.RequiresReport)
}

func TestScoreCapsAtOneHundred(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	event := fx.completedEvent(uuid.New(), "deposit", "20000")
	event.Metadata = map[string]string{"player_name": "Dmitri Volkov"}

	assessment, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)

	assert.InDelta(t, 100, assessment.Score, 0.001)
	assert.Equal(t, SeverityCritical, assessment.Severity)

	alerts, _, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, FactorSanctionsMatch, alerts[0].Type)
}

func TestMultiAccountCompoundsWithStructuring(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	playerID := uuid.New()
	fx.createWallet(t, playerID, fx.partnerID)
	fx.createWallet(t, playerID, uuid.New())

	assessment, err := fx.engine.Assess(ctx, fx.completedEvent(playerID, "deposit", "9500"))
	require.NoError(t, err)

	byType := factorScores(assessment.FactorList())
	require.Contains(t, byType, FactorMultiAccount)
	require.Contains(t, byType, FactorStructuring)
	// structuring 25 + multi-account 10 + composite bonus 25
	assert.InDelta(t, 60, assessment.Score, 0.001)
	assert.Equal(t, SeverityMedium, assessment.Severity)

	alerts, _, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, FactorStructuring, alerts[0].Type)
	assert.Equal(t, AlertStatusNew, alerts[0].Status)
}

func TestAlertReviewWorkflow(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	event := fx.completedEvent(uuid.New(), "deposit", "50.00")
	event.Metadata = map[string]string{"player_name": "Dmitri Volkov"}
	_, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)

	alerts, _, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	alert := alerts[0]
	require.Equal(t, AlertStatusNew, alert.Status)

	// Filing before review is rejected.
	_, err = fx.engine.FileReport(ctx, alert.ID, "analyst", "premature")
	require.ErrorIs(t, err, ErrInvalidAlertState)

	reviewed, err := fx.engine.ReviewAlert(ctx, alert.ID, "analyst", false, "confirmed suspicious")
	require.NoError(t, err)
	assert.Equal(t, AlertStatusReviewed, reviewed.Status)
	assert.Equal(t, "analyst", reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)

	_, err = fx.engine.ReviewAlert(ctx, alert.ID, "analyst", false, "again")
	require.ErrorIs(t, err, ErrInvalidAlertState)

	report, err := fx.engine.FileReport(ctx, alert.ID, "analyst", "funds traced to a sanctioned counterparty")
	require.NoError(t, err)
	assert.Equal(t, "analyst", report.FiledBy)
	assert.True(t, strings.HasPrefix(report.Reference, "STR-"))

	reported, err := fx.repo.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, AlertStatusReported, reported.Status)

	_, err = fx.engine.FileReport(ctx, alert.ID, "analyst", "twice")
	require.ErrorIs(t, err, ErrInvalidAlertState)

	_, err = fx.engine.ReviewAlert(ctx, uuid.New(), "analyst", false, "")
	require.ErrorIs(t, err, ErrAlertNotFound)
}

func TestFalsePositiveAlertCannotBeReported(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	event := fx.completedEvent(uuid.New(), "deposit", "50.00")
	event.Metadata = map[string]string{"player_name": "Dmitri Volkov"}
	_, err := fx.engine.Assess(ctx, event)
	require.NoError(t, err)

	alerts, _, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	reviewed, err := fx.engine.ReviewAlert(ctx, alerts[0].ID, "analyst", true, "name collision with a common surname")
	require.NoError(t, err)
	assert.True(t, reviewed.FalsePositive)

	_, err = fx.engine.FileReport(ctx, alerts[0].ID, "analyst", "should fail")
	require.ErrorIs(t, err, ErrInvalidAlertState)
}

func TestProfileSmoothingFollowsAssessments(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	playerID := uuid.New()
	now := time.Now().UTC()

	_, err := fx.engine.Assess(ctx, fx.completedEvent(playerID, "deposit", "12000"))
	require.NoError(t, err)

	profile, err := fx.repo.GetProfile(ctx, playerID, fx.partnerID)
	require.NoError(t, err)
	assert.InDelta(t, 40, profile.OverallScore, 0.001)
	assert.InDelta(t, 40, profile.DepositScore, 0.001)
	assert.Zero(t, profile.GameplayScore)
	assert.Equal(t, 1, profile.Count30d)
	assert.True(t, profile.Volume30d.Equal(decimal.RequireFromString("12000")), "volume = %s", profile.Volume30d)

	// The first transaction is in the ledger by the time the next event
	// arrives.
	fx.seedTransaction(t, playerID, "deposit", "12000", now.Add(-time.Hour))

	_, err = fx.engine.Assess(ctx, fx.completedEvent(playerID, "deposit", "50.00"))
	require.NoError(t, err)

	profile, err = fx.repo.GetProfile(ctx, playerID, fx.partnerID)
	require.NoError(t, err)
	assert.InDelta(t, 28, profile.OverallScore, 0.001)
	assert.InDelta(t, 28, profile.DepositScore, 0.001)
	assert.Equal(t, 2, profile.Count30d)
	assert.Equal(t, 2, profile.Count7d)
	assert.True(t, profile.Volume30d.Equal(decimal.RequireFromString("12050")), "volume = %s", profile.Volume30d)

	counts := profile.FactorCountMap()
	assert.Equal(t, 1, counts[string(FactorLargeTransaction)])
}

func TestTransactionHistorySkipsUndecodableRows(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	playerID := uuid.New()
	now := time.Now().UTC()
	fx.seedTransaction(t, playerID, "bet", "10.00", now.Add(-3*time.Hour))
	bad := fx.seedTransaction(t, playerID, "bet", "20.00", now.Add(-2*time.Hour))
	fx.seedTransaction(t, playerID, "bet", "30.00", now.Add(-time.Hour))

	require.NoError(t, fx.db.Model(&ledger.Transaction{}).Where("id = ?", bad).
		Update("encrypted_amount", "not-a-ciphertext").Error)

	history, err := fx.repo.TransactionHistory(ctx, playerID, fx.partnerID, now.Add(-24*time.Hour), uuid.New())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Amount.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, history[1].Amount.Equal(decimal.RequireFromString("30.00")))
}

func TestListAlertsFiltersByStatus(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	_, err := fx.engine.Assess(ctx, fx.completedEvent(uuid.New(), "deposit", "12000"))
	require.NoError(t, err)
	event := fx.completedEvent(uuid.New(), "deposit", "50.00")
	event.Metadata = map[string]string{"player_name": "Dmitri Volkov"}
	_, err = fx.engine.Assess(ctx, event)
	require.NoError(t, err)

	all, total, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	status := AlertStatusNew
	fresh, total, err := fx.engine.ListAlerts(ctx, AlertFilter{PartnerID: fx.partnerID, Status: &status})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, FactorSanctionsMatch, fresh[0].Type)

	_, _, err = fx.engine.ListAlerts(ctx, AlertFilter{})
	require.Error(t, err)
}

func TestEngineConsumesBusEvents(t *testing.T) {
	fx := setupEngine(t)
	bus := events.NewBus(zap.NewNop(), nil)
	bus.Subscribe(events.EventTransactionCompleted, fx.engine.HandleTransactionEvent)

	event := fx.completedEvent(uuid.New(), "deposit", "12000")
	require.NoError(t, bus.Publish(context.Background(), events.EventTransactionCompleted, event))

	require.Eventually(t, func() bool {
		_, err := fx.engine.Assessment(context.Background(), event.TransactionID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
