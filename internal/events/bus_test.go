package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (s *recordingSink) PublishEvent(ctx context.Context, topic string, event interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.topics = append(s.topics, topic)
	return nil
}

func (s *recordingSink) published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics...)
}

func sampleEvent() *TransactionCompletedEvent {
	return &TransactionCompletedEvent{
		TransactionID: uuid.New(),
		WalletID:      uuid.New(),
		PlayerID:      uuid.New(),
		PartnerID:     uuid.New(),
		Type:          "bet",
		Amount:        decimal.RequireFromString("10.00"),
		Currency:      "USD",
		Balance:       decimal.RequireFromString("90.00"),
		Timestamp:     time.Now(),
	}
}

func TestBusDispatchesToSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop(), nil)

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	var seen []interface{}

	handler := func(ctx context.Context, event interface{}) {
		mu.Lock()
		seen = append(seen, event)
		mu.Unlock()
		wg.Done()
	}
	bus.Subscribe(EventTransactionCompleted, handler)
	bus.Subscribe(EventTransactionCompleted, handler)

	require.NoError(t, bus.Publish(context.Background(), EventTransactionCompleted, sampleEvent()))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2)
}

func TestBusIgnoresUnsubscribedTypes(t *testing.T) {
	bus := NewBus(zap.NewNop(), nil)
	bus.Subscribe(EventBalanceChanged, func(ctx context.Context, event interface{}) {
		t.Error("handler for a different event type was invoked")
	})

	require.NoError(t, bus.Publish(context.Background(), EventTransactionCompleted, sampleEvent()))
	time.Sleep(20 * time.Millisecond)
}

func TestBusPublishesToSinkTopics(t *testing.T) {
	sink := &recordingSink{}
	bus := NewBus(zap.NewNop(), map[EventType]string{
		EventTransactionCompleted: "wallet.transactions",
	}, sink)

	require.NoError(t, bus.Publish(context.Background(), EventTransactionCompleted, sampleEvent()))
	assert.Equal(t, []string{"wallet.transactions"}, sink.published())

	// No topic mapping means in-process delivery only.
	require.NoError(t, bus.Publish(context.Background(), EventBalanceChanged, sampleEvent()))
	assert.Equal(t, []string{"wallet.transactions"}, sink.published())
}

func TestBusReportsWhenAllSinksFail(t *testing.T) {
	broken := &recordingSink{err: errors.New("broker unavailable")}
	healthy := &recordingSink{}

	bus := NewBus(zap.NewNop(), map[EventType]string{
		EventTransactionCompleted: "wallet.transactions",
	}, broken, healthy)
	assert.NoError(t, bus.Publish(context.Background(), EventTransactionCompleted, sampleEvent()))

	allBroken := NewBus(zap.NewNop(), map[EventType]string{
		EventTransactionCompleted: "wallet.transactions",
	}, broken)
	assert.Error(t, allBroken.Publish(context.Background(), EventTransactionCompleted, sampleEvent()))
}

func TestBusContainsHandlerPanics(t *testing.T) {
	bus := NewBus(zap.NewNop(), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(EventTransactionCompleted, func(ctx context.Context, event interface{}) {
		defer wg.Done()
		panic("handler exploded")
	})

	require.NoError(t, bus.Publish(context.Background(), EventTransactionCompleted, sampleEvent()))
	wg.Wait()
}
