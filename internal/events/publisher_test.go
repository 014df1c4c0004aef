package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainslot/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

func TestPublish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	evt := Event{
		Type:       TypeSessionBooked,
		SessionID:  100,
		PurchaseID: 5,
		CustomerID: 1,
		TrainerID:  2,
		Actor:      "customer",
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	mock.ExpectLPush(QueueKey, payload).SetVal(1)

	pub := NewRedisPublisherWithClient(db)

	assert.NoError(t, pub.Publish(ctx, evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush(QueueKey, `.*`).SetErr(assert.AnError)

	pub := NewRedisPublisherWithClient(db)

	err := pub.Publish(ctx, Event{Type: TypeSessionCancelled, SessionID: 100})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishAllTypes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()
	pub := NewRedisPublisherWithClient(db)

	types := []string{
		TypeSessionBooked,
		TypeSessionCancelled,
		TypeSessionRescheduled,
		TypeSessionCompleted,
		TypeSessionNoShow,
		TypePackageExpiringSoon,
	}
	for range types {
		mock.Regexp().ExpectLPush(QueueKey, `.*`).SetVal(1)
	}

	for _, typ := range types {
		assert.NoError(t, pub.Publish(ctx, Event{Type: typ, SessionID: 1}))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
