package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"attest/internal/platform/kafka/producer"
	"attest/pkg/requestcontext"
)

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

func requestCtx() context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.77", firefoxUA)
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestEmitEnrichesFromRequest(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(store)

	require.NoError(t, p.Emit(requestCtx(), Event{
		Action:       ActionCredentialVerified,
		CredentialID: "cred-123",
		Outcome:      "VALID",
	}))

	events, err := store.ListByCredential(context.Background(), "cred-123")
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", e.ID.String())
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "203.0.113.0", e.ClientIP, "address must be truncated")
	assert.Equal(t, "firefox", e.Browser)
	assert.Contains(t, e.OS, "linux")
	assert.False(t, e.IsBot)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), e.Timestamp)
}

func TestEmitWithoutRequestMetadata(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(store)

	require.NoError(t, p.Emit(context.Background(), Event{Action: ActionCredentialIssued, CredentialID: "cred-1"}))

	events, _ := store.ListByCredential(context.Background(), "cred-1")
	require.Len(t, events, 1)
	assert.Empty(t, events[0].ClientIP)
	assert.Empty(t, events[0].Browser)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestAsyncPublisherDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewInMemoryStore()
	p := NewPublisher(store, WithAsyncBuffer(64))
	for range 10 {
		require.NoError(t, p.Emit(context.Background(), Event{Action: ActionCredentialVerified, CredentialID: "cred-1"}))
	}
	p.Close()

	events, _ := store.ListByCredential(context.Background(), "cred-1")
	assert.Len(t, events, 10)
}

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("down") }

func TestMultiStoreAppendsEverywhere(t *testing.T) {
	a, b := NewInMemoryStore(), NewInMemoryStore()
	err := MultiStore{a, failingStore{}, b}.Append(context.Background(), Event{CredentialID: "cred-1"})
	assert.EqualError(t, err, "down")

	got, _ := b.ListByCredential(context.Background(), "cred-1")
	assert.Len(t, got, 1, "later stores still receive the event")
}

type recordingProducer struct {
	messages []*producer.Message
}

func (r *recordingProducer) ProduceAsync(msg *producer.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func TestKafkaStoreKeysByCredential(t *testing.T) {
	rec := &recordingProducer{}
	s := NewKafkaStore(rec, "credential-audit")

	require.NoError(t, s.Append(context.Background(), Event{Action: ActionCredentialRevoked, CredentialID: "cred-9", Reason: "fraud"}))

	require.Len(t, rec.messages, 1)
	msg := rec.messages[0]
	assert.Equal(t, "credential-audit", msg.Topic)
	assert.Equal(t, []byte("cred-9"), msg.Key)
	assert.Equal(t, "credential_revoked", msg.Headers["action"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "fraud", decoded["reason"])
}

func TestDescribeClientRecognisesBots(t *testing.T) {
	_, _, bot := describeClient("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot)
}
