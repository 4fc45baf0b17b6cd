package messaging

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/spamguard/internal/catalog"
	"github.com/whisper/spamguard/internal/moderation"
)

// newTestClient requires a running NATS server on localhost:4222.
func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := DefaultNATSConfig()
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg, logger)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestFlaggedSubject(t *testing.T) {
	assert.Equal(t, "moderation.flagged.-100123", FlaggedSubject(-100123))
}

func TestRecordPublishesEvent(t *testing.T) {
	c := newTestClient(t)

	type received struct {
		subject string
		data    []byte
	}
	got := make(chan received, 1)
	require.NoError(t, c.Subscribe(SubjectFlagged+".>", func(subject string, data []byte) {
		got <- received{subject, data}
	}))

	ev := moderation.Event{ID: "e1", ChatID: -5, MessageID: 9, Term: "上分", Deleted: true}
	require.NoError(t, c.Record(context.Background(), ev))

	select {
	case msg := <-got:
		assert.Equal(t, "moderation.flagged.-5", msg.subject)
		var decoded moderation.Event
		require.NoError(t, json.Unmarshal(msg.data, &decoded))
		assert.Equal(t, ev, decoded)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestPublishCatalogChange(t *testing.T) {
	c := newTestClient(t)

	got := make(chan []byte, 1)
	require.NoError(t, c.Subscribe(SubjectCatalogUpdated, func(_ string, data []byte) { got <- data }))

	c.PublishCatalogChange(catalog.Change{Op: "add", Keyword: "测试词", Category: "custom", Version: 3})

	select {
	case data := <-got:
		assert.JSONEq(t, `{"op":"add","keyword":"测试词","category":"custom","version":3,"ts":0}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("change not received")
	}
}

func TestSubscribeReplacesHandler(t *testing.T) {
	c := newTestClient(t)

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	require.NoError(t, c.Subscribe("spamguard.test", func(string, []byte) { first <- struct{}{} }))
	require.NoError(t, c.Subscribe("spamguard.test", func(string, []byte) { second <- struct{}{} }))

	require.NoError(t, c.Publish("spamguard.test", []byte("x")))

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
	assert.Empty(t, first)
}
