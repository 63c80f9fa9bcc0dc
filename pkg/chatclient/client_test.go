package chatclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samikhan1239/Fiver/wire"
)

const (
	gig1  = "6623a1b2c3d4e5f601020304"
	userA = "aaaa1b2c3d4e5f601020304a"
	userB = "bbbb1b2c3d4e5f601020304b"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{
		ServerURL:     "http://localhost:8000",
		SelfID:        userA,
		GigID:         gig1,
		CounterpartID: userB,
	})
	require.NoError(t, err)
	return c
}

func confirmed(key, sender string, sentAt int64, text string) wire.Record {
	return wire.Record{
		ID:         1,
		MessageKey: key,
		GigID:      gig1,
		Sender:     wire.Sender{ID: sender},
		Text:       text,
		SentAt:     sentAt,
	}
}

func TestNewValidatesIdentifiers(t *testing.T) {
	_, err := New(Config{ServerURL: "http://x", SelfID: "nope", GigID: gig1, CounterpartID: userB})
	assert.Error(t, err)

	_, err = New(Config{SelfID: userA, GigID: gig1, CounterpartID: userB})
	assert.Error(t, err, "server URL is required")
}

func TestIngestConfirmsOptimisticByKey(t *testing.T) {
	c := newTestClient(t)

	placeholder := &Message{
		LocalID: "key-1",
		State:   Optimistic,
		Record:  wire.Record{MessageKey: "key-1", Sender: wire.Sender{ID: userA}, Text: "hi", SentAt: 1000},
	}
	c.messages = append(c.messages, placeholder)
	c.byKey["key-1"] = placeholder

	c.ingest(confirmed("key-1", userA, 1000, "hi"))

	msgs := c.Messages()
	require.Len(t, msgs, 1, "confirmation replaces the placeholder, never appends")
	assert.Equal(t, Confirmed, msgs[0].State)
	assert.Equal(t, int64(1), msgs[0].Record.ID)
}

func TestIngestReconcilesBySenderAndTimestamp(t *testing.T) {
	c := newTestClient(t)

	// A history row can carry a server-generated key the client never saw;
	// the (sender, sentAt) pair still identifies the local message.
	placeholder := &Message{
		LocalID: "local-1",
		State:   Optimistic,
		Record:  wire.Record{MessageKey: "local-1", Sender: wire.Sender{ID: userA}, Text: "hi", SentAt: 1000},
	}
	c.messages = append(c.messages, placeholder)
	c.byKey["local-1"] = placeholder

	c.ingest(confirmed("server-key", userA, 1000, "hi"))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Confirmed, msgs[0].State)
	assert.Equal(t, "server-key", msgs[0].Record.MessageKey)

	// The rekeyed entry now dedupes by the server key too.
	c.ingest(confirmed("server-key", userA, 1000, "hi"))
	assert.Len(t, c.Messages(), 1)
}

func TestIngestAppendsUnknownRecords(t *testing.T) {
	c := newTestClient(t)

	c.ingest(confirmed("k1", userB, 1000, "from them"))
	c.ingest(confirmed("k1", userB, 1000, "from them")) // live push + history race

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Confirmed, msgs[0].State)
	assert.Equal(t, "from them", msgs[0].Record.Text)
}

func TestRetractOldestOptimistic(t *testing.T) {
	c := newTestClient(t)

	older := &Message{LocalID: "k1", State: Optimistic, Record: wire.Record{MessageKey: "k1"}}
	settled := &Message{LocalID: "k0", State: Confirmed, Record: wire.Record{MessageKey: "k0"}}
	newer := &Message{LocalID: "k2", State: Optimistic, Record: wire.Record{MessageKey: "k2"}}
	c.messages = []*Message{settled, older, newer}
	c.byKey = map[string]*Message{"k0": settled, "k1": older, "k2": newer}

	c.retractOldestOptimistic()

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "k0", msgs[0].LocalID, "confirmed messages are never retracted")
	assert.Equal(t, "k2", msgs[1].LocalID)
}

func TestSendWhileDisconnected(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Send("hello")
	assert.Error(t, err)
	assert.Empty(t, c.Messages(), "failed sends leave no placeholder behind")
}

func TestSendRejectsEmptyText(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Send("")
	assert.Error(t, err)
}

func TestIdempotencyKeysAreMonotonic(t *testing.T) {
	c := newTestClient(t)
	// Keys are minted even when the send fails, so a later retry can never
	// reuse an earlier key.
	c.Send("one")
	c.Send("two")
	assert.Equal(t, uint64(2), c.seq)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	c.Start() // no-op after close
	assert.Equal(t, StateDisconnected, c.State())
}
