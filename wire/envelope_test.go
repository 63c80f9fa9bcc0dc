package wire_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samikhan1239/Fiver/wire"
)

const (
	gigID    = "6623a1b2c3d4e5f601020304"
	senderID = "aaaa1b2c3d4e5f601020304a"
	otherID  = "bbbb1b2c3d4e5f601020304b"
)

func TestIsHexID(t *testing.T) {
	assert.True(t, wire.IsHexID(gigID))
	assert.False(t, wire.IsHexID(""))
	assert.False(t, wire.IsHexID("6623a1b2c3d4e5f60102030"))   // too short
	assert.False(t, wire.IsHexID("6623a1b2c3d4e5f6010203045")) // too long
	assert.False(t, wire.IsHexID("6623A1B2C3D4E5F601020304"))  // uppercase
	assert.False(t, wire.IsHexID("6623a1b2c3d4e5f60102030g"))  // non-hex
}

func TestDecode(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		raw := []byte(`{"gigId":"` + gigID + `","senderId":"` + senderID + `","recipientId":"` + otherID + `","text":"hi","timestamp":1000,"messageId":"k1"}`)
		env, err := wire.Decode(raw)
		assert.NoError(t, err)
		assert.Equal(t, gigID, env.GigID)
		assert.Equal(t, senderID, env.SenderID)
		assert.Equal(t, otherID, env.RecipientID)
		assert.Equal(t, "hi", env.Text)
		assert.Equal(t, int64(1000), env.Timestamp)
		assert.Equal(t, "k1", env.MessageKey)
	})

	t.Run("ValidBroadcast", func(t *testing.T) {
		raw := []byte(`{"gigId":"` + gigID + `","senderId":"` + senderID + `","text":"hi"}`)
		env, err := wire.Decode(raw)
		assert.NoError(t, err)
		assert.Empty(t, env.RecipientID)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		_, err := wire.Decode([]byte(`{`))
		var verr *wire.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("EmptyText", func(t *testing.T) {
		raw := []byte(`{"gigId":"` + gigID + `","senderId":"` + senderID + `","text":""}`)
		_, err := wire.Decode(raw)
		var verr *wire.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("BadIdentifiers", func(t *testing.T) {
		for _, raw := range []string{
			`{"senderId":"` + senderID + `","text":"hi"}`,
			`{"gigId":"nope","senderId":"` + senderID + `","text":"hi"}`,
			`{"gigId":"` + gigID + `","senderId":"nope","text":"hi"}`,
			`{"gigId":"` + gigID + `","senderId":"` + senderID + `","recipientId":"nope","text":"hi"}`,
		} {
			_, err := wire.Decode([]byte(raw))
			var verr *wire.ValidationError
			assert.ErrorAs(t, err, &verr, raw)
		}
	})
}

func TestCanonicalKey(t *testing.T) {
	t.Run("ClientSuppliedWins", func(t *testing.T) {
		env := &wire.Envelope{SenderID: senderID, Timestamp: 1000, MessageKey: "client-key"}
		assert.Equal(t, "client-key", env.CanonicalKey())
	})

	t.Run("FallbackNeverCollides", func(t *testing.T) {
		// Two distinct messages in the same millisecond must not collapse.
		a := &wire.Envelope{SenderID: senderID, Timestamp: 1000}
		b := &wire.Envelope{SenderID: senderID, Timestamp: 1000}
		ka, kb := a.CanonicalKey(), b.CanonicalKey()
		assert.NotEqual(t, ka, kb)
		assert.True(t, strings.HasPrefix(ka, senderID+":1000:"))
	})
}
