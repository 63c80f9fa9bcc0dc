package ws_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samikhan1239/Fiver/internal/security"
	"github.com/samikhan1239/Fiver/internal/service"
	"github.com/samikhan1239/Fiver/internal/store/sqlite"
	"github.com/samikhan1239/Fiver/internal/ws"
	"github.com/samikhan1239/Fiver/wire"
)

type gateway struct {
	srv    *httptest.Server
	tokens *security.TokenService
}

func newGateway(t *testing.T) *gateway {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	enc, err := security.NewEncryptor([]byte("test-secret"))
	require.NoError(t, err)
	tokens := security.NewTokenService("test-jwt-secret", time.Hour)
	msgSvc := service.NewMessageService(sqlite.NewMessageRepo(db), sqlite.NewUserRepo(db), enc)

	registry := ws.NewRegistry()
	handler := ws.MakeHandler(registry, ws.NewRouter(registry), msgSvc, tokens, nil)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &gateway{srv: srv, tokens: tokens}
}

// dial opens a scoped connection as userID; empty gigID and sellerID dial a
// notification-only connection.
func (g *gateway) dial(t *testing.T, userID, gigID, sellerID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := g.dialRaw(t, userID, userID, gigID, sellerID)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *gateway) dialRaw(t *testing.T, tokenUser, queryUser, gigID, sellerID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := g.tokens.CreateForUser(tokenUser)
	require.NoError(t, err)

	u := strings.Replace(g.srv.URL, "http", "ws", 1) + "?userId=" + queryUser
	if gigID != "" || sellerID != "" {
		u += "&gigId=" + gigID + "&sellerId=" + sellerID
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	return websocket.DefaultDialer.Dial(u, header)
}

// frame is anything the gateway pushes: a persisted record or an error.
type frame struct {
	wire.Record
	Error string `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, code), "expected close %d, got %v", code, err)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var f frame
	err := conn.ReadJSON(&f)
	require.Error(t, err, "unexpected frame: %+v", f)
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	g := newGateway(t)

	u := strings.Replace(g.srv.URL, "http", "ws", 1) + "?userId=" + userA
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerRejectsMismatchedIdentity(t *testing.T) {
	g := newGateway(t)

	// Token for A, userId claims B: upgrade succeeds, then the connection is
	// rejected with a policy violation.
	conn, resp, err := g.dialRaw(t, userA, userB, gig1, userB)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	f := readFrame(t, conn)
	assert.Contains(t, f.Error, "userId")
	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestHandlerRejectsIncompleteScope(t *testing.T) {
	g := newGateway(t)

	// gigId without sellerId is not a valid conversation scope.
	conn, resp, err := g.dialRaw(t, userA, userA, gig1, "")
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	f := readFrame(t, conn)
	assert.Contains(t, f.Error, "sellerId")
	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestHandlerDeliversToBothParticipants(t *testing.T) {
	g := newGateway(t)

	sender := g.dial(t, userA, gig1, userB)
	recipient := g.dial(t, userB, gig1, userA)

	env := wire.Envelope{
		GigID:       gig1,
		SenderID:    userA,
		RecipientID: userB,
		Text:        "hello there",
		Timestamp:   1000,
		MessageKey:  "k1",
	}
	require.NoError(t, sender.WriteJSON(&env))

	got := readFrame(t, recipient)
	assert.Empty(t, got.Error)
	assert.Equal(t, "hello there", got.Text)
	assert.Equal(t, userA, got.Sender.ID)
	assert.Equal(t, "k1", got.MessageKey)

	echo := readFrame(t, sender)
	assert.Equal(t, got.ID, echo.ID, "both sides see the same persisted record")
}

func TestHandlerDuplicateSubmission(t *testing.T) {
	g := newGateway(t)

	sender := g.dial(t, userA, gig1, userB)
	recipient := g.dial(t, userB, gig1, userA)

	env := wire.Envelope{
		GigID:       gig1,
		SenderID:    userA,
		RecipientID: userB,
		Text:        "once only",
		Timestamp:   1000,
		MessageKey:  "dup-key",
	}
	require.NoError(t, sender.WriteJSON(&env))
	first := readFrame(t, sender)
	require.Empty(t, first.Error)
	require.Equal(t, "once only", readFrame(t, recipient).Text)

	// Retry after a presumed timeout: the sender is re-confirmed with the
	// original record, the recipient hears nothing.
	require.NoError(t, sender.WriteJSON(&env))
	second := readFrame(t, sender)
	assert.Empty(t, second.Error)
	assert.Equal(t, first.ID, second.ID)
	expectSilence(t, recipient)
}

func TestHandlerMalformedFrameKeepsConnectionOpen(t *testing.T) {
	g := newGateway(t)

	sender := g.dial(t, userA, gig1, userB)

	require.NoError(t, sender.WriteJSON(&wire.Envelope{
		GigID:    gig1,
		SenderID: userA,
		Text:     "",
	}))
	f := readFrame(t, sender)
	assert.NotEmpty(t, f.Error)

	// The connection survives and processes the next, valid frame.
	require.NoError(t, sender.WriteJSON(&wire.Envelope{
		GigID:      gig1,
		SenderID:   userA,
		Text:       "recovered",
		MessageKey: "k2",
	}))
	ok := readFrame(t, sender)
	assert.Empty(t, ok.Error)
	assert.Equal(t, "recovered", ok.Text)
}

func TestHandlerRejectsSpoofedSender(t *testing.T) {
	g := newGateway(t)

	sender := g.dial(t, userA, gig1, userB)

	require.NoError(t, sender.WriteJSON(&wire.Envelope{
		GigID:    gig1,
		SenderID: userB, // not the connection's identity
		Text:     "spoof",
	}))
	f := readFrame(t, sender)
	assert.Contains(t, f.Error, "senderId")
}

func TestHandlerSupersedesDuplicateSession(t *testing.T) {
	g := newGateway(t)

	conn1 := g.dial(t, userA, gig1, userB)
	conn2 := g.dial(t, userA, gig1, userB)

	expectClose(t, conn1, ws.CloseDuplicateSession)

	// The surviving session still works.
	require.NoError(t, conn2.WriteJSON(&wire.Envelope{
		GigID:      gig1,
		SenderID:   userA,
		Text:       "still here",
		MessageKey: "k3",
	}))
	f := readFrame(t, conn2)
	assert.Empty(t, f.Error)
	assert.Equal(t, "still here", f.Text)
}

func TestHandlerNotificationConnection(t *testing.T) {
	g := newGateway(t)

	sender := g.dial(t, userA, gig1, userB)
	alerts := g.dial(t, userB, "", "")

	require.NoError(t, sender.WriteJSON(&wire.Envelope{
		GigID:       gig1,
		SenderID:    userA,
		RecipientID: userB,
		Text:        "ping",
		MessageKey:  "k4",
	}))

	f := readFrame(t, alerts)
	assert.Empty(t, f.Error)
	assert.Equal(t, "ping", f.Text)
	assert.Equal(t, gig1, f.GigID)
}
