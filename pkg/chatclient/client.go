// Package chatclient maintains one logical chat connection to the Fiver
// gateway across drops, and reconciles optimistic local sends with the
// server-confirmed records.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/samikhan1239/Fiver/wire"
)

// ConnState is the connection state machine: Disconnected -> Connecting ->
// Open, back to Disconnected on any close or error, retrying on a fixed
// backoff until Close.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
)

// MessageState is the sender-side lifecycle of a visible message. A retracted
// message is removed from view, so only these two states are observable.
type MessageState int

const (
	// Optimistic: materialized locally on submit, not yet server-confirmed.
	Optimistic MessageState = iota
	// Confirmed: backed by a persisted record from the server.
	Confirmed
)

// Message is one entry of the client's visible conversation.
type Message struct {
	LocalID string
	State   MessageState
	Record  wire.Record
}

// Config configures a conversation-bound client.
type Config struct {
	ServerURL     string // gateway base URL, e.g. "http://localhost:8000"
	Token         string // bearer token for SelfID
	SelfID        string
	GigID         string
	CounterpartID string

	RetryInterval  time.Duration // reconnect backoff, default 3s
	HistoryTimeout time.Duration // bound on the history fetch, default 10s

	OnChange func()      // visible state changed
	OnError  func(error) // recoverable failures (send rejected, history fetch)
}

// Client is the reconnection and reconciliation agent. All exported methods
// are safe for concurrent use.
type Client struct {
	cfg     Config
	httpc   *http.Client
	session string // per-client prefix for idempotency keys

	mu         sync.Mutex
	writeMu    sync.Mutex // serializes socket writes across Send calls
	state      ConnState
	conn       *websocket.Conn
	closed     bool
	retryTimer *time.Timer
	seq        uint64
	messages   []*Message
	byKey      map[string]*Message
}

// New validates the configuration and returns a stopped client; call Start
// to begin connecting.
func New(cfg Config) (*Client, error) {
	if !wire.IsHexID(cfg.SelfID) || !wire.IsHexID(cfg.GigID) || !wire.IsHexID(cfg.CounterpartID) {
		return nil, errors.New("chatclient: selfID, gigID and counterpartID must be 24-char hex ids")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("chatclient: server URL is required")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 3 * time.Second
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{},
		session: uuid.NewString(),
		byKey:   make(map[string]*Message),
	}, nil
}

// Start begins the connect loop.
func (c *Client) Start() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.signal()
	go c.connect()
}

// Close tears the client down: the live socket is closed and the pending
// retry timer is cancelled, so no further sockets are opened.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a snapshot of the visible conversation in display order.
func (c *Client) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]Message, len(c.messages))
	for i, m := range c.messages {
		res[i] = *m
	}
	return res
}

// Send materializes an optimistic placeholder, ships the envelope, and
// returns the placeholder's local id (also its idempotency key). The key is
// an opaque monotonic token, so a retry after an error can never duplicate
// the message server-side. If the write fails the placeholder is retracted
// and the error returned.
func (c *Client) Send(text string) (string, error) {
	if text == "" {
		return "", errors.New("chatclient: empty message text")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", errors.New("chatclient: closed")
	}
	key := fmt.Sprintf("%s-%08d", c.session, c.seq)
	c.seq++

	recipient := c.cfg.CounterpartID
	if recipient == c.cfg.SelfID {
		recipient = "" // talking on own gig: broadcast to whoever answers
	}
	env := wire.Envelope{
		GigID:       c.cfg.GigID,
		SenderID:    c.cfg.SelfID,
		RecipientID: recipient,
		Text:        text,
		Timestamp:   time.Now().UnixMilli(),
		MessageKey:  key,
	}

	placeholder := &Message{
		LocalID: key,
		State:   Optimistic,
		Record: wire.Record{
			MessageKey:  key,
			GigID:       env.GigID,
			Sender:      wire.Sender{ID: env.SenderID},
			RecipientID: env.RecipientID,
			Text:        text,
			SentAt:      env.Timestamp,
		},
	}
	c.messages = append(c.messages, placeholder)
	c.byKey[key] = placeholder

	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	c.signal()

	if !open || conn == nil {
		c.retract(key)
		return "", errors.New("chatclient: not connected")
	}
	c.writeMu.Lock()
	err := conn.WriteJSON(&env)
	c.writeMu.Unlock()
	if err != nil {
		c.retract(key)
		return "", fmt.Errorf("chatclient: send: %w", err)
	}
	return key, nil
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.signal()

	wsURL, err := c.gatewayURL()
	if err != nil {
		c.disconnected(err)
		return
	}
	header := http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.disconnected(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()
	c.signal()

	go c.fetchHistory()
	c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		// A frame is either a persisted record or {error}; decode both.
		var frame struct {
			wire.Record
			Error string `json:"error"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			conn.Close()
			c.disconnected(err)
			return
		}
		if frame.Error != "" {
			// Per-connection FIFO means failures arrive in send order: the
			// oldest optimistic placeholder is the one that failed.
			c.retractOldestOptimistic()
			c.report(errors.New(frame.Error))
			continue
		}
		c.ingest(frame.Record)
	}
}

// ingest reconciles a server-confirmed record with local state. Dedup order:
// first by idempotency key, then by (sender, sentAt) — this keeps a live
// push and a racing history fetch from double-rendering the same message.
func (c *Client) ingest(rec wire.Record) {
	c.mu.Lock()
	if m, ok := c.byKey[rec.MessageKey]; ok {
		changed := m.State == Optimistic || m.Record.Read != rec.Read
		m.Record = rec
		m.State = Confirmed
		c.mu.Unlock()
		if changed {
			c.signal()
		}
		return
	}
	for _, m := range c.messages {
		if m.Record.Sender.ID == rec.Sender.ID && m.Record.SentAt == rec.SentAt {
			delete(c.byKey, m.Record.MessageKey)
			m.Record = rec
			m.State = Confirmed
			c.byKey[rec.MessageKey] = m
			c.mu.Unlock()
			c.signal()
			return
		}
	}
	m := &Message{LocalID: rec.MessageKey, State: Confirmed, Record: rec}
	c.messages = append(c.messages, m)
	c.byKey[rec.MessageKey] = m
	c.mu.Unlock()
	c.signal()
}

// fetchHistory loads the persisted conversation, bounded by HistoryTimeout,
// and merges it through the same dedup path as live records.
func (c *Client) fetchHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HistoryTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/api/messages?gigId=%s&sellerId=%s",
		c.cfg.ServerURL, url.QueryEscape(c.cfg.GigID), url.QueryEscape(c.cfg.CounterpartID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.report(fmt.Errorf("history fetch: %w", err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.report(fmt.Errorf("history fetch: %w", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.report(fmt.Errorf("history fetch: unexpected status %d", resp.StatusCode))
		return
	}

	var records []wire.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		c.report(fmt.Errorf("history fetch: %w", err))
		return
	}
	for _, rec := range records {
		c.ingest(rec)
	}
}

func (c *Client) disconnected(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	// Single owned timer; Close cancels it so no socket leaks past teardown.
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(c.cfg.RetryInterval, c.connect)
	c.mu.Unlock()

	c.report(cause)
	c.signal()
}

func (c *Client) retract(key string) {
	c.mu.Lock()
	m, ok := c.byKey[key]
	if ok {
		delete(c.byKey, key)
		c.removeLocked(m)
	}
	c.mu.Unlock()
	if ok {
		c.signal()
	}
}

func (c *Client) retractOldestOptimistic() {
	c.mu.Lock()
	var victim *Message
	for _, m := range c.messages {
		if m.State == Optimistic {
			victim = m
			break
		}
	}
	if victim != nil {
		delete(c.byKey, victim.Record.MessageKey)
		c.removeLocked(victim)
	}
	c.mu.Unlock()
	if victim != nil {
		c.signal()
	}
}

func (c *Client) removeLocked(victim *Message) {
	for i, m := range c.messages {
		if m == victim {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

func (c *Client) gatewayURL() (string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("chatclient: server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("userId", c.cfg.SelfID)
	q.Set("gigId", c.cfg.GigID)
	q.Set("sellerId", c.cfg.CounterpartID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) signal() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}

func (c *Client) report(err error) {
	if c.cfg.OnError != nil && err != nil {
		c.cfg.OnError(err)
	}
}
