package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samikhan1239/Fiver/internal/security"
	"github.com/samikhan1239/Fiver/internal/service"
	"github.com/samikhan1239/Fiver/wire"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			// Not a browser (Go client agent, curl); the bearer token is the gate.
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	return "", fmt.Errorf("missing bearer token")
}

// MakeHandler returns the HTTP handler for the /ws endpoint.
//
// A connection is scoped by query parameters: userId (required, must match
// the token subject), plus gigId and sellerId together to bind it to one
// conversation. Without the pair the connection is notification-only and
// receives cross-conversation alerts for its user.
//
// Each connection gets its own goroutine and processes frames in FIFO order:
// a frame is validated, persisted and routed before the next read, so one
// sender's messages on one connection arrive in send order.
func MakeHandler(
	registry *Registry,
	router *Router,
	msgSvc *service.MessageService,
	tokens *security.TokenService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		sub, err := tokens.Subject(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		q := r.URL.Query()
		userID := q.Get("userId")
		gigID := q.Get("gigId")
		sellerID := q.Get("sellerId")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		wc := newWSConn(conn)

		// Identifier problems at connect time are fatal to the connection; no
		// frames are processed on it.
		if !wire.IsHexID(userID) || userID != sub {
			_ = wc.Send(wire.ErrorFrame{Error: "missing or invalid userId"})
			wc.CloseWithCode(CloseInvalidIdentity, "missing or invalid userId")
			return
		}
		scope := Scope{}
		if gigID != "" || sellerID != "" {
			if !wire.IsHexID(gigID) || !wire.IsHexID(sellerID) {
				_ = wc.Send(wire.ErrorFrame{Error: "invalid gigId or sellerId"})
				wc.CloseWithCode(CloseInvalidIdentity, "invalid gigId or sellerId")
				return
			}
			scope = Scope{GigID: gigID, CounterpartID: sellerID}
		}

		h := registry.Admit(userID, scope, wc)
		defer registry.Remove(h)

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		stopPing := make(chan struct{})
		defer close(stopPing)
		go func() {
			ticker := time.NewTicker(pingPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := wc.writeControl(websocket.PingMessage, nil, time.Now().Add(closeWriteWait)); err != nil {
						return
					}
				case <-stopPing:
					return
				}
			}
		}()

		// A close that races an accepted append must not cancel the write.
		ctx := context.WithoutCancel(r.Context())

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}

			env, err := wire.Decode(raw)
			if err != nil {
				// Malformed frame: recoverable, connection stays open.
				_ = wc.Send(wire.ErrorFrame{Error: err.Error()})
				continue
			}
			if env.SenderID != userID {
				_ = wc.Send(wire.ErrorFrame{Error: "senderId does not match connection identity"})
				continue
			}

			rec, created, err := msgSvc.Append(ctx, env)
			if err != nil {
				log.Printf("ws: append from %s: %v", userID, err)
				_ = wc.Send(wire.ErrorFrame{Error: "failed to save message"})
				continue
			}
			if !created {
				// Duplicate submission: confirm with the original record,
				// never broadcast twice.
				_ = wc.Send(rec)
				continue
			}
			router.Route(rec)
		}
	}
}
