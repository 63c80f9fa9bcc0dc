package ws

import (
	"log"

	"github.com/gorilla/websocket"

	"github.com/samikhan1239/Fiver/wire"
)

// Router fans a persisted record out to the live connections that should see
// it. Delivery is fire-and-forget: there is no redelivery queue, offline
// recipients catch up from history on their next connect.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route delivers rec to every matching live connection and returns how many
// received it. A connection matches when either:
//
//   - it is scoped to the record's gig and its user is the sender or the
//     recipient; a record with no recipient reaches either participant of
//     the conversation (the sender's own connections and those whose scope
//     counterpart is the sender), or
//   - it is notification-only and its user is the sender or the recipient.
//
// A write failure prunes that connection from the registry and never fails
// the route.
func (rt *Router) Route(rec *wire.Record) int {
	seen := make(map[*Handle]struct{})
	var targets []*Handle

	for _, h := range rt.registry.ConversationHandles(rec.GigID) {
		if rt.matchesConversation(h, rec) {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				targets = append(targets, h)
			}
		}
	}

	notifyIDs := []string{rec.Sender.ID}
	if rec.RecipientID != "" && rec.RecipientID != rec.Sender.ID {
		notifyIDs = append(notifyIDs, rec.RecipientID)
	}
	for _, uid := range notifyIDs {
		for _, h := range rt.registry.NotificationHandles(uid) {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				targets = append(targets, h)
			}
		}
	}

	delivered := 0
	for _, h := range targets {
		if err := h.Send(rec); err != nil {
			log.Printf("ws: route to %s: %v", h.UserID, err)
			rt.registry.Remove(h)
			h.conn.CloseWithCode(websocket.CloseInternalServerErr, "write failed")
			continue
		}
		delivered++
	}
	return delivered
}

func (rt *Router) matchesConversation(h *Handle, rec *wire.Record) bool {
	if h.Scope.GigID != rec.GigID {
		return false
	}
	if rec.RecipientID == "" {
		// Broadcast: either known participant of the sender's conversation.
		return h.UserID == rec.Sender.ID || h.Scope.CounterpartID == rec.Sender.ID
	}
	return h.UserID == rec.Sender.ID || h.UserID == rec.RecipientID
}
