package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samikhan1239/Fiver/internal/service"
	"github.com/samikhan1239/Fiver/internal/ws"
	"github.com/samikhan1239/Fiver/wire"
)

// handleHistory serves GET /api/messages?gigId=...&sellerId=... — the full
// conversation between the caller and the counterpart for one gig, oldest
// first. Restartable: the client agent re-reads it on every reconnect.
func handleHistory(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		gigID := r.URL.Query().Get("gigId")
		sellerID := r.URL.Query().Get("sellerId")
		if !wire.IsHexID(gigID) || !wire.IsHexID(sellerID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid gigId or sellerId"})
			return
		}

		records, err := msgSvc.History(r.Context(), gigID, currentUser.ID, sellerID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load messages"})
			return
		}
		if records == nil {
			records = []*wire.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// handleCreateMessage serves POST /api/messages. The body is the same
// envelope the gateway accepts. A duplicate idempotency key returns the
// original record with 200 instead of an error, so client retries are safe;
// a newly created record is fanned out to live connections like a gateway
// send.
func handleCreateMessage(msgSvc *service.MessageService, router *ws.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var env wire.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := env.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if env.SenderID != currentUser.ID {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "senderId does not match token"})
			return
		}

		rec, created, err := msgSvc.Append(r.Context(), &env)
		if err != nil {
			if errors.Is(err, service.ErrPersistence) {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save message"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if !created {
			writeJSON(w, http.StatusOK, rec)
			return
		}
		router.Route(rec)
		writeJSON(w, http.StatusCreated, rec)
	}
}

type markReadRequest struct {
	GigID string `json:"gigId"`
}

// handleMarkRead serves POST /api/messages/mark-read: flips the caller's
// unread messages in the gig to read and reports how many transitioned.
func handleMarkRead(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req markReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if !wire.IsHexID(req.GigID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid gigId"})
			return
		}

		n, err := msgSvc.MarkRead(r.Context(), req.GigID, currentUser.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to mark messages as read"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"modifiedCount": n})
	}
}

func handleUnreadCount(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		count, err := msgSvc.UnreadCount(r.Context(), currentUser.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to count unread messages"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
	}
}

func handleConversations(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		sums, err := msgSvc.Conversations(r.Context(), currentUser.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load conversations"})
			return
		}
		if sums == nil {
			sums = []*service.ConversationSummary{}
		}
		writeJSON(w, http.StatusOK, sums)
	}
}
