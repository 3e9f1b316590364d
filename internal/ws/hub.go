package ws

import (
	"collab-docs-server/internal/errors"
	"collab-docs-server/internal/middleware"
	"collab-docs-server/internal/session"
	"collab-docs-server/internal/utils"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub fans live-editing events out to the websocket connections joined to
// each document. Authoritative state lives in the session manager; the hub
// only moves messages.
type Hub struct {
	sessions *session.Manager

	mu    sync.RWMutex
	rooms map[uint64]map[*Client]bool

	upgrader websocket.Upgrader
}

func NewHub(sessions *session.Manager) *Hub {
	return &Hub{
		sessions: sessions,
		rooms:    make(map[uint64]map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the platform frontend may be on another origin; auth is
			// carried by the JWT, not the origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades GET /documents/:id/ws. The session join (with its
// not-found/permission checks) runs before the upgrade so failures surface
// as proper HTTP status codes.
func (h *Hub) Serve(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	ident := middleware.IdentityFrom(c)

	state, err := h.sessions.Join(c.Request.Context(), docID, ident)
	if err != nil {
		c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.leaveAndNotify(docID, nil, ident.UserID)
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:    uuid.NewString(),
		DocID: docID,
		Ident: ident,
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		done:  make(chan struct{}),
	}

	h.addClient(client)
	go client.writePump()

	// the joiner gets the full authoritative state, everyone else a
	// presence update
	client.trySend(encodeEvent(EventDocumentState, state))
	h.broadcast(docID, client, encodeEvent(EventPresenceUpdate, PresencePayload{
		DocumentID:    docID,
		Collaborators: state.Collaborators,
	}))

	client.readPump()
	h.removeClient(client)
}

// handleEvent dispatches one inbound event; returns true when the client
// asked to leave.
func (h *Hub) handleEvent(c *Client, event Event) bool {
	switch event.Type {
	case EventDocumentEdit:
		var payload EditPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			c.trySend(encodeEvent(EventError, ErrorPayload{Message: "malformed edit payload"}))
			return false
		}

		state, err := h.sessions.SubmitEdit(c.DocID, c.Ident.UserID, payload.Content)
		if err != nil {
			// inline error to the sender only; their local content is kept
			c.trySend(encodeEvent(EventError, ErrorPayload{Message: err.Error()}))
			return false
		}

		// no echo back to the sender
		h.broadcast(c.DocID, c, encodeEvent(EventDocumentUpdated, UpdatePayload{
			DocumentID: c.DocID,
			Content:    state.Content,
			Version:    state.Version,
			EditedBy:   c.Ident.UserID,
		}))
		return false

	case EventJoinDocument:
		// re-sync request from an already connected client
		state, err := h.sessions.Join(context.Background(), c.DocID, c.Ident)
		if err != nil {
			c.trySend(encodeEvent(EventError, ErrorPayload{Message: err.Error()}))
			return false
		}
		c.trySend(encodeEvent(EventDocumentState, state))
		return false

	case EventLeaveDocument:
		return true

	default:
		c.trySend(encodeEvent(EventError, ErrorPayload{Message: "unknown event type"}))
		return false
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[c.DocID] == nil {
		h.rooms[c.DocID] = make(map[*Client]bool)
	}
	h.rooms[c.DocID][c] = true
}

// removeClient detaches the connection and, when it was the user's last one
// for this document, leaves the session and notifies the rest.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	room := h.rooms[c.DocID]
	if room == nil || !room[c] {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	c.shutdown()
	if len(room) == 0 {
		delete(h.rooms, c.DocID)
	}

	userStillConnected := false
	for other := range room {
		if other.Ident.UserID == c.Ident.UserID {
			userStillConnected = true
			break
		}
	}
	h.mu.Unlock()

	if !userStillConnected {
		h.leaveAndNotify(c.DocID, c, c.Ident.UserID)
	}
}

func (h *Hub) leaveAndNotify(docID uint64, except *Client, userID uint64) {
	remaining := h.sessions.Leave(docID, userID)
	if len(remaining) == 0 {
		return
	}
	h.broadcast(docID, except, encodeEvent(EventPresenceUpdate, PresencePayload{
		DocumentID:    docID,
		Collaborators: remaining,
	}))
}

// broadcast sends to every connection in the document's room except one.
// Best effort only: unreachable or slow clients miss the message.
func (h *Hub) broadcast(docID uint64, except *Client, data []byte) {
	if data == nil {
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
}
