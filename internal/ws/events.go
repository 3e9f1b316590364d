package ws

import (
	"collab-docs-server/internal/session"
	"encoding/json"
)

// Event types exchanged over the live channel.
const (
	// inbound (client -> server)
	EventJoinDocument  = "join-document"
	EventLeaveDocument = "leave-document"
	EventDocumentEdit  = "document-edit"

	// outbound (server -> client)
	EventDocumentState   = "document-state"
	EventDocumentUpdated = "document-updated"
	EventPresenceUpdate  = "presence-update"
	EventError           = "error"
)

// Event is the wire envelope for both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type EditPayload struct {
	Content string `json:"content"`
}

type UpdatePayload struct {
	DocumentID uint64 `json:"document_id"`
	Content    string `json:"content"`
	Version    uint64 `json:"version"`
	EditedBy   uint64 `json:"edited_by"`
}

type PresencePayload struct {
	DocumentID    uint64                `json:"document_id"`
	Collaborators []session.Participant `json:"collaborators"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// encodeEvent marshals an outbound event; payload marshal failures are a
// programming error and yield a nil slice the senders skip.
func encodeEvent(eventType string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	data, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		return nil
	}
	return data
}
