// Package wire defines the WebSocket wire protocol (§6): a binary-framed
// envelope carrying a message id, a timestamp, and a typed payload.
package wire

import (
	"encoding/json"
	"time"
)

// MessageType discriminates the envelope payload. The set mirrors the
// original protobuf oneof: every request and every event the dispatcher
// and broadcaster produce.
type MessageType string

const (
	TypeSubscribe   MessageType = "Subscribe"
	TypeUnsubscribe MessageType = "Unsubscribe"

	TypeCreateWorkItem MessageType = "CreateWorkItem"
	TypeUpdateWorkItem MessageType = "UpdateWorkItem"
	TypeGetWorkItems   MessageType = "GetWorkItems"

	TypeCreateSprint MessageType = "CreateSprint"
	TypeUpdateSprint MessageType = "UpdateSprint"

	TypeCreateComment MessageType = "CreateComment"

	TypeCreateDependency MessageType = "CreateDependency"

	TypeCreateTimeEntry MessageType = "CreateTimeEntry"

	TypeWorkItemCreated     MessageType = "WorkItemCreated"
	TypeWorkItemUpdated     MessageType = "WorkItemUpdated"
	TypeSprintCreated       MessageType = "SprintCreated"
	TypeSprintUpdated       MessageType = "SprintUpdated"
	TypeCommentCreated      MessageType = "CommentCreated"
	TypeActivityLogCreated  MessageType = "ActivityLogCreated"

	TypeError MessageType = "Error"
	TypeAck   MessageType = "Ack"
)

// Envelope is the top-level frame sent and received over the socket. It
// is marshaled to JSON and that JSON is carried inside a binary
// WebSocket frame — see SPEC_FULL.md §6 for the rationale.
type Envelope struct {
	MessageID string          `json:"message_id"`
	Timestamp int64           `json:"timestamp"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(messageID string, msgType MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		MessageID: messageID,
		Timestamp: time.Now().Unix(),
		Type:      msgType,
		Payload:   raw,
	}, nil
}

// MarshalFrame encodes the envelope as the JSON body carried inside a
// binary WebSocket frame.
func (e Envelope) MarshalFrame() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalFrame decodes a binary WebSocket frame body into an
// envelope.
func UnmarshalFrame(frame []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(frame, &env)
	return env, err
}

// EmptyEnvelope builds a payload-less acknowledgment envelope bearing
// the same message_id as the request it answers (used by Subscribe and
// Unsubscribe acks per §6).
func EmptyEnvelope(messageID string, msgType MessageType) Envelope {
	return Envelope{MessageID: messageID, Timestamp: time.Now().Unix(), Type: msgType}
}

// ErrorPayload is the body of a Type=Error envelope.
type ErrorPayload struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Field   *string `json:"field,omitempty"`
}

// SubscribePayload / UnsubscribePayload carry interest declarations.
type SubscribePayload struct {
	ProjectIDs []string `json:"project_ids"`
	SprintIDs  []string `json:"sprint_ids"`
}

type UnsubscribePayload struct {
	ProjectIDs []string `json:"project_ids"`
	SprintIDs  []string `json:"sprint_ids"`
}
