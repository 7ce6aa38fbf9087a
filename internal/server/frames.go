package server

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	FrameAuth            = "auth"
	FrameJoinTrip        = "join_trip"
	FrameConnected       = "connected"
	FrameTypingIndicator = "typing_indicator"
	FrameChatMessage     = "chat_message"
	FrameMessageEdit     = "message_edit"
	FrameMessageDelete   = "message_delete"
	FrameMessageReaction = "message_reaction"
	FrameMessageRead     = "message_read"
	FrameNotification    = "notification"
	FrameError           = "error"
)

// ClientFrame is the envelope for every inbound websocket message. The
// payload stays raw until the frame type is known. Client supplied
// timestamps are parsed but never trusted, the server stamps all
// outbound frames itself.
type ClientFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ServerFrame is the envelope for every outbound websocket message.
type ServerFrame struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

func NewServerFrame(frameType string, payload any) *ServerFrame {
	return &ServerFrame{
		Type:      frameType,
		Payload:   payload,
		Timestamp: Now(),
	}
}

type AuthPayload struct {
	UserId int `json:"userId"`
}

type JoinTripPayload struct {
	TripId int `json:"tripId"`
}

type TypingIndicatorPayload struct {
	TripId   int  `json:"tripId"`
	UserId   int  `json:"userId"`
	IsTyping bool `json:"isTyping"`
}

type ChatMessagePayload struct {
	TripId          int    `json:"tripId"`
	UserId          int    `json:"userId"`
	Message         string `json:"message"`
	HasAttachment   bool   `json:"hasAttachment"`
	AttachmentUrl   string `json:"attachmentUrl,omitempty"`
	AttachmentName  string `json:"attachmentName,omitempty"`
	AttachmentSize  int64  `json:"attachmentSize,omitempty"`
	AttachmentType  string `json:"attachmentType,omitempty"`
	IsSystemMessage bool   `json:"isSystemMessage,omitempty"`
}

type MessageEditPayload struct {
	MessageId int    `json:"messageId"`
	UserId    int    `json:"userId"`
	TripId    int    `json:"tripId"`
	Message   string `json:"message"`
}

type MessageDeletePayload struct {
	MessageId int `json:"messageId"`
	UserId    int `json:"userId"`
	TripId    int `json:"tripId"`
}

type MessageReactionPayload struct {
	MessageId int    `json:"messageId"`
	UserId    int    `json:"userId"`
	TripId    int    `json:"tripId"`
	Reaction  string `json:"reaction"`
	Toggle    bool   `json:"toggle"`
}

type MessageReadPayload struct {
	MessageId int `json:"messageId"`
	UserId    int `json:"userId"`
	TripId    int `json:"tripId"`
}

type ConnectedPayload struct {
	Message string `json:"message"`
}

type MessageDeletedPayload struct {
	MessageId int `json:"messageId"`
	TripId    int `json:"tripId"`
	UserId    int `json:"userId"`
}

type MessageReactionsPayload struct {
	MessageId int              `json:"messageId"`
	TripId    int              `json:"tripId"`
	Reactions map[string][]int `json:"reactions"`
}

type MessageReadByPayload struct {
	MessageId int   `json:"messageId"`
	TripId    int   `json:"tripId"`
	ReadBy    []int `json:"readBy"`
}

type NotificationPayload struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TripId    int       `json:"tripId"`
	UserId    int       `json:"userId"`
	UserName  string    `json:"userName"`
	ItemName  string    `json:"itemName,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func ErrInvalidFrame() *ServerFrame {
	return NewServerFrame(FrameError, ErrorPayload{
		Code:  http.StatusBadRequest,
		Error: "invalid message format",
	})
}

// ErrOperationFailed is the single error frame for anything that goes
// wrong while handling a well formed frame. Permission violations are
// intentionally indistinguishable from backend failures on the wire,
// the server log carries the reason.
func ErrOperationFailed() *ServerFrame {
	return NewServerFrame(FrameError, ErrorPayload{
		Code:  http.StatusInternalServerError,
		Error: "internal server error",
	})
}

// Now returns the authoritative timestamp used on all outbound frames
// and persisted records.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
