package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewServerFrame(t *testing.T) {
	before := time.Now().UTC()
	frame := NewServerFrame(FrameConnected, ConnectedPayload{Message: "connected"})
	after := time.Now().UTC()

	assert.Equal(t, FrameConnected, frame.Type, "expected frame type to be set")
	assert.False(t, frame.Timestamp.Before(before.Round(time.Millisecond)), "expected timestamp not before creation")
	assert.False(t, frame.Timestamp.After(after.Add(time.Millisecond)), "expected timestamp not after creation")

	data, err := json.Marshal(frame)
	assert.NoError(t, err, "expected frame to marshal")

	var decoded map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(data, &decoded), "expected frame to decode")
	assert.Contains(t, decoded, "type", "expected type key")
	assert.Contains(t, decoded, "payload", "expected payload key")
	assert.Contains(t, decoded, "timestamp", "expected timestamp key")
}

func TestErrorFrames(t *testing.T) {
	invalid := ErrInvalidFrame()
	assert.Equal(t, FrameError, invalid.Type, "expected error frame type")
	assert.Equal(t, ErrorPayload{
		Code:  http.StatusBadRequest,
		Error: "invalid message format",
	}, invalid.Payload, "expected bad request payload")

	failed := ErrOperationFailed()
	assert.Equal(t, FrameError, failed.Type, "expected error frame type")
	assert.Equal(t, ErrorPayload{
		Code:  http.StatusInternalServerError,
		Error: "internal server error",
	}, failed.Payload, "expected internal server error payload")
}
