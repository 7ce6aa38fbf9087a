package server

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tripmates/tripchat/internal/database"
	"github.com/tripmates/tripchat/internal/stats"
	"github.com/tripmates/tripchat/internal/testutil"
	"github.com/tripmates/tripchat/internal/types"
)

func makeFrame(t *testing.T, frameType string, payload any) []byte {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}

	raw, err := json.Marshal(ClientFrame{
		Type:    frameType,
		Payload: data,
	})
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}

	return raw
}

func recvFrame(t *testing.T, c *Client) ServerFrame {
	t.Helper()

	select {
	case data := <-c.send:
		var frame ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("failed to decode frame: %v", err)
		}
		return frame
	default:
		t.Fatal("expected a queued frame")
		return ServerFrame{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()

	select {
	case data := <-c.send:
		t.Fatalf("expected no queued frame, got %s", data)
	default:
	}
}

// joinTestClient admits a client bound to a trip without going through
// RegisterClient, so no welcome frame or connection gauge is involved.
func joinTestClient(t *testing.T, cs *ChatServer, id string, userId, tripId int) *Client {
	t.Helper()

	c := NewClient(id, types.User{Id: userId}, nil, cs, testutil.TestLogger(t))
	cs.registry.Admit(c)
	if tripId != 0 {
		cs.registry.BindTrip(c, tripId)
	}
	return c
}

func TestHandleFrameUnparseable(t *testing.T) {
	cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
	c := joinTestClient(t, cs, "c1", 1, 0)

	cs.handleFrame(c, []byte("{not json"))

	frame := recvFrame(t, c)
	assert.Equal(t, FrameError, frame.Type, "expected error frame for unparseable input")
}

func TestHandleFrameUnknownType(t *testing.T) {
	cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
	c := joinTestClient(t, cs, "c1", 1, 0)

	cs.handleFrame(c, makeFrame(t, "bogus_frame", struct{}{}))

	assertNoFrame(t, c)
}

func TestHandleConnected(t *testing.T) {
	cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
	c := joinTestClient(t, cs, "c1", 1, 0)

	cs.handleFrame(c, makeFrame(t, FrameConnected, ConnectedPayload{Message: "ping"}))

	frame := recvFrame(t, c)
	assert.Equal(t, FrameConnected, frame.Type, "expected pong frame")
}

func TestHandleJoinTrip(t *testing.T) {
	cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
	c := joinTestClient(t, cs, "c1", 1, 0)

	cs.handleFrame(c, makeFrame(t, FrameJoinTrip, JoinTripPayload{TripId: 10}))

	var visited int
	cs.registry.ForEachInTrip(10, func(*Client) { visited++ })
	assert.Equal(t, 1, visited, "expected client bound to trip 10")

	t.Run("zero trip id ignored", func(t *testing.T) {
		cs.handleFrame(c, makeFrame(t, FrameJoinTrip, JoinTripPayload{}))
		assertNoFrame(t, c)
	})
}

func TestHandleTypingIndicator(t *testing.T) {
	cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
	sender := joinTestClient(t, cs, "c1", 1, 10)
	peer := joinTestClient(t, cs, "c2", 2, 10)

	cs.handleFrame(sender, makeFrame(t, FrameTypingIndicator, TypingIndicatorPayload{
		TripId: 10, UserId: 1, IsTyping: true,
	}))

	frame := recvFrame(t, peer)
	assert.Equal(t, FrameTypingIndicator, frame.Type, "expected typing indicator broadcast")

	// The sender is a trip member too and receives its own indicator.
	frame = recvFrame(t, sender)
	assert.Equal(t, FrameTypingIndicator, frame.Type, "expected typing indicator echoed to sender")
}

func TestHandleChatMessage(t *testing.T) {
	t.Run("persists and broadcasts to trip members only", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)

		stored := database.ChatMessage{
			Id:      7,
			TripId:  10,
			UserId:  1,
			Message: "hello",
			SentAt:  Now(),
			ReadBy:  []int{1},
		}

		db.On("CreateChatMessage", mock.MatchedBy(func(p database.CreateChatMessageParams) bool {
			return p.TripId == 10 && p.UserId == 1 && p.Message == "hello" &&
				len(p.ReadBy) == 1 && p.ReadBy[0] == 1
		})).Return(stored, nil).Once()
		db.On("GetUser", 1).Return(database.User{Id: 1, Username: "ann"}, nil).Once()
		db.On("CreateActivity", mock.Anything).Return(database.Activity{}, nil).Once()

		notified := make(chan struct{})
		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumMessagesSent").Once()
		su.On("Incr", "NumNotificationsSent").Once().Run(func(mock.Arguments) {
			close(notified)
		})
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		sender := joinTestClient(t, cs, "c1", 1, 10)
		peer := joinTestClient(t, cs, "c2", 2, 10)
		outsider := joinTestClient(t, cs, "c3", 3, 20)

		cs.handleFrame(sender, makeFrame(t, FrameChatMessage, ChatMessagePayload{
			TripId: 10, UserId: 1, Message: "hello",
		}))

		frame := recvFrame(t, peer)
		assert.Equal(t, FrameChatMessage, frame.Type, "expected chat message broadcast")

		// The notification is emitted asynchronously.
		select {
		case <-notified:
		case <-time.After(time.Second):
			t.Fatal("expected a notification to be sent")
		}

		frame = recvFrame(t, peer)
		assert.Equal(t, FrameNotification, frame.Type, "expected a notification frame for trip members")

		assertNoFrame(t, outsider)
	})

	t.Run("system message skips notification", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)

		stored := database.ChatMessage{Id: 8, TripId: 10, UserId: 1, Message: "joined"}
		db.On("CreateChatMessage", mock.Anything).Return(stored, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumMessagesSent").Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		sender := joinTestClient(t, cs, "c1", 1, 10)

		cs.handleFrame(sender, makeFrame(t, FrameChatMessage, ChatMessagePayload{
			TripId: 10, UserId: 1, Message: "joined", IsSystemMessage: true,
		}))

		frame := recvFrame(t, sender)
		assert.Equal(t, FrameChatMessage, frame.Type, "expected chat message broadcast")
		assertNoFrame(t, sender)
	})

	t.Run("missing ids are dropped", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c1", 1, 10)

		cs.handleFrame(c, makeFrame(t, FrameChatMessage, ChatMessagePayload{Message: "hello"}))
		assertNoFrame(t, c)
	})

	t.Run("store failure sends error frame to origin only", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateChatMessage", mock.Anything).
			Return(database.ChatMessage{}, errors.New("db down")).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		sender := joinTestClient(t, cs, "c1", 1, 10)
		peer := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(sender, makeFrame(t, FrameChatMessage, ChatMessagePayload{
			TripId: 10, UserId: 1, Message: "hello",
		}))

		frame := recvFrame(t, sender)
		assert.Equal(t, FrameError, frame.Type, "expected error frame to sender")
		assertNoFrame(t, peer)
	})
}

func TestHandleMessageEdit(t *testing.T) {
	t.Run("owner edits and trip receives updated message", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)

		existing := database.ChatMessage{Id: 7, TripId: 10, UserId: 1, Message: "hello"}
		updated := existing
		updated.Message = "hello again"
		updated.IsEdited = true

		db.On("GetChatMessage", 7).Return(existing, nil).Once()
		db.On("UpdateChatMessage", 7, mock.MatchedBy(func(p database.UpdateChatMessageParams) bool {
			return p.Message != nil && *p.Message == "hello again" &&
				p.IsEdited != nil && *p.IsEdited && p.EditedAt != nil
		})).Return(updated, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		sender := joinTestClient(t, cs, "c1", 1, 10)

		cs.handleFrame(sender, makeFrame(t, FrameMessageEdit, MessageEditPayload{
			MessageId: 7, UserId: 1, TripId: 10, Message: "hello again",
		}))

		frame := recvFrame(t, sender)
		assert.Equal(t, FrameMessageEdit, frame.Type, "expected edit broadcast")
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetChatMessage", 7).
			Return(database.ChatMessage{Id: 7, TripId: 10, UserId: 1}, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageEdit, MessageEditPayload{
			MessageId: 7, UserId: 2, TripId: 10, Message: "hijack",
		}))

		frame := recvFrame(t, c)
		assert.Equal(t, FrameError, frame.Type, "expected error frame for non-owner edit")
	})

	t.Run("deleted message is rejected", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetChatMessage", 7).
			Return(database.ChatMessage{Id: 7, TripId: 10, UserId: 1, IsDeleted: true}, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c1", 1, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageEdit, MessageEditPayload{
			MessageId: 7, UserId: 1, TripId: 10, Message: "too late",
		}))

		frame := recvFrame(t, c)
		assert.Equal(t, FrameError, frame.Type, "expected error frame for edit of deleted message")
	})
}

func TestHandleMessageDelete(t *testing.T) {
	t.Run("owner deletes and broadcast carries identifiers only", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)

		existing := database.ChatMessage{Id: 7, TripId: 10, UserId: 1, Message: "hello"}
		deleted := existing
		deleted.IsDeleted = true

		db.On("GetChatMessage", 7).Return(existing, nil).Once()
		db.On("UpdateChatMessage", 7, mock.MatchedBy(func(p database.UpdateChatMessageParams) bool {
			return p.IsDeleted != nil && *p.IsDeleted && p.Message == nil
		})).Return(deleted, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		sender := joinTestClient(t, cs, "c1", 1, 10)

		cs.handleFrame(sender, makeFrame(t, FrameMessageDelete, MessageDeletePayload{
			MessageId: 7, UserId: 1, TripId: 10,
		}))

		frame := recvFrame(t, sender)
		assert.Equal(t, FrameMessageDelete, frame.Type, "expected delete broadcast")

		data, err := json.Marshal(frame.Payload)
		assert.NoError(t, err, "expected payload to re-marshal")

		var p MessageDeletedPayload
		assert.NoError(t, json.Unmarshal(data, &p), "expected deleted payload to decode")
		assert.Equal(t, 7, p.MessageId, "expected message id in payload")
		assert.NotContains(t, string(data), "hello", "expected no message body in delete broadcast")
	})

	t.Run("already deleted is a silent no-op", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetChatMessage", 7).
			Return(database.ChatMessage{Id: 7, TripId: 10, UserId: 1, IsDeleted: true}, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c1", 1, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageDelete, MessageDeletePayload{
			MessageId: 7, UserId: 1, TripId: 10,
		}))

		assertNoFrame(t, c)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetChatMessage", 7).
			Return(database.ChatMessage{Id: 7, TripId: 10, UserId: 1}, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageDelete, MessageDeletePayload{
			MessageId: 7, UserId: 2, TripId: 10,
		}))

		frame := recvFrame(t, c)
		assert.Equal(t, FrameError, frame.Type, "expected error frame for non-owner delete")
	})
}

func TestHandleMessageReaction(t *testing.T) {
	t.Run("toggle adds then removes a reaction", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)

		noReactions := database.ChatMessage{Id: 7, TripId: 10, UserId: 1, Reactions: map[string][]int{}}
		withReaction := database.ChatMessage{Id: 7, TripId: 10, UserId: 1, Reactions: map[string][]int{"👍": {2}}}

		db.On("GetChatMessage", 7).Return(noReactions, nil).Once()
		db.On("UpdateChatMessage", 7, mock.MatchedBy(func(p database.UpdateChatMessageParams) bool {
			users, ok := p.Reactions["👍"]
			return ok && len(users) == 1 && users[0] == 2
		})).Return(withReaction, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageReaction, MessageReactionPayload{
			MessageId: 7, UserId: 2, TripId: 10, Reaction: "👍", Toggle: true,
		}))

		frame := recvFrame(t, c)
		assert.Equal(t, FrameMessageReaction, frame.Type, "expected reaction broadcast")

		// Second toggle removes the reaction and drops the empty key.
		db.On("GetChatMessage", 7).Return(withReaction, nil).Once()
		db.On("UpdateChatMessage", 7, mock.MatchedBy(func(p database.UpdateChatMessageParams) bool {
			_, ok := p.Reactions["👍"]
			return p.Reactions != nil && !ok
		})).Return(noReactions, nil).Once()

		cs.handleFrame(c, makeFrame(t, FrameMessageReaction, MessageReactionPayload{
			MessageId: 7, UserId: 2, TripId: 10, Reaction: "👍", Toggle: true,
		}))

		frame = recvFrame(t, c)
		assert.Equal(t, FrameMessageReaction, frame.Type, "expected reaction broadcast after removal")
	})

	t.Run("non-toggle repeat does not duplicate", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)

		withReaction := database.ChatMessage{Id: 7, TripId: 10, UserId: 1, Reactions: map[string][]int{"👍": {2}}}

		db.On("GetChatMessage", 7).Return(withReaction, nil).Once()
		db.On("UpdateChatMessage", 7, mock.MatchedBy(func(p database.UpdateChatMessageParams) bool {
			return len(p.Reactions["👍"]) == 1
		})).Return(withReaction, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageReaction, MessageReactionPayload{
			MessageId: 7, UserId: 2, TripId: 10, Reaction: "👍",
		}))

		frame := recvFrame(t, c)
		assert.Equal(t, FrameMessageReaction, frame.Type, "expected reaction broadcast")
	})

	t.Run("deleted message ignored", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetChatMessage", 7).
			Return(database.ChatMessage{Id: 7, TripId: 10, IsDeleted: true}, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageReaction, MessageReactionPayload{
			MessageId: 7, UserId: 2, TripId: 10, Reaction: "👍", Toggle: true,
		}))

		assertNoFrame(t, c)
	})

	t.Run("empty reaction ignored", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageReaction, MessageReactionPayload{
			MessageId: 7, UserId: 2, TripId: 10,
		}))

		assertNoFrame(t, c)
	})
}

func TestHandleMessageRead(t *testing.T) {
	t.Run("new reader is appended and broadcast", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)

		msg := database.ChatMessage{Id: 7, TripId: 10, UserId: 1, ReadBy: []int{1}}
		updated := msg
		updated.ReadBy = []int{1, 2}

		db.On("GetChatMessage", 7).Return(msg, nil).Once()
		db.On("UpdateChatMessage", 7, mock.MatchedBy(func(p database.UpdateChatMessageParams) bool {
			return len(p.ReadBy) == 2 && p.ReadBy[0] == 1 && p.ReadBy[1] == 2
		})).Return(updated, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageRead, MessageReadPayload{
			MessageId: 7, UserId: 2, TripId: 10,
		}))

		frame := recvFrame(t, c)
		assert.Equal(t, FrameMessageRead, frame.Type, "expected read receipt broadcast")
	})

	t.Run("duplicate read is a no-op without broadcast", func(t *testing.T) {
		db := &database.MockTripChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetChatMessage", 7).
			Return(database.ChatMessage{Id: 7, TripId: 10, UserId: 1, ReadBy: []int{1, 2}}, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c2", 2, 10)

		cs.handleFrame(c, makeFrame(t, FrameMessageRead, MessageReadPayload{
			MessageId: 7, UserId: 2, TripId: 10,
		}))

		assertNoFrame(t, c)
	})
}

func TestHandleAuth(t *testing.T) {
	t.Run("binds user to connection", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c1", 0, 0)

		cs.handleFrame(c, makeFrame(t, FrameAuth, AuthPayload{UserId: 5}))

		reg := cs.registry.(*connRegistry)
		reg.mu.RLock()
		state := reg.conns[c]
		reg.mu.RUnlock()
		assert.Equal(t, 5, state.userId, "expected user id bound to connection")
	})

	t.Run("mismatched session user is rejected", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c1", 1, 0)

		cs.handleFrame(c, makeFrame(t, FrameAuth, AuthPayload{UserId: 9}))

		frame := recvFrame(t, c)
		assert.Equal(t, FrameError, frame.Type, "expected error frame for user mismatch")
	})

	t.Run("zero user id ignored", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
		c := joinTestClient(t, cs, "c1", 1, 0)

		cs.handleFrame(c, makeFrame(t, FrameAuth, AuthPayload{}))
		assertNoFrame(t, c)
	})
}
