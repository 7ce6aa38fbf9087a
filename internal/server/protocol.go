package server

import (
	"encoding/json"
	"slices"

	"github.com/tripmates/tripchat/internal/database"
	"github.com/tripmates/tripchat/internal/types"
)

const ActivityChatMessage = "chat_message"

// handleFrame dispatches one inbound frame. Unparseable frames get an
// error frame back, frames with missing identifiers are logged and
// dropped, unknown frame types are ignored.
func (cs *ChatServer) handleFrame(c *Client, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		cs.log.Printf("client %s: unparseable frame: %s", c.id, err)
		c.queueFrame(ErrInvalidFrame())
		return
	}

	switch frame.Type {
	case FrameAuth:
		var p AuthPayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleAuth(c, p)
		}
	case FrameJoinTrip:
		var p JoinTripPayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleJoinTrip(c, p)
		}
	case FrameConnected:
		cs.handleConnected(c)
	case FrameTypingIndicator:
		var p TypingIndicatorPayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleTypingIndicator(c, p)
		}
	case FrameChatMessage:
		var p ChatMessagePayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleChatMessage(c, p)
		}
	case FrameMessageEdit:
		var p MessageEditPayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleMessageEdit(c, p)
		}
	case FrameMessageDelete:
		var p MessageDeletePayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleMessageDelete(c, p)
		}
	case FrameMessageReaction:
		var p MessageReactionPayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleMessageReaction(c, p)
		}
	case FrameMessageRead:
		var p MessageReadPayload
		if cs.decodePayload(c, frame.Payload, &p) {
			cs.handleMessageRead(c, p)
		}
	default:
		cs.log.Printf("client %s: ignoring unknown frame type %q", c.id, frame.Type)
	}
}

func (cs *ChatServer) decodePayload(c *Client, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		cs.log.Printf("client %s: invalid payload: %s", c.id, err)
		c.queueFrame(ErrInvalidFrame())
		return false
	}
	return true
}

func (cs *ChatServer) handleAuth(c *Client, p AuthPayload) {
	if p.UserId == 0 {
		return
	}

	if c.user.Id != 0 && c.user.Id != p.UserId {
		cs.log.Printf("client %s: auth user %d does not match session user %d", c.id, p.UserId, c.user.Id)
		c.queueFrame(ErrOperationFailed())
		return
	}

	cs.registry.BindUser(c, p.UserId)
}

func (cs *ChatServer) handleJoinTrip(c *Client, p JoinTripPayload) {
	if p.TripId == 0 {
		return
	}

	cs.registry.BindTrip(c, p.TripId)
	cs.log.Printf("client %s joined trip %d", c.id, p.TripId)
}

func (cs *ChatServer) handleConnected(c *Client) {
	cs.registry.MarkAlive(c)
	c.queueFrame(NewServerFrame(FrameConnected, ConnectedPayload{Message: "pong"}))
}

// Typing indicators are relayed to the trip without persistence.
func (cs *ChatServer) handleTypingIndicator(c *Client, p TypingIndicatorPayload) {
	if p.TripId == 0 || p.UserId == 0 {
		return
	}

	cs.BroadcastToTrip(p.TripId, NewServerFrame(FrameTypingIndicator, p))
}

func (cs *ChatServer) handleChatMessage(c *Client, p ChatMessagePayload) {
	if p.TripId == 0 || p.UserId == 0 {
		cs.log.Printf("client %s: chat message missing trip or user id", c.id)
		return
	}

	msg, err := cs.db.CreateChatMessage(database.CreateChatMessageParams{
		TripId:  p.TripId,
		UserId:  p.UserId,
		Message: p.Message,
		SentAt:  Now(),
		// the sender has read their own message
		ReadBy:         []int{p.UserId},
		HasAttachment:  p.HasAttachment,
		AttachmentUrl:  p.AttachmentUrl,
		AttachmentName: p.AttachmentName,
		AttachmentSize: p.AttachmentSize,
		AttachmentType: p.AttachmentType,
	})
	if err != nil {
		cs.log.Printf("client %s: failed to store chat message: %s", c.id, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	cs.PublishChatMessage(msg, p.IsSystemMessage)
}

func (cs *ChatServer) handleMessageEdit(c *Client, p MessageEditPayload) {
	if p.MessageId == 0 || p.UserId == 0 || p.TripId == 0 {
		return
	}

	msg, err := cs.db.GetChatMessage(p.MessageId)
	if err != nil {
		cs.log.Printf("client %s: failed to load message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	if msg.IsDeleted {
		cs.log.Printf("client %s: rejected edit of deleted message %d", c.id, p.MessageId)
		c.queueFrame(ErrOperationFailed())
		return
	}

	if msg.UserId != p.UserId {
		cs.log.Printf("client %s: user %d may not edit message %d owned by user %d", c.id, p.UserId, p.MessageId, msg.UserId)
		c.queueFrame(ErrOperationFailed())
		return
	}

	edited := true
	editedAt := Now()
	updated, err := cs.db.UpdateChatMessage(p.MessageId, database.UpdateChatMessageParams{
		Message:  &p.Message,
		IsEdited: &edited,
		EditedAt: &editedAt,
	})
	if err != nil {
		cs.log.Printf("client %s: failed to update message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	cs.BroadcastToTrip(p.TripId, NewServerFrame(FrameMessageEdit, wireChatMessage(updated)))
}

func (cs *ChatServer) handleMessageDelete(c *Client, p MessageDeletePayload) {
	if p.MessageId == 0 || p.UserId == 0 || p.TripId == 0 {
		return
	}

	msg, err := cs.db.GetChatMessage(p.MessageId)
	if err != nil {
		cs.log.Printf("client %s: failed to load message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	if msg.IsDeleted {
		return
	}

	if msg.UserId != p.UserId {
		cs.log.Printf("client %s: user %d may not delete message %d owned by user %d", c.id, p.UserId, p.MessageId, msg.UserId)
		c.queueFrame(ErrOperationFailed())
		return
	}

	deleted := true
	if _, err := cs.db.UpdateChatMessage(p.MessageId, database.UpdateChatMessageParams{
		IsDeleted: &deleted,
	}); err != nil {
		cs.log.Printf("client %s: failed to delete message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	// Broadcast identifiers only, clients blank the message locally.
	cs.BroadcastToTrip(p.TripId, NewServerFrame(FrameMessageDelete, MessageDeletedPayload{
		MessageId: p.MessageId,
		TripId:    p.TripId,
		UserId:    p.UserId,
	}))
}

func (cs *ChatServer) handleMessageReaction(c *Client, p MessageReactionPayload) {
	if p.MessageId == 0 || p.UserId == 0 || p.TripId == 0 || p.Reaction == "" {
		return
	}

	msg, err := cs.db.GetChatMessage(p.MessageId)
	if err != nil {
		cs.log.Printf("client %s: failed to load message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	if msg.IsDeleted {
		cs.log.Printf("client %s: ignoring reaction to deleted message %d", c.id, p.MessageId)
		return
	}

	// Read-modify-write without a transaction, concurrent reactions to
	// the same message are last-write-wins.
	reactions := msg.Reactions
	if reactions == nil {
		reactions = make(map[string][]int)
	}

	users := reactions[p.Reaction]
	idx := slices.Index(users, p.UserId)
	switch {
	case p.Toggle && idx >= 0:
		users = slices.Delete(users, idx, idx+1)
		if len(users) == 0 {
			delete(reactions, p.Reaction)
		} else {
			reactions[p.Reaction] = users
		}
	case idx < 0:
		reactions[p.Reaction] = append(users, p.UserId)
	}

	updated, err := cs.db.UpdateChatMessage(p.MessageId, database.UpdateChatMessageParams{
		Reactions: reactions,
	})
	if err != nil {
		cs.log.Printf("client %s: failed to update reactions on message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	cs.BroadcastToTrip(p.TripId, NewServerFrame(FrameMessageReaction, MessageReactionsPayload{
		MessageId: p.MessageId,
		TripId:    p.TripId,
		Reactions: updated.Reactions,
	}))
}

func (cs *ChatServer) handleMessageRead(c *Client, p MessageReadPayload) {
	if p.MessageId == 0 || p.UserId == 0 || p.TripId == 0 {
		return
	}

	msg, err := cs.db.GetChatMessage(p.MessageId)
	if err != nil {
		cs.log.Printf("client %s: failed to load message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	if msg.IsDeleted {
		return
	}

	if slices.Contains(msg.ReadBy, p.UserId) {
		return
	}

	updated, err := cs.db.UpdateChatMessage(p.MessageId, database.UpdateChatMessageParams{
		ReadBy: append(msg.ReadBy, p.UserId),
	})
	if err != nil {
		cs.log.Printf("client %s: failed to update read receipts on message %d: %s", c.id, p.MessageId, err)
		c.queueFrame(ErrOperationFailed())
		return
	}

	cs.BroadcastToTrip(p.TripId, NewServerFrame(FrameMessageRead, MessageReadByPayload{
		MessageId: p.MessageId,
		TripId:    p.TripId,
		ReadBy:    updated.ReadBy,
	}))
}

func wireChatMessage(msg database.ChatMessage) types.ChatMessage {
	return types.ChatMessage{
		Id:             msg.Id,
		TripId:         msg.TripId,
		UserId:         msg.UserId,
		Message:        msg.Message,
		SentAt:         msg.SentAt,
		IsEdited:       msg.IsEdited,
		EditedAt:       msg.EditedAt,
		IsDeleted:      msg.IsDeleted,
		ReadBy:         msg.ReadBy,
		Reactions:      msg.Reactions,
		HasAttachment:  msg.HasAttachment,
		AttachmentUrl:  msg.AttachmentUrl,
		AttachmentName: msg.AttachmentName,
		AttachmentSize: msg.AttachmentSize,
		AttachmentType: msg.AttachmentType,
	}
}
