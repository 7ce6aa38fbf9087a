package types

import (
	"time"
)

// DeletedMessagePlaceholder replaces the body of a soft-deleted message
// anywhere it is surfaced to clients. The stored body is never shown
// again once a message is deleted.
const DeletedMessagePlaceholder = "This message has been deleted"

type User struct {
	Id          int       `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Password    string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type Trip struct {
	Id          int       `json:"id"`
	Name        string    `json:"name"`
	Destination string    `json:"destination,omitempty"`
	OwnerId     int       `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type ChatMessage struct {
	Id             int              `json:"id"`
	TripId         int              `json:"tripId"`
	UserId         int              `json:"userId"`
	Message        string           `json:"message"`
	SentAt         time.Time        `json:"sentAt"`
	IsEdited       bool             `json:"isEdited"`
	EditedAt       *time.Time       `json:"editedAt"`
	IsDeleted      bool             `json:"isDeleted"`
	ReadBy         []int            `json:"readBy"`
	Reactions      map[string][]int `json:"reactions"`
	HasAttachment  bool             `json:"hasAttachment"`
	AttachmentUrl  string           `json:"attachmentUrl,omitempty"`
	AttachmentName string           `json:"attachmentName,omitempty"`
	AttachmentSize int64            `json:"attachmentSize,omitempty"`
	AttachmentType string           `json:"attachmentType,omitempty"`
}

// Sanitize hides the body of a deleted message behind the placeholder.
func (m *ChatMessage) Sanitize() {
	if m.IsDeleted {
		m.Message = DeletedMessagePlaceholder
	}
}
