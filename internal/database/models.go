package database

import "time"

type User struct {
	Id           int
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Trip struct {
	Id          int
	Name        string
	Destination string
	OwnerId     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ChatMessage struct {
	Id             int
	TripId         int
	UserId         int
	Message        string
	SentAt         time.Time
	IsEdited       bool
	EditedAt       *time.Time
	IsDeleted      bool
	ReadBy         []int
	Reactions      map[string][]int
	HasAttachment  bool
	AttachmentUrl  string
	AttachmentName string
	AttachmentSize int64
	AttachmentType string
}

type Activity struct {
	Id           int
	TripId       int
	UserId       int
	ActivityType string
	ActivityData map[string]string
	CreatedAt    time.Time
}

type CreateUserParams struct {
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
}

type CreateChatMessageParams struct {
	TripId         int
	UserId         int
	Message        string
	SentAt         time.Time
	ReadBy         []int
	HasAttachment  bool
	AttachmentUrl  string
	AttachmentName string
	AttachmentSize int64
	AttachmentType string
}

// UpdateChatMessageParams is a partial update: nil fields are left
// untouched. ReadBy and Reactions replace the stored value wholesale,
// which keeps concurrent updates last-write-wins.
type UpdateChatMessageParams struct {
	Message   *string
	IsEdited  *bool
	EditedAt  *time.Time
	IsDeleted *bool
	ReadBy    []int
	Reactions map[string][]int
}

type CreateActivityParams struct {
	TripId       int
	UserId       int
	ActivityType string
	ActivityData map[string]string
}
