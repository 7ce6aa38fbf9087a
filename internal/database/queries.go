package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const chatMessageColumns = "id, trip_id, user_id, message, sent_at, is_edited, edited_at, is_deleted, " +
	"read_by, reactions, has_attachment, attachment_url, attachment_name, attachment_size, attachment_type"

func (db *PgTripChatRepository) CreateUser(params CreateUserParams) (User, error) {
	row := db.conn.QueryRow(
		"INSERT INTO users (username, display_name, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, display_name, email",
		params.Username,
		params.DisplayName,
		params.Email,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.Email,
	)

	return u, err
}

func (db *PgTripChatRepository) GetUser(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, display_name, email FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.Email,
	)

	return u, err
}

func (db *PgTripChatRepository) GetUserByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, display_name, email, password_hash FROM users "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.Email,
		&u.PasswordHash,
	)

	return u, err
}

func (db *PgTripChatRepository) IsTripMember(tripId, userId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM trip_members WHERE trip_id = $1 AND user_id = $2)",
		tripId,
		userId,
	)

	var member bool
	err := row.Scan(&member)

	return member, err
}

func (db *PgTripChatRepository) CreateChatMessage(params CreateChatMessageParams) (ChatMessage, error) {
	row := db.conn.QueryRow(
		"INSERT INTO chat_messages (trip_id, user_id, message, sent_at, read_by, reactions, "+
			"has_attachment, attachment_url, attachment_name, attachment_size, attachment_type) "+
			"VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, $6, $7, $8, $9, $10) RETURNING "+chatMessageColumns,
		params.TripId,
		params.UserId,
		params.Message,
		params.SentAt,
		pq.Array(toInt64(params.ReadBy)),
		params.HasAttachment,
		nullString(params.AttachmentUrl),
		nullString(params.AttachmentName),
		nullInt64(params.AttachmentSize),
		nullString(params.AttachmentType),
	)

	return scanChatMessage(row)
}

func (db *PgTripChatRepository) GetChatMessage(id int) (ChatMessage, error) {
	row := db.conn.QueryRow(
		"SELECT "+chatMessageColumns+" FROM chat_messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanChatMessage(row)
}

func (db *PgTripChatRepository) ListChatMessages(tripId, before, limit int) ([]ChatMessage, error) {
	var upper int = 1<<31 - 1
	if before > 0 {
		upper = before - 1
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT "+chatMessageColumns+" FROM chat_messages "+
			"WHERE trip_id = $1 AND id <= $2 ORDER BY id DESC LIMIT $3",
		tripId,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0, limit)
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgTripChatRepository) UpdateChatMessage(id int, params UpdateChatMessageParams) (ChatMessage, error) {
	sets := make([]string, 0, 6)
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Message != nil {
		add("message", *params.Message)
	}
	if params.IsEdited != nil {
		add("is_edited", *params.IsEdited)
	}
	if params.EditedAt != nil {
		add("edited_at", *params.EditedAt)
	}
	if params.IsDeleted != nil {
		add("is_deleted", *params.IsDeleted)
	}
	if params.ReadBy != nil {
		add("read_by", pq.Array(toInt64(params.ReadBy)))
	}
	if params.Reactions != nil {
		data, err := json.Marshal(params.Reactions)
		if err != nil {
			return ChatMessage{}, fmt.Errorf("encode reactions: %w", err)
		}
		add("reactions", data)
	}

	if len(sets) == 0 {
		return db.GetChatMessage(id)
	}

	row := db.conn.QueryRow(
		"UPDATE chat_messages SET "+strings.Join(sets, ", ")+
			" WHERE id = $1 RETURNING "+chatMessageColumns,
		args...,
	)

	return scanChatMessage(row)
}

func (db *PgTripChatRepository) CreateActivity(params CreateActivityParams) (Activity, error) {
	data, err := json.Marshal(params.ActivityData)
	if err != nil {
		return Activity{}, fmt.Errorf("encode activity data: %w", err)
	}

	row := db.conn.QueryRow(
		"INSERT INTO activities (trip_id, user_id, activity_type, activity_data, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, trip_id, user_id, activity_type, created_at",
		params.TripId,
		params.UserId,
		params.ActivityType,
		data,
		time.Now().UTC(),
	)

	var activity Activity
	err = row.Scan(
		&activity.Id,
		&activity.TripId,
		&activity.UserId,
		&activity.ActivityType,
		&activity.CreatedAt,
	)
	if err != nil {
		return Activity{}, err
	}

	activity.ActivityData = params.ActivityData
	return activity, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChatMessage(row rowScanner) (ChatMessage, error) {
	var (
		msg            ChatMessage
		editedAt       sql.NullTime
		readBy         pq.Int64Array
		reactions      []byte
		attachmentUrl  sql.NullString
		attachmentName sql.NullString
		attachmentSize sql.NullInt64
		attachmentType sql.NullString
	)

	err := row.Scan(
		&msg.Id,
		&msg.TripId,
		&msg.UserId,
		&msg.Message,
		&msg.SentAt,
		&msg.IsEdited,
		&editedAt,
		&msg.IsDeleted,
		&readBy,
		&reactions,
		&msg.HasAttachment,
		&attachmentUrl,
		&attachmentName,
		&attachmentSize,
		&attachmentType,
	)
	if err != nil {
		return ChatMessage{}, err
	}

	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}

	msg.ReadBy = make([]int, len(readBy))
	for i, id := range readBy {
		msg.ReadBy[i] = int(id)
	}

	msg.Reactions = make(map[string][]int)
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
			return ChatMessage{}, fmt.Errorf("decode reactions: %w", err)
		}
	}

	msg.AttachmentUrl = attachmentUrl.String
	msg.AttachmentName = attachmentName.String
	msg.AttachmentSize = attachmentSize.Int64
	msg.AttachmentType = attachmentType.String

	return msg, nil
}

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
