package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
	"github.com/tripmates/tripchat/internal/database"
	"github.com/tripmates/tripchat/internal/server"
	"github.com/tripmates/tripchat/internal/types"
)

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PostMessageRequest struct {
	TripId         int    `json:"tripId"`
	Message        string `json:"message"`
	HasAttachment  bool   `json:"hasAttachment"`
	AttachmentUrl  string `json:"attachmentUrl,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
	AttachmentSize int64  `json:"attachmentSize,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
}

func (s *TripChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("failed to encode response: %v", err)
	}
}

func (s *TripChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *TripChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	newUser, err := s.db.CreateUser(database.CreateUserParams{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.User{
		Id:          newUser.Id,
		Username:    newUser.Username,
		DisplayName: newUser.DisplayName,
		Email:       newUser.Email,
	})
}

func (s *TripChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	dbUser, err := s.db.GetUserByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if err == sql.ErrNoRows {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	u := types.User{
		Id:          dbUser.Id,
		Username:    dbUser.Username,
		DisplayName: dbUser.DisplayName,
		Email:       dbUser.Email,
	}

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *TripChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	user, err := s.db.GetUser(userId)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.User{
		Id:          user.Id,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	})
}

func (s *TripChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *TripChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	tripId, err := strconv.Atoi(r.URL.Query().Get("trip_id"))
	if err != nil || tripId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	member, err := s.db.IsTripMember(tripId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	before, _ := strconv.Atoi(r.URL.Query().Get("before"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := s.db.ListChatMessages(tripId, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	resp := make([]types.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		m := apiChatMessage(msg)
		m.Sanitize()
		resp = append(resp, m)
	}

	s.writeJson(w, http.StatusOK, resp)
}

// postMessage is the HTTP fallback for clients without a websocket
// connection. The message is broadcast to connected trip members the
// same way a websocket frame would be.
func (s *TripChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	if req.TripId == 0 || (req.Message == "" && !req.HasAttachment) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	member, err := s.db.IsTripMember(req.TripId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	msg, err := s.db.CreateChatMessage(database.CreateChatMessageParams{
		TripId:         req.TripId,
		UserId:         userId,
		Message:        req.Message,
		SentAt:         server.Now(),
		ReadBy:         []int{userId},
		HasAttachment:  req.HasAttachment,
		AttachmentUrl:  req.AttachmentUrl,
		AttachmentName: req.AttachmentName,
		AttachmentSize: req.AttachmentSize,
		AttachmentType: req.AttachmentType,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	if s.cs != nil {
		s.cs.PublishChatMessage(msg, false)
	}

	s.writeJson(w, http.StatusCreated, apiChatMessage(msg))
}

func (s *TripChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	dbUser, err := s.db.GetUser(userId)
	if err != nil {
		var errResp *ApiError
		if err == sql.ErrNoRows {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.Code, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(s.allowedOrigins, origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("websocket upgrade: %v", err)
		return
	}

	connId, err := shortid.Generate()
	if err != nil {
		s.log.Printf("failed to generate connection id: %v", err)
		conn.Close()
		return
	}

	client := server.NewClient(connId, types.User{
		Id:          dbUser.Id,
		Username:    dbUser.Username,
		DisplayName: dbUser.DisplayName,
		Email:       dbUser.Email,
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)

	go client.Write()
	go client.Read()
}

func apiChatMessage(msg database.ChatMessage) types.ChatMessage {
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
