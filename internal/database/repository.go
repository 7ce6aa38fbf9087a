package database

// TripChatRepository is the persistence boundary consumed by the
// realtime core and the HTTP layer.
type TripChatRepository interface {
	Ping() error
	CreateUser(params CreateUserParams) (User, error)
	GetUser(id int) (User, error)
	GetUserByEmail(email string) (User, error)
	IsTripMember(tripId, userId int) (bool, error)
	CreateChatMessage(params CreateChatMessageParams) (ChatMessage, error)
	GetChatMessage(id int) (ChatMessage, error)
	ListChatMessages(tripId, before, limit int) ([]ChatMessage, error)
	UpdateChatMessage(id int, params UpdateChatMessageParams) (ChatMessage, error)
	CreateActivity(params CreateActivityParams) (Activity, error)
}
