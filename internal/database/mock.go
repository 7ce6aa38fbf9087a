package database

import "github.com/stretchr/testify/mock"

type MockTripChatRepository struct {
	mock.Mock
}

func (m *MockTripChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTripChatRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockTripChatRepository) GetUser(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockTripChatRepository) GetUserByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockTripChatRepository) IsTripMember(tripId, userId int) (bool, error) {
	args := m.Called(tripId, userId)
	return args.Bool(0), args.Error(1)
}

func (m *MockTripChatRepository) CreateChatMessage(params CreateChatMessageParams) (ChatMessage, error) {
	args := m.Called(params)
	return args.Get(0).(ChatMessage), args.Error(1)
}

func (m *MockTripChatRepository) GetChatMessage(id int) (ChatMessage, error) {
	args := m.Called(id)
	return args.Get(0).(ChatMessage), args.Error(1)
}

func (m *MockTripChatRepository) ListChatMessages(tripId, before, limit int) ([]ChatMessage, error) {
	args := m.Called(tripId, before, limit)
	return args.Get(0).([]ChatMessage), args.Error(1)
}

func (m *MockTripChatRepository) UpdateChatMessage(id int, params UpdateChatMessageParams) (ChatMessage, error) {
	args := m.Called(id, params)
	return args.Get(0).(ChatMessage), args.Error(1)
}

func (m *MockTripChatRepository) CreateActivity(params CreateActivityParams) (Activity, error) {
	args := m.Called(params)
	return args.Get(0).(Activity), args.Error(1)
}
