package token_counter

import (
	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/stretchr/testify/mock"
)

// MockTokenCounter is a mock implementation of TokenCounterInterface for testing.
type MockTokenCounter struct {
	mock.Mock
}

var _ TokenCounterInterface = (*MockTokenCounter)(nil)

func NewMockTokenCounter() *MockTokenCounter {
	return &MockTokenCounter{}
}

func (m *MockTokenCounter) CountChatMessagesTokens(messages []chat.Message) int {
	args := m.Called(messages)
	return args.Int(0)
}

func (m *MockTokenCounter) EstimateChatMessageTokens(msg chat.Message) int {
	args := m.Called(msg)
	return args.Int(0)
}

func (m *MockTokenCounter) CountTextTokens(text string) int {
	args := m.Called(text)
	return args.Int(0)
}

func (m *MockTokenCounter) GetTokenCountFromCompletion(completion *chat.Completion) (int, int, int) {
	args := m.Called(completion)
	return args.Int(0), args.Int(1), args.Int(2)
}

func (m *MockTokenCounter) CountRequestTokens(request chat.Request) int {
	args := m.Called(request)
	return args.Int(0)
}
