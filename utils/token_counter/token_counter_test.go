package token_counter

import (
	"strings"
	"testing"

	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/stretchr/testify/assert"
)

// newCounter skips when the encoding cannot be loaded, since tiktoken fetches it on first use.
func newCounter(t *testing.T) *tokenCounterImpl {
	t.Helper()
	counter, err := NewTokenCounter()
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	return counter
}

func TestTokenCounter_EstimateChatMessageTokens_EdgeCases(t *testing.T) {
	counter := newCounter(t)

	// Empty content still has role tokens + overhead
	result := counter.EstimateChatMessageTokens(chat.Message{Role: chat.RoleUser})
	assert.Greater(t, result, messageOverhead)

	withSuggestions := chat.Message{
		Role:        chat.RoleAssistant,
		Content:     "Here you go",
		Suggestions: []string{"Tell me more", "What else can you do?"},
	}
	withoutSuggestions := chat.Message{Role: chat.RoleAssistant, Content: "Here you go"}
	assert.Greater(t, counter.EstimateChatMessageTokens(withSuggestions), counter.EstimateChatMessageTokens(withoutSuggestions))

	longMsg := chat.Message{Role: chat.RoleUser, Content: strings.Repeat("word ", 1000)}
	assert.Greater(t, counter.EstimateChatMessageTokens(longMsg), 1000)
}

func TestTokenCounter_CountChatMessagesTokens_EmptySlice(t *testing.T) {
	counter := newCounter(t)

	assert.Equal(t, 0, counter.CountChatMessagesTokens([]chat.Message{}))
	assert.Equal(t, 0, counter.CountTextTokens(""))
}

func TestTokenCounter_GetTokenCountFromCompletion(t *testing.T) {
	counter := newCounter(t)

	prompt, output, total := counter.GetTokenCountFromCompletion(&chat.Completion{PromptTokens: 20, CompletionTokens: 5})
	assert.Equal(t, []int{20, 5, 25}, []int{prompt, output, total})

	prompt, output, total = counter.GetTokenCountFromCompletion(&chat.Completion{Text: "Hello there, how are you?"})
	assert.Equal(t, 0, prompt)
	assert.Greater(t, output, 0)
	assert.Equal(t, output, total)

	prompt, output, total = counter.GetTokenCountFromCompletion(nil)
	assert.Equal(t, []int{0, 0, 0}, []int{prompt, output, total})
}

func TestTokenCounter_CountRequestTokens(t *testing.T) {
	counter := newCounter(t)

	request := chat.Request{
		SessionID: "0b6f0a4c-9a53-4a0d-9d1f-d3c4b0a0e7a1",
		Lang:      "en",
		Messages: []chat.Message{
			{ID: "greeting", Role: chat.RoleAssistant, Content: "Hello! How can I help you today?"},
			{ID: "m1", Role: chat.RoleUser, Content: "What are your opening hours?"},
		},
	}

	result := counter.CountRequestTokens(request)
	assert.GreaterOrEqual(t, result, counter.CountChatMessagesTokens(request.Messages)/2)
	assert.Less(t, result, 200)
}

func TestMockTokenCounter(t *testing.T) {
	counter := NewMockTokenCounter()
	counter.On("CountTextTokens", "hello").Return(3)

	var iface TokenCounterInterface = counter
	assert.Equal(t, 3, iface.CountTextTokens("hello"))
	counter.AssertExpectations(t)
}
