package token_counter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/pkoukk/tiktoken-go"
)

// tokenCounterImpl provides utilities for counting tokens in conversations
type tokenCounterImpl struct {
	encoder *tiktoken.Tiktoken
}

var _ TokenCounterInterface = (*tokenCounterImpl)(nil)

var encodingBase = "cl100k_base"

// messageOverhead approximates the per-message framing tokens of chat formats.
const messageOverhead = 4

// NewTokenCounter creates a new TokenCounter instance
func NewTokenCounter() (*tokenCounterImpl, error) {
	// cl100k_base is the encoding of the GPT-4 and GPT-3.5 families
	encoder, err := tiktoken.GetEncoding(encodingBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &tokenCounterImpl{
		encoder: encoder,
	}, nil
}

// CountChatMessagesTokens estimates token count for a conversation
func (tc *tokenCounterImpl) CountChatMessagesTokens(messages []chat.Message) int {
	totalTokens := 0
	for _, msg := range messages {
		totalTokens += tc.EstimateChatMessageTokens(msg)
	}
	return totalTokens
}

// EstimateChatMessageTokens estimates tokens for a single message using tiktoken
func (tc *tokenCounterImpl) EstimateChatMessageTokens(msg chat.Message) int {
	totalTokens := len(tc.encoder.Encode(string(msg.Role), nil, nil))
	totalTokens += len(tc.encoder.Encode(msg.Content, nil, nil))

	if len(msg.Suggestions) > 0 {
		totalTokens += tc.CountTextTokens(strings.Join(msg.Suggestions, "\n"))
	}

	return totalTokens + messageOverhead
}

// CountTextTokens counts tokens in plain text using tiktoken
func (tc *tokenCounterImpl) CountTextTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(tc.encoder.Encode(text, nil, nil))
}

// GetTokenCountFromCompletion returns prompt, completion and total tokens. Transports that
// report no usage get the completion estimated from its text and a zero prompt count.
func (tc *tokenCounterImpl) GetTokenCountFromCompletion(completion *chat.Completion) (int, int, int) {
	if completion == nil {
		return 0, 0, 0
	}

	prompt, output := completion.PromptTokens, completion.CompletionTokens
	if output == 0 {
		output = tc.CountTextTokens(completion.Text)
	}
	return prompt, output, prompt + output
}

// CountRequestTokens estimates the token count of the request body sent to the chat endpoint
func (tc *tokenCounterImpl) CountRequestTokens(request chat.Request) int {
	body, err := json.Marshal(request)
	if err != nil {
		return tc.CountChatMessagesTokens(request.Messages)
	}
	return tc.CountTextTokens(string(body))
}
