package token_counter

import "github.com/FrenchMajesty/chat-widget/clients/chat"

type TokenCounterInterface interface {
	CountChatMessagesTokens(messages []chat.Message) int
	EstimateChatMessageTokens(msg chat.Message) int
	CountTextTokens(text string) int
	GetTokenCountFromCompletion(completion *chat.Completion) (int, int, int)
	CountRequestTokens(request chat.Request) int
}
