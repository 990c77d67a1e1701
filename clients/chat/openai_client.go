package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClientOptions configures an OpenAIClient. BaseURL may point at any
// OpenAI-compatible API.
type OpenAIClientOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Logger       logger.Logger
	// RequestOptions are appended after the defaults, mostly for tests.
	RequestOptions []option.RequestOption
}

// OpenAIClient streams chat completions through openai-go. SDK retries are disabled:
// retrying is the widget's decision.
type OpenAIClient struct {
	client       openai.Client
	model        string
	systemPrompt string
	logger       logger.Logger
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(opts OpenAIClientOptions) *OpenAIClient {
	requestOptions := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		requestOptions = append(requestOptions, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(opts.BaseURL))
	}
	requestOptions = append(requestOptions, opts.RequestOptions...)

	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client:       openai.NewClient(requestOptions...),
		model:        model,
		systemPrompt: opts.SystemPrompt,
		logger:       logger.OrNoop(opts.Logger),
	}
}

func (c *OpenAIClient) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if c.systemPrompt != "" {
		prompt := c.systemPrompt
		if req.Lang != "" {
			prompt = fmt.Sprintf("%s\nReply in the language with code %q.", prompt, req.Lang)
		}
		messages = append(messages, openai.SystemMessage(prompt))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.SessionID != "" {
		params.User = openai.String(req.SessionID)
	}
	return params
}

func (c *OpenAIClient) StreamChat(ctx context.Context, req Request, onDelta func(delta string)) (*Completion, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, c.buildParams(req))
	defer stream.Close()

	completion := &Completion{}
	var text strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			completion.PromptTokens = int(chunk.Usage.PromptTokens)
			completion.CompletionTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if delta := choice.Delta.Content; delta != "" {
			text.WriteString(delta)
			onDelta(delta)
		}
		if choice.FinishReason != "" {
			completion.FinishReason = choice.FinishReason
		}
	}

	if err := stream.Err(); err != nil {
		c.logger.Errorf("[chat] openai stream failed for model %s: %v", c.model, err)
		return nil, fmt.Errorf("openai chat stream: %w", err)
	}

	completion.Text = text.String()
	return completion, nil
}
