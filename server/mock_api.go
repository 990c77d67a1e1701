package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/FrenchMajesty/chat-widget/i18n"
	"github.com/FrenchMajesty/chat-widget/rate_limit"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/FrenchMajesty/chat-widget/utils/token_counter"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	MockChatPath        = "/api/chat"
	maxRequestBodyBytes = 1 << 20
	// charsPerToken approximates token counts when no tokenizer is configured.
	charsPerToken = 4
)

// Reply is what the mock API streams back for a request.
type Reply struct {
	Text        string
	Suggestions []string
}

// ReplyFunc produces the reply for an admitted request.
type ReplyFunc func(req chat.Request) Reply

type MockAPIOptions struct {
	Limiter *rate_limit.Limiter
	// Burst, when set, throttles each client IP before the minute budgets are consulted.
	Burst        *BurstLimiter
	TokenCounter token_counter.TokenCounterInterface
	Reply        ReplyFunc
	// ChunkDelay is the pause between streamed words.
	ChunkDelay time.Duration
	Metrics    *Metrics
	Logger     logger.Logger
}

// MockAPI is a stand-in chat backend that streams UI message chunks and answers with
// 429 and Retry-After once a client exhausts its minute budget.
type MockAPI struct {
	limiter      *rate_limit.Limiter
	tokenCounter token_counter.TokenCounterInterface
	reply        ReplyFunc
	chunkDelay   time.Duration
	metrics      *Metrics
	logger       logger.Logger
	engine       *gin.Engine
}

func NewMockAPI(opts MockAPIOptions) *MockAPI {
	l := logger.OrNoop(opts.Logger)

	m := &MockAPI{
		limiter:      opts.Limiter,
		tokenCounter: opts.TokenCounter,
		reply:        opts.Reply,
		chunkDelay:   opts.ChunkDelay,
		metrics:      opts.Metrics,
		logger:       l,
		engine:       newEngine(l),
	}
	if m.reply == nil {
		m.reply = EchoReply
	}
	if m.metrics == nil {
		m.metrics = NewMetrics()
	}

	handlers := []gin.HandlerFunc{m.handleChat}
	if opts.Burst != nil {
		handlers = append([]gin.HandlerFunc{opts.Burst.Middleware()}, handlers...)
	}
	m.engine.POST(MockChatPath, handlers...)
	m.engine.GET("/metrics", gin.WrapH(m.metrics.Handler()))
	return m
}

func (m *MockAPI) Handler() http.Handler {
	return m.engine
}

// EchoReply answers with the user's last message in the requested language.
func EchoReply(req chat.Request) Reply {
	labels := i18n.GetLabels(req.Lang)
	last := chat.LastUserMessage(req.Messages)

	if labels == i18n.Spanish {
		return Reply{
			Text:        fmt.Sprintf("Dijiste: %q. ¿En qué más puedo ayudarte?", last),
			Suggestions: []string{"Cuéntame más", labels.Restart},
		}
	}
	return Reply{
		Text:        fmt.Sprintf("You said: %q. What else can I help with?", last),
		Suggestions: []string{"Tell me more", labels.Restart},
	}
}

func (m *MockAPI) handleChat(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodyBytes))
	if err != nil {
		m.writeAPIError(c, http.StatusBadRequest, "invalid_request_error", "could not read request body")
		return
	}

	req, err := chat.DecodeRequestBody(body)
	if err != nil {
		m.writeAPIError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if chat.LastUserMessage(req.Messages) == "" {
		m.writeAPIError(c, http.StatusBadRequest, "invalid_request_error", "no user message")
		return
	}

	key := req.SessionID
	if key == "" {
		key = c.ClientIP()
	}

	if m.limiter != nil {
		decision, err := m.limiter.Reserve(c.Request.Context(), key, m.countRequestTokens(req))
		if err != nil {
			m.logger.Errorf("[mock_api] rate limit check for %s failed: %v", key, err)
			m.metrics.UpstreamRequests.WithLabelValues("error").Inc()
			m.writeAPIError(c, http.StatusServiceUnavailable, "api_error", "budget store unavailable")
			return
		}
		if !decision.Allowed {
			m.metrics.UpstreamRequests.WithLabelValues("limited").Inc()
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
			m.writeAPIError(c, http.StatusTooManyRequests, "rate_limit_error",
				"Rate limit exceeded. Please wait before sending another message.")
			return
		}
	}

	m.metrics.UpstreamRequests.WithLabelValues("allowed").Inc()
	reply := m.reply(req)
	m.stream(c, reply)

	if m.limiter != nil {
		if err := m.limiter.RecordTokens(c.Request.Context(), key, m.countTextTokens(reply.Text)); err != nil {
			m.logger.Errorf("[mock_api] record reply tokens for %s: %v", key, err)
		}
	}
}

func (m *MockAPI) stream(c *gin.Context, reply Reply) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("x-vercel-ai-ui-message-stream", "v1")
	c.Status(http.StatusOK)

	messageID := uuid.NewString()
	textID := uuid.NewString()

	chunks := []map[string]any{
		{"type": chat.ChunkStart, "messageId": messageID},
		{"type": chat.ChunkTextStart, "id": textID},
	}
	for _, word := range strings.SplitAfter(reply.Text, " ") {
		if word == "" {
			continue
		}
		chunks = append(chunks, map[string]any{"type": chat.ChunkTextDelta, "id": textID, "delta": word})
	}
	chunks = append(chunks, map[string]any{"type": chat.ChunkTextEnd, "id": textID})
	if len(reply.Suggestions) > 0 {
		chunks = append(chunks, map[string]any{"type": chat.ChunkDataSuggestions, "data": reply.Suggestions})
	}
	chunks = append(chunks, map[string]any{"type": chat.ChunkFinish, "finishReason": "stop"})

	ctx := c.Request.Context()
	for _, chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			m.logger.Errorf("[mock_api] encode chunk: %v", err)
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return
		}
		c.Writer.Flush()

		if m.chunkDelay > 0 && chunk["type"] == chat.ChunkTextDelta {
			select {
			case <-time.After(m.chunkDelay):
			case <-ctx.Done():
				return
			}
		}
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", chat.StreamDone)
	c.Writer.Flush()
}

func (m *MockAPI) writeAPIError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
		},
	})
}

func (m *MockAPI) countRequestTokens(req chat.Request) int {
	if m.tokenCounter != nil {
		return m.tokenCounter.CountRequestTokens(req)
	}
	return len(chat.Transcript(req.Messages))/charsPerToken + 1
}

func (m *MockAPI) countTextTokens(text string) int {
	if m.tokenCounter != nil {
		return m.tokenCounter.CountTextTokens(text)
	}
	return len(text) / charsPerToken
}
