package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/FrenchMajesty/chat-widget/error_classifier"
	"github.com/FrenchMajesty/chat-widget/rate_limit"
	"github.com/FrenchMajesty/chat-widget/rate_limit/backends/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unavailableBackend struct {
	rate_limit.Backend
}

func (unavailableBackend) BudgetAvailable(context.Context, string) (int, int, error) {
	return 0, 0, errors.New("connection refused")
}

func newMockAPIServer(t *testing.T, limit rate_limit.RateLimit) (*httptest.Server, *MockAPI) {
	t.Helper()

	api := NewMockAPI(MockAPIOptions{
		Limiter: rate_limit.NewLimiter(memory.NewBackend(limit), nil),
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, api
}

func chatRequest(sessionID, lang, text string) chat.Request {
	return chat.Request{
		SessionID: sessionID,
		Lang:      lang,
		Messages: []chat.Message{
			{ID: "greeting", Role: chat.RoleAssistant, Content: "Hi!"},
			{ID: "m1", Role: chat.RoleUser, Content: text},
		},
	}
}

func TestMockAPI_StreamsReply(t *testing.T) {
	srv, _ := newMockAPIServer(t, rate_limit.ChatAPIRateLimit)
	client := chat.NewHTTPStreamClient(chat.HTTPStreamClientOptions{Endpoint: srv.URL + MockChatPath})

	var deltas []string
	completion, err := client.StreamChat(context.Background(), chatRequest("s1", "en", "Hello there"), func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, `You said: "Hello there". What else can I help with?`, completion.Text)
	assert.Equal(t, completion.Text, strings.Join(deltas, ""))
	assert.Greater(t, len(deltas), 1)
	assert.Equal(t, []string{"Tell me more", "Restart chat"}, completion.Suggestions)
	assert.Equal(t, "stop", completion.FinishReason)
}

func TestMockAPI_SpanishReply(t *testing.T) {
	srv, _ := newMockAPIServer(t, rate_limit.ChatAPIRateLimit)
	client := chat.NewHTTPStreamClient(chat.HTTPStreamClientOptions{Endpoint: srv.URL + MockChatPath})

	completion, err := client.StreamChat(context.Background(), chatRequest("s1", "es-MX", "Hola"), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(completion.Text, "Dijiste"))
	assert.Contains(t, completion.Suggestions, "Reiniciar chat")
}

func TestMockAPI_RateLimited(t *testing.T) {
	srv, api := newMockAPIServer(t, rate_limit.RateLimit{RPM: 1, TPM: 100000})
	client := chat.NewHTTPStreamClient(chat.HTTPStreamClientOptions{Endpoint: srv.URL + MockChatPath})
	ctx := context.Background()

	_, err := client.StreamChat(ctx, chatRequest("s1", "en", "first"), nil)
	require.NoError(t, err)

	_, err = client.StreamChat(ctx, chatRequest("s1", "en", "second"), nil)
	require.Error(t, err)

	classification := error_classifier.Classify(err)
	assert.Equal(t, error_classifier.ErrorKindRateLimit, classification.Kind)
	assert.Equal(t, http.StatusTooManyRequests, classification.StatusCode)
	assert.GreaterOrEqual(t, classification.RetryAfter(), 1)
	assert.LessOrEqual(t, classification.RetryAfter(), 60)

	// Budgets are per session.
	_, err = client.StreamChat(ctx, chatRequest("s2", "en", "other session"), nil)
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `chat_widget_upstream_requests_total{outcome="limited"} 1`)
	assert.Contains(t, rec.Body.String(), `chat_widget_upstream_requests_total{outcome="allowed"} 2`)
}

func TestMockAPI_RateLimitResponseShape(t *testing.T) {
	srv, _ := newMockAPIServer(t, rate_limit.RateLimit{RPM: 0, TPM: 100000})

	body, err := chat.EncodeRequestBody(chatRequest("s1", "en", "hi"))
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+MockChatPath, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "rate_limit_error", payload.Error.Type)
	assert.Contains(t, payload.Error.Message, "Rate limit exceeded")
}

func TestMockAPI_BadRequests(t *testing.T) {
	srv, _ := newMockAPIServer(t, rate_limit.ChatAPIRateLimit)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"messages":`},
		{"no user message", `{"messages":[{"id":"a","role":"assistant","parts":[{"type":"text","text":"hi"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+MockChatPath, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			raw, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(raw), "invalid_request_error")
		})
	}
}

func TestMockAPI_LimiterUnavailable(t *testing.T) {
	api := NewMockAPI(MockAPIOptions{
		Limiter: rate_limit.NewLimiter(unavailableBackend{}, nil),
	})
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	client := chat.NewHTTPStreamClient(chat.HTTPStreamClientOptions{Endpoint: srv.URL + MockChatPath})
	_, err := client.StreamChat(context.Background(), chatRequest("s1", "en", "hi"), nil)
	require.Error(t, err)

	classification := error_classifier.Classify(err)
	assert.Equal(t, error_classifier.ErrorKindServer, classification.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, classification.StatusCode)
}

func TestMockAPI_CustomReplyWithoutLimiter(t *testing.T) {
	api := NewMockAPI(MockAPIOptions{
		Reply: func(req chat.Request) Reply {
			return Reply{Text: "fixed"}
		},
	})
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	client := chat.NewHTTPStreamClient(chat.HTTPStreamClientOptions{Endpoint: srv.URL + MockChatPath})
	completion, err := client.StreamChat(context.Background(), chatRequest("", "en", "hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", completion.Text)
	assert.Empty(t, completion.Suggestions)
}
