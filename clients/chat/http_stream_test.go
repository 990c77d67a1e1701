package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"

	"github.com/FrenchMajesty/chat-widget/error_classifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func sampleRequest() Request {
	return Request{
		SessionID: "session-1",
		Lang:      "es",
		Messages: []Message{
			{ID: "greeting", Role: RoleAssistant, Content: "Hola"},
			{ID: "m1", Role: RoleUser, Content: "¿Qué tal?"},
		},
	}
}

func writeEvents(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, chunk := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
	}
}

func TestEncodeDecodeRequestBody(t *testing.T) {
	body, err := EncodeRequestBody(sampleRequest())
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "session-1", parsed.Get("sessionId").String())
	assert.Equal(t, "es", parsed.Get("lang").String())
	assert.Equal(t, "submit-message", parsed.Get("trigger").String())
	assert.Equal(t, "text", parsed.Get("messages.1.parts.0.type").String())
	assert.Equal(t, "¿Qué tal?", parsed.Get("messages.1.parts.0.text").String())

	decoded, err := DecodeRequestBody(body)
	require.NoError(t, err)
	assert.Equal(t, sampleRequest(), decoded)
}

func TestDecodeRequestBody_Invalid(t *testing.T) {
	_, err := DecodeRequestBody([]byte("not json"))
	assert.Error(t, err)
}

func TestHTTPStreamClient_EventStream(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Widget-Key"))

		writeEvents(w,
			`{"type":"start","messageId":"a1"}`,
			`{"type":"text-start","id":"t1"}`,
			`{"type":"text-delta","id":"t1","delta":"Hello"}`,
			`{"type":"text-delta","id":"t1","delta":", world"}`,
			`{"type":"text-end","id":"t1"}`,
			`{"type":"data-suggestions","data":["Tell me more","  ","Thanks"]}`,
			`{"type":"finish","finishReason":"stop"}`,
			`[DONE]`,
		)
	}))
	defer server.Close()

	client := NewHTTPStreamClient(HTTPStreamClientOptions{
		Endpoint: server.URL,
		Headers:  map[string]string{"X-Widget-Key": "secret"},
	})

	var deltas []string
	completion, err := client.StreamChat(context.Background(), sampleRequest(), func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", ", world"}, deltas)
	assert.Equal(t, "Hello, world", completion.Text)
	assert.Equal(t, []string{"Tell me more", "Thanks"}, completion.Suggestions)
	assert.Equal(t, "stop", completion.FinishReason)
	assert.Equal(t, "session-1", gjson.GetBytes(received, "sessionId").String())
}

func TestHTTPStreamClient_SkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w,
			`{not json`,
			`{"type":"text-delta","delta":"ok"}`,
		)
	}))
	defer server.Close()

	completion, err := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: server.URL}).
		StreamChat(context.Background(), sampleRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Text)
}

func TestHTTPStreamClient_PlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "plain reply")
	}))
	defer server.Close()

	completion, err := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: server.URL}).
		StreamChat(context.Background(), sampleRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "plain reply", completion.Text)
}

func TestHTTPStreamClient_PlainTextKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("a", 4095) + "é" + "tail ñandú"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, body)
	}))
	defer server.Close()

	var deltas []string
	completion, err := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: server.URL}).
		StreamChat(context.Background(), sampleRequest(), func(delta string) {
			deltas = append(deltas, delta)
		})
	require.NoError(t, err)
	assert.Equal(t, body, completion.Text)
	for _, delta := range deltas {
		assert.True(t, utf8.ValidString(delta), "delta %q", delta)
	}
}

func TestReadTextStream_SplitReads(t *testing.T) {
	body := "¿Qué tal? Mañana 日本 🙂"
	client := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: "http://unused"})

	var deltas []string
	completion, err := client.readTextStream(iotest.OneByteReader(strings.NewReader(body)), func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)
	assert.Equal(t, body, completion.Text)
	assert.Equal(t, body, strings.Join(deltas, ""))
	for _, delta := range deltas {
		assert.True(t, utf8.ValidString(delta), "delta %q", delta)
	}
}

func TestReadTextStream_FlushesTruncatedTail(t *testing.T) {
	client := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: "http://unused"})

	completion, err := client.readTextStream(strings.NewReader("ok\xc3"), func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "ok\xc3", completion.Text)
}

func TestHTTPStreamClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"Rate limit exceeded","type":"rate_limit_error"}}`)
	}))
	defer server.Close()

	_, err := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: server.URL}).
		StreamChat(context.Background(), sampleRequest(), nil)
	require.Error(t, err)

	var httpErr *error_classifier.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, "Rate limit exceeded", httpErr.Message)

	classification := error_classifier.Classify(err)
	assert.Equal(t, error_classifier.ErrorKindRateLimit, classification.Kind)
	assert.Equal(t, 12, classification.RetryAfter())
}

func TestHTTPStreamClient_ErrorBodies(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantKind    error_classifier.ErrorKind
	}{
		{"plain text body", http.StatusInternalServerError, "upstream exploded", "upstream exploded", error_classifier.ErrorKindServer},
		{"string error field", http.StatusUnauthorized, `{"error":"invalid key"}`, "invalid key", error_classifier.ErrorKindAuth},
		{"empty body", http.StatusForbidden, "", "Request failed with status 403", error_classifier.ErrorKindAuth},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer server.Close()

			_, err := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: server.URL}).
				StreamChat(context.Background(), sampleRequest(), nil)
			require.Error(t, err)
			assert.Equal(t, tc.wantMessage, err.Error())
			assert.Equal(t, tc.wantKind, error_classifier.Classify(err).Kind)
		})
	}
}

func TestHTTPStreamClient_StreamErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w,
			`{"type":"text-delta","delta":"partial"}`,
			`{"type":"error","errorText":"Too many requests"}`,
		)
	}))
	defer server.Close()

	_, err := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: server.URL}).
		StreamChat(context.Background(), sampleRequest(), nil)

	var streamErr *error_classifier.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "Too many requests", streamErr.Text)
	assert.True(t, error_classifier.IsRateLimitError(err))
}

func TestHTTPStreamClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := NewHTTPStreamClient(HTTPStreamClientOptions{Endpoint: endpoint}).
		StreamChat(context.Background(), sampleRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, error_classifier.ErrorKindNetwork, error_classifier.Classify(err).Kind)
}

func TestLastUserMessageAndTranscript(t *testing.T) {
	messages := sampleRequest().Messages

	assert.Equal(t, "¿Qué tal?", LastUserMessage(messages))
	assert.Equal(t, "", LastUserMessage(messages[:1]))
	assert.True(t, strings.HasPrefix(Transcript(messages), "assistant: Hola\n"))
}
