package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FrenchMajesty/chat-widget/error_classifier"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/tidwall/gjson"
)

const maxErrorBodyBytes = 64 << 10

// HTTPStreamClientOptions configures an HTTPStreamClient.
type HTTPStreamClientOptions struct {
	Endpoint   string
	HTTPClient *http.Client
	Headers    map[string]string
	Logger     logger.Logger
}

// HTTPStreamClient posts the conversation to a chat endpoint and reads a UI message stream
// (server-sent events) or a plain text stream back.
type HTTPStreamClient struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
	logger     logger.Logger
}

var _ Client = (*HTTPStreamClient)(nil)

func NewHTTPStreamClient(opts HTTPStreamClientOptions) *HTTPStreamClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &HTTPStreamClient{
		endpoint:   opts.Endpoint,
		httpClient: httpClient,
		headers:    opts.Headers,
		logger:     logger.OrNoop(opts.Logger),
	}
}

type uiTextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type uiMessage struct {
	ID    string       `json:"id"`
	Role  Role         `json:"role"`
	Parts []uiTextPart `json:"parts"`
}

type uiRequestBody struct {
	ID        string      `json:"id"`
	Messages  []uiMessage `json:"messages"`
	Trigger   string      `json:"trigger"`
	Lang      string      `json:"lang"`
	SessionID string      `json:"sessionId"`
}

// EncodeRequestBody renders req in the UI message wire format.
func EncodeRequestBody(req Request) ([]byte, error) {
	messages := make([]uiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, uiMessage{
			ID:    m.ID,
			Role:  m.Role,
			Parts: []uiTextPart{{Type: "text", Text: m.Content}},
		})
	}

	return json.Marshal(uiRequestBody{
		ID:        req.SessionID,
		Messages:  messages,
		Trigger:   "submit-message",
		Lang:      req.Lang,
		SessionID: req.SessionID,
	})
}

// DecodeRequestBody parses a UI message request body, joining the text parts of each message.
func DecodeRequestBody(body []byte) (Request, error) {
	if !gjson.ValidBytes(body) {
		return Request{}, fmt.Errorf("invalid request body")
	}

	parsed := gjson.ParseBytes(body)
	req := Request{
		SessionID: parsed.Get("sessionId").String(),
		Lang:      parsed.Get("lang").String(),
	}

	parsed.Get("messages").ForEach(func(_, value gjson.Result) bool {
		var text strings.Builder
		value.Get("parts").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				text.WriteString(part.Get("text").String())
			}
			return true
		})
		if content := value.Get("content"); content.Exists() && text.Len() == 0 {
			text.WriteString(content.String())
		}

		req.Messages = append(req.Messages, Message{
			ID:      value.Get("id").String(),
			Role:    Role(value.Get("role").String()),
			Content: text.String(),
		})
		return true
	})

	return req, nil
}

func (c *HTTPStreamClient) StreamChat(ctx context.Context, req Request, onDelta func(delta string)) (*Completion, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}

	body, err := EncodeRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseError(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return c.readEventStream(resp.Body, onDelta)
	}
	return c.readTextStream(resp.Body, onDelta)
}

// responseError builds the error for a non-2xx response. The message prefers the error text
// from a JSON body and falls back to the raw body.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	message := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, path := range []string{"error.message", "error", "message"} {
			if value := parsed.Get(path); value.Type == gjson.String && value.Str != "" {
				message = value.Str
				break
			}
		}
	}
	if message == "" {
		message = fmt.Sprintf("Request failed with status %d", resp.StatusCode)
	}

	return &error_classifier.HTTPError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Message:    message,
	}
}

func (c *HTTPStreamClient) readEventStream(r io.Reader, onDelta func(string)) (*Completion, error) {
	completion := &Completion{}
	var text strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == StreamDone {
			break
		}
		if !gjson.Valid(data) {
			c.logger.Printf("[chat] skipping malformed stream chunk: %q", data)
			continue
		}

		chunk := gjson.Parse(data)
		switch chunk.Get("type").String() {
		case ChunkTextDelta:
			delta := chunk.Get("delta").String()
			text.WriteString(delta)
			onDelta(delta)
		case ChunkDataSuggestions:
			completion.Suggestions = completion.Suggestions[:0]
			chunk.Get("data").ForEach(func(_, value gjson.Result) bool {
				if s := strings.TrimSpace(value.String()); s != "" {
					completion.Suggestions = append(completion.Suggestions, s)
				}
				return true
			})
		case ChunkFinish:
			completion.FinishReason = chunk.Get("finishReason").String()
		case ChunkError:
			return nil, &error_classifier.StreamError{Text: chunk.Get("errorText").String()}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chat stream: %w", err)
	}

	completion.Text = text.String()
	if completion.FinishReason == "" {
		completion.FinishReason = "stop"
	}
	return completion, nil
}

func (c *HTTPStreamClient) readTextStream(r io.Reader, onDelta func(string)) (*Completion, error) {
	var text strings.Builder
	buf := make([]byte, 4096)
	var pending []byte

	emit := func(p []byte) {
		if len(p) == 0 {
			return
		}
		delta := string(p)
		text.WriteString(delta)
		onDelta(delta)
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			cut := completeRunesPrefix(data)
			emit(data[:cut])
			pending = append([]byte(nil), data[cut:]...)
		}
		if err == io.EOF {
			emit(pending)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read chat stream: %w", err)
		}
	}

	return &Completion{Text: text.String(), FinishReason: "stop"}, nil
}

// completeRunesPrefix returns the length of p without a trailing incomplete
// UTF-8 sequence.
func completeRunesPrefix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}
