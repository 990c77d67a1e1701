package chat_widget

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/FrenchMajesty/chat-widget/error_classifier"
	"github.com/FrenchMajesty/chat-widget/i18n"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/FrenchMajesty/chat-widget/utils/retry"
	"github.com/FrenchMajesty/chat-widget/utils/token_counter"
	"github.com/google/uuid"
)

type Status string

const (
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// Trigger records why an attempt was started.
type Trigger string

const (
	TriggerSubmit      Trigger = "submit"
	TriggerRegenerate  Trigger = "regenerate"
	TriggerAutoRetry   Trigger = "auto_retry"
	TriggerManualRetry Trigger = "manual_retry"
)

const (
	GreetingMessageID  = "greeting"
	defaultEventBuffer = 1000
)

var (
	ErrBusy                = errors.New("chat widget: a request is already in flight")
	ErrEmptyMessage        = errors.New("chat widget: message is empty")
	ErrNothingToRegenerate = errors.New("chat widget: no user message to regenerate from")
	ErrClosed              = errors.New("chat widget: closed")
)

type Options struct {
	Client chat.Client
	Lang   string
	// Labels overrides individual built-in labels; empty fields keep the default.
	Labels   i18n.Labels
	Greeting string
	// RateLimit defaults to retry.DefaultConfig() when nil.
	RateLimit       *retry.Config
	HideSuggestions bool
	// RequestTimeout bounds a single attempt. Zero means no timeout.
	RequestTimeout time.Duration
	Logger         logger.Logger
	Scheduler      retry.Scheduler
	Random         func() float64
	TokenCounter   token_counter.TokenCounterInterface
	EventBuffer    int
}

// Widget is the non-visual core of the chat widget: the conversation, the request lifecycle,
// and rate limit recovery.
type Widget struct {
	mu sync.Mutex
	// feedMu keeps classifications reaching the controller in completion order.
	feedMu sync.Mutex

	client          chat.Client
	lang            string
	labels          i18n.Labels
	greeting        string
	hideSuggestions bool
	requestTimeout  time.Duration
	logger          logger.Logger
	tokenCounter    token_counter.TokenCounterInterface
	controller      *retry.Controller

	session        atomic.Value
	messages       []chat.Message
	status         Status
	lastError      error
	classification *error_classifier.Classification
	runID          uint64
	cancelRun      context.CancelFunc
	stats          Stats
	closed         bool

	eventsMu     sync.RWMutex
	eventsClosed bool
	eventChan    chan *Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// attempt is one request to the chat endpoint.
type attempt struct {
	id      uint64
	trigger Trigger
	request chat.Request
	ctx     context.Context
	release func()
}

func New(opts Options) (*Widget, error) {
	if opts.Client == nil {
		return nil, errors.New("chat widget: client is required")
	}

	rateLimit := retry.DefaultConfig()
	if opts.RateLimit != nil {
		rateLimit = *opts.RateLimit
	}

	eventBuffer := opts.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Widget{
		client:          opts.Client,
		lang:            opts.Lang,
		labels:          i18n.MergeLabels(opts.Lang, opts.Labels),
		greeting:        opts.Greeting,
		hideSuggestions: opts.HideSuggestions,
		requestTimeout:  opts.RequestTimeout,
		logger:          logger.OrNoop(opts.Logger),
		tokenCounter:    opts.TokenCounter,
		status:          StatusReady,
		stats:           Stats{FailuresByKind: map[error_classifier.ErrorKind]int{}},
		eventChan:       make(chan *Event, eventBuffer),
		ctx:             ctx,
		cancel:          cancel,
	}

	w.controller = retry.NewController(retry.Options{
		Config:        rateLimit,
		OnRetry:       w.handleAutoRetry,
		OnStateChange: w.handleRetryState,
		Scheduler:     opts.Scheduler,
		Random:        opts.Random,
		Logger:        w.logger,
	})

	w.session.Store(uuid.NewString())
	w.messages = w.initialMessages()

	return w, nil
}

func (w *Widget) initialMessages() []chat.Message {
	if w.greeting == "" {
		return []chat.Message{}
	}
	return []chat.Message{{ID: GreetingMessageID, Role: chat.RoleAssistant, Content: w.greeting}}
}

// SessionID identifies the current conversation. It changes on Restart.
func (w *Widget) SessionID() string {
	return w.session.Load().(string)
}

// Labels returns the resolved labels.
func (w *Widget) Labels() i18n.Labels {
	return w.labels
}

// RetryState returns the countdown, auto retry flag and attempt of the current rate limit episode.
func (w *Widget) RetryState() retry.State {
	return w.controller.State()
}

// SendMessage appends a user message and streams the reply, returning the attempt's error.
// Blank text is rejected with ErrEmptyMessage and a second request while one is in flight with ErrBusy.
func (w *Widget) SendMessage(ctx context.Context, text string) error {
	a, err := w.submit(ctx, text)
	if err != nil {
		return err
	}
	return w.run(a)
}

// SendMessageAsync validates and records the message, then streams the reply in the background.
func (w *Widget) SendMessageAsync(text string) error {
	a, err := w.submit(w.ctx, text)
	if err != nil {
		return err
	}
	go w.run(a)
	return nil
}

// Regenerate drops the trailing assistant reply and asks again for the last user message.
func (w *Widget) Regenerate(ctx context.Context) error {
	a, err := w.regenerate(ctx, TriggerRegenerate)
	if err != nil {
		return err
	}
	return w.run(a)
}

// Retry is the retry button: it resets the rate limit episode and regenerates in the background.
func (w *Widget) Retry() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.isLoadingLocked() {
		w.mu.Unlock()
		return ErrBusy
	}
	w.mu.Unlock()

	w.controller.Reset()
	return w.retry(TriggerManualRetry)
}

// CancelAutoRetry stops a pending automatic retry. The error stays visible.
func (w *Widget) CancelAutoRetry() {
	before, after := w.controller.CancelAutoRetry()

	if before.IsAutoRetrying {
		w.emitEvent(EventAutoRetryCancelled, map[string]any{
			"attempt": after.Attempt,
		})
	}
}

// Restart abandons any in-flight request and starts a new session with only the greeting.
func (w *Widget) Restart() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}

	w.runID++
	if w.cancelRun != nil {
		w.cancelRun()
		w.cancelRun = nil
	}
	previous := w.SessionID()
	w.session.Store(uuid.NewString())
	w.messages = w.initialMessages()
	w.status = StatusReady
	w.lastError = nil
	w.classification = nil
	w.stats.Restarts++

	w.feedMu.Lock()
	w.mu.Unlock()
	w.controller.OnClassification(nil)
	w.feedMu.Unlock()

	w.logger.Printf("[chat_widget] session %s restarted as %s", previous, w.SessionID())
	w.emitEvent(EventSessionRestart, map[string]any{
		"previous_session_id": previous,
	})
	return nil
}

// Wait blocks until every in-flight attempt has finished.
func (w *Widget) Wait() {
	w.wg.Wait()
}

// Close cancels in-flight requests, stops retry timers and closes the event channel.
func (w *Widget) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.runID++
	if w.cancelRun != nil {
		w.cancelRun()
		w.cancelRun = nil
	}
	w.mu.Unlock()

	w.controller.Close()
	w.cancel()
	w.wg.Wait()
	w.closeEvents()
	return nil
}

func (w *Widget) isLoadingLocked() bool {
	return w.status == StatusSubmitted || w.status == StatusStreaming
}

func (w *Widget) submit(ctx context.Context, text string) (*attempt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if w.isLoadingLocked() {
		w.mu.Unlock()
		return nil, ErrBusy
	}

	message := chat.Message{ID: uuid.NewString(), Role: chat.RoleUser, Content: text}
	w.messages = append(w.messages, message)
	a := w.beginLocked(ctx, TriggerSubmit)
	w.mu.Unlock()

	w.emitEvent(EventMessageSent, map[string]any{
		"message_id": message.ID,
		"length":     len(text),
	})
	return a, nil
}

func (w *Widget) regenerate(ctx context.Context, trigger Trigger) (*attempt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if w.isLoadingLocked() {
		return nil, ErrBusy
	}

	lastUser := -1
	for i := len(w.messages) - 1; i >= 0; i-- {
		if w.messages[i].Role == chat.RoleUser {
			lastUser = i
			break
		}
	}
	if lastUser < 0 {
		return nil, ErrNothingToRegenerate
	}
	w.messages = w.messages[:lastUser+1]

	switch trigger {
	case TriggerAutoRetry:
		w.stats.AutoRetries++
	case TriggerManualRetry:
		w.stats.ManualRetries++
	}

	return w.beginLocked(ctx, trigger), nil
}

// beginLocked marks a new attempt as the active one. Results of older attempts are discarded.
func (w *Widget) beginLocked(parent context.Context, trigger Trigger) *attempt {
	w.runID++

	ctx, cancel := context.WithCancel(parent)
	stopOnClose := context.AfterFunc(w.ctx, cancel)

	release := func() {
		stopOnClose()
		cancel()
	}
	if w.requestTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, w.requestTimeout)
		release = func() {
			cancelTimeout()
			stopOnClose()
			cancel()
		}
	}

	w.cancelRun = cancel
	w.status = StatusSubmitted
	w.stats.Requests++
	w.wg.Add(1)

	return &attempt{
		id:      w.runID,
		trigger: trigger,
		ctx:     ctx,
		release: release,
		request: chat.Request{
			SessionID: w.SessionID(),
			Lang:      w.lang,
			Messages:  slices.Clone(w.messages),
		},
	}
}

func (w *Widget) run(a *attempt) error {
	defer w.wg.Done()
	defer a.release()

	w.emitEvent(EventStreamStarted, map[string]any{
		"trigger":  string(a.trigger),
		"messages": len(a.request.Messages),
	})

	assistantID := uuid.NewString()
	started := false

	completion, err := w.client.StreamChat(a.ctx, a.request, func(delta string) {
		w.mu.Lock()
		if a.id != w.runID {
			w.mu.Unlock()
			return
		}
		if !started {
			started = true
			w.status = StatusStreaming
			w.messages = append(w.messages, chat.Message{ID: assistantID, Role: chat.RoleAssistant})
		}
		w.messages[len(w.messages)-1].Content += delta
		w.mu.Unlock()

		w.emitEvent(EventMessageDelta, map[string]any{
			"message_id": assistantID,
			"delta":      delta,
		})
	})

	if err == nil && completion == nil {
		completion = &chat.Completion{}
	}
	if err != nil {
		return w.fail(a, err)
	}
	return w.complete(a, assistantID, started, completion)
}

func (w *Widget) complete(a *attempt, assistantID string, started bool, completion *chat.Completion) error {
	promptTokens, completionTokens := completion.PromptTokens, completion.CompletionTokens
	if w.tokenCounter != nil {
		promptTokens, completionTokens, _ = w.tokenCounter.GetTokenCountFromCompletion(completion)
		if promptTokens == 0 {
			promptTokens = w.tokenCounter.CountChatMessagesTokens(a.request.Messages)
		}
	}

	w.mu.Lock()
	if a.id != w.runID {
		w.mu.Unlock()
		return nil
	}

	if !started && completion.Text != "" {
		w.messages = append(w.messages, chat.Message{ID: assistantID, Role: chat.RoleAssistant, Content: completion.Text})
		started = true
	}
	if started && len(completion.Suggestions) > 0 {
		w.messages[len(w.messages)-1].Suggestions = slices.Clone(completion.Suggestions)
	}

	w.cancelRun = nil
	w.status = StatusReady
	w.lastError = nil
	w.classification = nil
	w.stats.Completed++
	w.stats.PromptTokens += promptTokens
	w.stats.CompletionTokens += completionTokens

	w.feedMu.Lock()
	w.mu.Unlock()
	w.controller.OnClassification(nil)
	w.feedMu.Unlock()

	w.emitEvent(EventStreamCompleted, map[string]any{
		"trigger":           string(a.trigger),
		"finish_reason":     completion.FinishReason,
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
		"suggestions":       len(completion.Suggestions),
	})
	return nil
}

func (w *Widget) fail(a *attempt, cause error) error {
	// A fresh wrapper per failure keeps repeated sentinel errors distinct episodes.
	failure := fmt.Errorf("chat request: %w", cause)
	classification := error_classifier.Classify(failure)

	w.mu.Lock()
	if a.id != w.runID {
		w.mu.Unlock()
		return failure
	}

	w.cancelRun = nil
	w.status = StatusError
	w.lastError = failure
	w.classification = classification
	w.stats.Failures++
	w.stats.FailuresByKind[classification.Kind]++

	w.feedMu.Lock()
	w.mu.Unlock()
	w.controller.OnClassification(classification)
	w.feedMu.Unlock()

	w.logger.Errorf("[chat_widget] %s attempt failed (%s): %v", a.trigger, classification.Kind, cause)
	w.emitEvent(EventStreamFailed, map[string]any{
		"trigger": string(a.trigger),
		"error":   cause.Error(),
	})
	w.emitEvent(EventErrorClassified, map[string]any{
		"kind":        string(classification.Kind),
		"status_code": classification.StatusCode,
		"retry_after": classification.RetryAfter(),
		"retriable":   classification.IsRetriable(),
	})
	return failure
}

// LastError returns the error of the most recent failed attempt, or nil after a success.
func (w *Widget) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// handleAutoRetry is the controller's retry callback. Manual retries bypass it.
func (w *Widget) handleAutoRetry() {
	if err := w.retry(TriggerAutoRetry); err != nil {
		w.logger.Printf("[chat_widget] %s skipped: %v", TriggerAutoRetry, err)
	}
}

func (w *Widget) retry(trigger Trigger) error {
	a, err := w.regenerate(w.ctx, trigger)
	if err != nil {
		return err
	}

	eventType := EventAutoRetryFired
	if trigger == TriggerManualRetry {
		eventType = EventManualRetry
	}
	w.emitEvent(eventType, nil)

	go w.run(a)
	return nil
}

func (w *Widget) handleRetryState(state retry.State) {
	w.emitEvent(EventRetryState, map[string]any{
		"countdown":        state.CountdownSeconds,
		"is_auto_retrying": state.IsAutoRetrying,
		"attempt":          state.Attempt,
	})
}
