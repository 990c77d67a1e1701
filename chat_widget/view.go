package chat_widget

import (
	"slices"

	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/FrenchMajesty/chat-widget/error_classifier"
	"github.com/FrenchMajesty/chat-widget/i18n"
	"github.com/FrenchMajesty/chat-widget/utils/retry"
)

// View is everything a front end needs to render the widget.
type View struct {
	SessionID   string         `json:"sessionId"`
	Status      Status         `json:"status"`
	IsLoading   bool           `json:"isLoading"`
	Messages    []chat.Message `json:"messages"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Labels      i18n.Labels    `json:"labels"`
	Error       *ErrorView     `json:"error,omitempty"`
}

// ErrorView describes the failure bubble. Rate limit failures carry the countdown.
type ErrorView struct {
	Kind           error_classifier.ErrorKind `json:"kind"`
	Text           string                     `json:"text"`
	RetryLabel     string                     `json:"retryLabel"`
	CancelLabel    string                     `json:"cancelLabel,omitempty"`
	CountdownText  string                     `json:"countdownText,omitempty"`
	Countdown      int                        `json:"countdown"`
	IsAutoRetrying bool                       `json:"isAutoRetrying"`
	Attempt        int                        `json:"attempt"`
	IsRetriable    bool                       `json:"isRetriable"`
	StatusCode     int                        `json:"statusCode,omitempty"`
}

// View returns a snapshot of the widget state.
func (w *Widget) View() View {
	retryState := w.controller.State()

	w.mu.Lock()
	defer w.mu.Unlock()

	view := View{
		SessionID: w.SessionID(),
		Status:    w.status,
		IsLoading: w.isLoadingLocked(),
		Messages:  slices.Clone(w.messages),
		Labels:    w.labels,
	}

	if !view.IsLoading && !w.hideSuggestions && len(w.messages) > 0 {
		if last := w.messages[len(w.messages)-1]; last.Role == chat.RoleAssistant {
			view.Suggestions = slices.Clone(last.Suggestions)
		}
	}

	if w.status == StatusError && w.classification != nil {
		view.Error = w.errorViewLocked(w.classification, retryState)
	}

	return view
}

func (w *Widget) errorViewLocked(classification *error_classifier.Classification, retryState retry.State) *ErrorView {
	ev := &ErrorView{
		Kind:        classification.Kind,
		Text:        w.labels.Error,
		RetryLabel:  w.labels.Retry,
		IsRetriable: classification.IsRetriable(),
		StatusCode:  classification.StatusCode,
	}

	if classification.Kind != error_classifier.ErrorKindRateLimit {
		return ev
	}

	ev.Text = w.labels.RateLimitError
	ev.Countdown = retryState.CountdownSeconds
	ev.IsAutoRetrying = retryState.IsAutoRetrying
	ev.Attempt = retryState.Attempt
	ev.CountdownText = w.labels.Countdown(retryState.CountdownSeconds, retryState.IsAutoRetrying)
	if retryState.IsAutoRetrying {
		ev.CancelLabel = w.labels.CancelAutoRetry
	}
	return ev
}
