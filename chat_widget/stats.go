package chat_widget

import (
	"maps"

	"github.com/FrenchMajesty/chat-widget/error_classifier"
)

type Stats struct {
	Requests         int                                `json:"requests"`
	Completed        int                                `json:"completed"`
	Failures         int                                `json:"failures"`
	FailuresByKind   map[error_classifier.ErrorKind]int `json:"failuresByKind"`
	AutoRetries      int                                `json:"autoRetries"`
	ManualRetries    int                                `json:"manualRetries"`
	Restarts         int                                `json:"restarts"`
	PromptTokens     int                                `json:"promptTokens"`
	CompletionTokens int                                `json:"completionTokens"`
}

// Stats returns a snapshot of the widget counters.
func (w *Widget) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.FailuresByKind = maps.Clone(w.stats.FailuresByKind)
	return stats
}
