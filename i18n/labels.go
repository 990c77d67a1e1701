package i18n

import (
	"fmt"
	"sync"

	"golang.org/x/text/language"
)

// Labels holds every user-facing string the widget renders.
type Labels struct {
	Title            string `json:"title" yaml:"title"`
	Placeholder      string `json:"placeholder" yaml:"placeholder"`
	Send             string `json:"send" yaml:"send"`
	Close            string `json:"close" yaml:"close"`
	Open             string `json:"open" yaml:"open"`
	Thinking         string `json:"thinking" yaml:"thinking"`
	Error            string `json:"error" yaml:"error"`
	Retry            string `json:"retry" yaml:"retry"`
	SuggestionsTitle string `json:"suggestionsTitle" yaml:"suggestions_title"`
	Restart          string `json:"restart" yaml:"restart"`
	RateLimitError   string `json:"rateLimitError" yaml:"rate_limit_error"`
	RateLimitRetryIn string `json:"rateLimitRetryIn" yaml:"rate_limit_retry_in"`
	AutoRetrying     string `json:"autoRetrying" yaml:"auto_retrying"`
	CancelAutoRetry  string `json:"cancelAutoRetry" yaml:"cancel_auto_retry"`
}

var English = Labels{
	Title:            "Chat Assistant",
	Placeholder:      "Type your message...",
	Send:             "Send message",
	Close:            "Close chat",
	Open:             "Open chat",
	Thinking:         "Thinking",
	Error:            "Something went wrong. Please try again.",
	Retry:            "Retry",
	SuggestionsTitle: "Suggested questions",
	Restart:          "Restart chat",
	RateLimitError:   "Too many requests. Please wait a moment before trying again.",
	RateLimitRetryIn: "You can retry in",
	AutoRetrying:     "Retrying in",
	CancelAutoRetry:  "Cancel",
}

var Spanish = Labels{
	Title:            "Asistente de Chat",
	Placeholder:      "Escribe tu mensaje...",
	Send:             "Enviar mensaje",
	Close:            "Cerrar chat",
	Open:             "Abrir chat",
	Thinking:         "Pensando",
	Error:            "Algo salió mal. Por favor, intenta de nuevo.",
	Retry:            "Reintentar",
	SuggestionsTitle: "Preguntas sugeridas",
	Restart:          "Reiniciar chat",
	RateLimitError:   "Demasiadas solicitudes. Espera un momento antes de intentarlo de nuevo.",
	RateLimitRetryIn: "Puedes reintentar en",
	AutoRetrying:     "Reintentando en",
	CancelAutoRetry:  "Cancelar",
}

// builtIn is ordered; the first entry is the matcher's fallback.
var builtIn = []struct {
	tag    language.Tag
	labels Labels
}{
	{language.English, English},
	{language.Spanish, Spanish},
}

var (
	matcherOnce sync.Once
	matcher     language.Matcher
)

func builtInMatcher() language.Matcher {
	matcherOnce.Do(func() {
		tags := make([]language.Tag, len(builtIn))
		for i, entry := range builtIn {
			tags[i] = entry.tag
		}
		matcher = language.NewMatcher(tags)
	})
	return matcher
}

// GetLabels returns the built-in labels closest to lang ("es-MX" gets Spanish).
// Unknown or malformed languages get English.
func GetLabels(lang string) Labels {
	tag, err := language.Parse(lang)
	if err != nil {
		return English
	}

	_, index, confidence := builtInMatcher().Match(tag)
	if confidence == language.No {
		return English
	}
	return builtIn[index].labels
}

// IsBuiltIn reports whether lang resolves to a built-in translation other than the fallback.
func IsBuiltIn(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	_, _, confidence := builtInMatcher().Match(tag)
	return confidence != language.No
}

// MergeLabels applies the non-empty fields of overrides on top of the labels for lang.
func MergeLabels(lang string, overrides Labels) Labels {
	merged := GetLabels(lang)

	apply := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	apply(&merged.Title, overrides.Title)
	apply(&merged.Placeholder, overrides.Placeholder)
	apply(&merged.Send, overrides.Send)
	apply(&merged.Close, overrides.Close)
	apply(&merged.Open, overrides.Open)
	apply(&merged.Thinking, overrides.Thinking)
	apply(&merged.Error, overrides.Error)
	apply(&merged.Retry, overrides.Retry)
	apply(&merged.SuggestionsTitle, overrides.SuggestionsTitle)
	apply(&merged.Restart, overrides.Restart)
	apply(&merged.RateLimitError, overrides.RateLimitError)
	apply(&merged.RateLimitRetryIn, overrides.RateLimitRetryIn)
	apply(&merged.AutoRetrying, overrides.AutoRetrying)
	apply(&merged.CancelAutoRetry, overrides.CancelAutoRetry)

	return merged
}

// Countdown renders "Retrying in 5s" when an auto retry is armed and "You can retry in 5s" otherwise.
// It returns an empty string once the countdown is over.
func (l Labels) Countdown(seconds int, autoRetrying bool) string {
	if seconds <= 0 {
		return ""
	}
	prefix := l.RateLimitRetryIn
	if autoRetrying {
		prefix = l.AutoRetrying
	}
	return fmt.Sprintf("%s %ds", prefix, seconds)
}
