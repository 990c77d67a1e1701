package error_classifier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/tidwall/gjson"
)

// Probing interfaces. A failure may implement any of them anywhere in its wrap chain.
type (
	statusCoder     interface{ StatusCode() int }
	httpStatusCoder interface{ HTTPStatusCode() int }
	numericCoder    interface{ Code() int }
	httpResponder   interface{ HTTPResponse() *http.Response }
	headerCarrier   interface{ Header() http.Header }
	retryAfterer    interface{ RetryAfterSeconds() int }
	bodyCarrier     interface{ ResponseBody() []byte }
)

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate.?limit`),
	regexp.MustCompile(`(?i)too.?many.?requests`),
	regexp.MustCompile(`(?i)quota.?exceeded`),
	regexp.MustCompile(`(?i)throttl`),
	regexp.MustCompile(`(?i)try.?again.?later`),
	regexp.MustCompile(`(?i)request.?limit`),
	regexp.MustCompile(`(?i)api.?limit`),
}

var (
	statusInMessage     = regexp.MustCompile(`(?i)status[:\s]+(\d{3})`)
	retryAfterInMessage = regexp.MustCompile(`(?i)(?:in|after)\s+(\d+)\s*(?:second|sec|s\b)`)
)

var (
	networkKeywords = []string{"network", "fetch", "connection", "timeout", "offline"}
	authKeywords    = []string{"unauthorized", "forbidden", "auth"}
	serverKeywords  = []string{"server", "internal"}
)

var bodyStatusPaths = []string{
	"status",
	"statusCode",
	"code",
	"error.status",
	"error.code",
	"response.status",
	"response.statusCode",
}

var bodyRetryAfterPaths = []string{
	"retryAfter",
	"retryAfterSeconds",
	"retry_after",
	"error.retry_after",
	"headers.retry-after",
}

// Classify inspects a failed call and returns its classification, or nil when err is nil.
//
//	if c := error_classifier.Classify(err); c != nil && c.Kind == error_classifier.ErrorKindRateLimit {
//	    log.Printf("rate limited, retry after %ds", c.RetryAfter())
//	}
func Classify(err error) *Classification {
	if err == nil {
		return nil
	}

	statusCode := extractStatusCode(err)
	kind := determineErrorKind(err, statusCode)

	var retryAfter *int
	if kind == ErrorKindRateLimit {
		retryAfter = extractRetryAfter(err)
	}

	return &Classification{
		Kind:              kind,
		Cause:             err,
		StatusCode:        statusCode,
		RetryAfterSeconds: retryAfter,
	}
}

// IsRateLimitError is a quick check for callers that only need to know whether err is a rate limit.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if extractStatusCode(err) == http.StatusTooManyRequests {
		return true
	}
	return matchesRateLimitPattern(err.Error())
}

func determineErrorKind(err error, statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorKindRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorKindAuth
	case statusCode >= 500:
		return ErrorKindServer
	}

	message := err.Error()
	if matchesRateLimitPattern(message) {
		return ErrorKindRateLimit
	}

	if isNetworkFailure(err) {
		return ErrorKindNetwork
	}

	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, networkKeywords):
		return ErrorKindNetwork
	case containsAny(lower, authKeywords):
		return ErrorKindAuth
	case containsAny(lower, serverKeywords):
		return ErrorKindServer
	}

	return ErrorKindGeneric
}

func matchesRateLimitPattern(message string) bool {
	for _, pattern := range rateLimitPatterns {
		if pattern.MatchString(message) {
			return true
		}
	}
	return false
}

// isNetworkFailure catches transport failures whose message may not carry a keyword,
// such as a bare context deadline. A *url.Error alone does not count: it wraps every
// client failure, including protocol errors that never reached the network.
func isNetworkFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// extractStatusCode returns 0 when no status can be found.
func extractStatusCode(err error) int {
	if code := directStatusCode(err); code > 0 {
		return code
	}

	if resp := nestedResponse(err); resp != nil && resp.StatusCode > 0 {
		return resp.StatusCode
	}

	if body := responseBody(err); len(body) > 0 {
		if code, ok := firstBodyNumber(body, bodyStatusPaths); ok && code > 0 {
			return code
		}
	}

	if match := statusInMessage.FindStringSubmatch(err.Error()); match != nil {
		if code, convErr := strconv.Atoi(match[1]); convErr == nil {
			return code
		}
	}

	return 0
}

func directStatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
		return httpErr.StatusCode
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return apiErr.StatusCode
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() > 0 {
		return sc.StatusCode()
	}

	var hsc httpStatusCoder
	if errors.As(err, &hsc) && hsc.HTTPStatusCode() > 0 {
		return hsc.HTTPStatusCode()
	}

	var nc numericCoder
	if errors.As(err, &nc) && nc.Code() > 0 {
		return nc.Code()
	}

	return 0
}

func nestedResponse(err error) *http.Response {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response
	}

	var hr httpResponder
	if errors.As(err, &hr) {
		return hr.HTTPResponse()
	}

	return nil
}

func responseBody(err error) []byte {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Body) > 0 {
		return httpErr.Body
	}

	var bc bodyCarrier
	if errors.As(err, &bc) {
		return bc.ResponseBody()
	}

	return nil
}

// extractRetryAfter returns nil when no usable hint is present.
func extractRetryAfter(err error) *int {
	if seconds, ok := directRetryAfter(err); ok {
		return &seconds
	}

	if seconds, ok := headerRetryAfter(directHeader(err)); ok {
		return &seconds
	}

	if resp := nestedResponse(err); resp != nil {
		if seconds, ok := headerRetryAfter(resp.Header); ok {
			return &seconds
		}
	}

	if body := responseBody(err); len(body) > 0 {
		if seconds, ok := firstBodyNumber(body, bodyRetryAfterPaths); ok && seconds >= 0 {
			return &seconds
		}
	}

	if match := retryAfterInMessage.FindStringSubmatch(err.Error()); match != nil {
		if seconds, convErr := strconv.Atoi(match[1]); convErr == nil {
			return &seconds
		}
	}

	return nil
}

func directRetryAfter(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfterSeconds != nil && *httpErr.RetryAfterSeconds >= 0 {
		return *httpErr.RetryAfterSeconds, true
	}

	var ra retryAfterer
	if errors.As(err, &ra) && ra.RetryAfterSeconds() >= 0 {
		return ra.RetryAfterSeconds(), true
	}

	return 0, false
}

func directHeader(err error) http.Header {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Header != nil {
		return httpErr.Header
	}

	var hc headerCarrier
	if errors.As(err, &hc) {
		return hc.Header()
	}

	return nil
}

// headerRetryAfter looks up retry-after without relying on canonical header keys, since
// headers copied from JSON or built by hand are often lower case.
func headerRetryAfter(header http.Header) (int, bool) {
	for key, values := range header {
		if !strings.EqualFold(key, "retry-after") || len(values) == 0 {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(values[0]))
		if err != nil || seconds < 0 {
			return 0, false
		}
		return seconds, true
	}
	return 0, false
}

func firstBodyNumber(body []byte, paths []string) (int, bool) {
	if !gjson.ValidBytes(body) {
		return 0, false
	}

	for _, path := range paths {
		result := gjson.GetBytes(body, path)
		switch result.Type {
		case gjson.Number:
			return int(result.Int()), true
		case gjson.String:
			if n, err := strconv.Atoi(strings.TrimSpace(result.Str)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
