package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"

	"fashionstudio/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindTransport ErrorKind = "transport"
	KindTimeout   ErrorKind = "timeout"
	KindProvider  ErrorKind = "provider"
	KindInvalid   ErrorKind = "invalid"
)

// StatusMisdirectedRequest is what edge proxies answer on SNI / TLS mismatches.
// It is the one non-5xx status treated as a transport failure.
const StatusMisdirectedRequest = http.StatusMisdirectedRequest

var (
	ErrPollTimeout     = errors.New("operation did not finish within the polling budget")
	ErrMissingResult   = errors.New("operation finished without a result uri")
	ErrNoStrategies    = errors.New("no strategies configured")
	ErrEmptyAudio      = errors.New("provider returned empty audio")
	ErrNoInlineImage   = errors.New("model returned no image")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// ProviderError is the typed failure every provider call resolves to.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(kind ErrorKind, provider string, status int, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Status: status, Message: message}
}

// HTTPError builds a ProviderError out of a non-2xx response.
func HTTPError(provider string, status int, body []byte) *ProviderError {
	return &ProviderError{
		Kind:     Classify(status, body),
		Provider: provider,
		Status:   status,
		Message:  snippet(body),
	}
}

// TransportError wraps a failed round trip.
func TransportError(provider string, err error) *ProviderError {
	kind := KindTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// Classify maps a status and an upstream body to an error kind.
func Classify(status int, body []byte) ErrorKind {
	text := string(body)
	switch {
	case status >= 500, status == StatusMisdirectedRequest:
		return KindTransport
	case status == http.StatusTooManyRequests,
		strings.Contains(strings.ToLower(text), "quota"),
		strings.Contains(text, "RESOURCE_EXHAUSTED"):
		return KindQuota
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		strings.Contains(text, "PERMISSION_DENIED"),
		strings.Contains(text, "API_KEY_INVALID"):
		return KindAuth
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusUnprocessableEntity:
		return KindInvalid
	default:
		return KindProvider
	}
}

// lastFailure follows err down its chain and, at a joined error, keeps only
// the last branch: the failure that ended a fallback chain.
func lastFailure(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			if errs := joined.Unwrap(); len(errs) > 0 {
				return lastFailure(errs[len(errs)-1])
			}
			return err
		}
	}
	return err
}

func KindOf(err error) ErrorKind {
	err = lastFailure(err)
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	switch {
	case errors.Is(err, ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrUnsupportedType):
		return KindInvalid
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	return KindProvider
}

// IsTransportFailure reports whether retrying over another network path makes sense.
func IsTransportFailure(err error) bool {
	return KindOf(err) == KindTransport
}

// ReopenKeyDialog is true for errors the user can only fix with another key.
func ReopenKeyDialog(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind == KindAuth && providerErr.Status != http.StatusUnauthorized
	}
	return false
}

func snippet(body []byte) string {
	const limit = 512
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

var messages = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(kind ErrorKind, en, vi string) {
		b.SetString(language.English, string(kind), en)
		b.SetString(language.Vietnamese, string(kind), vi)
	}
	set(KindAuth,
		"Your API key was rejected. Please select a valid key.",
		"Khóa API của bạn bị từ chối. Vui lòng chọn khóa hợp lệ.")
	set(KindQuota,
		"The API quota is exhausted. Please wait a moment or use another key.",
		"Đã hết hạn mức API. Vui lòng đợi một lát hoặc dùng khóa khác.")
	set(KindTransport,
		"Could not reach the AI service. Please try again.",
		"Không thể kết nối tới dịch vụ AI. Vui lòng thử lại.")
	set(KindTimeout,
		"The AI service took too long to respond.",
		"Dịch vụ AI phản hồi quá lâu.")
	set(KindProvider,
		"The AI service could not complete the request.",
		"Dịch vụ AI không thể hoàn tất yêu cầu.")
	set(KindInvalid,
		"The request was not valid.",
		"Yêu cầu không hợp lệ.")
	return b
}

// LocalizedMessage turns any error into the user-facing text for its kind.
func LocalizedMessage(err error, lang models.Language) string {
	if !slices.Contains(models.SupportedLanguages, lang) {
		lang = models.SupportedLanguages[0]
	}
	p := message.NewPrinter(lang.Tag(), message.Catalog(messages))
	return p.Sprintf(string(KindOf(err)))
}
