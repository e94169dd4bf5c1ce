package ai

import (
	"errors"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrEmptyResponse means the model returned no usable candidates. This is
// not a generation failure: callers should answer with an explicit
// "insufficient information" reply rather than an error.
var ErrEmptyResponse = errors.New("model returned no candidates")

// GenerationErrorClass buckets LLM call failures so the generator knows
// whether a fallback model retry can help.
type GenerationErrorClass int

const (
	// ErrClassTransient covers timeouts and 5xx responses. A later retry
	// may succeed but switching models will not reliably help.
	ErrClassTransient GenerationErrorClass = iota

	// ErrClassModelIncompatible means the configured model is unknown or
	// unavailable. Retrying once with the fallback model is worthwhile.
	ErrClassModelIncompatible

	// ErrClassRateLimited means quota is exhausted. A fallback model call
	// would consume the same quota, so no retry.
	ErrClassRateLimited

	// ErrClassAuth means the API key is invalid or lacks permission.
	// No model switch can fix that.
	ErrClassAuth
)

// ClassifyGenerationError inspects an error from the Gemini SDK and
// assigns it a class. The SDK surfaces googleapi.Error for HTTP level
// failures; message sniffing covers the rest.
func ClassifyGenerationError(err error) GenerationErrorClass {
	if err == nil {
		return ErrClassTransient
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return ErrClassAuth
		case 429:
			return ErrClassRateLimited
		case 404:
			return ErrClassModelIncompatible
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"):
		return ErrClassAuth
	case strings.Contains(msg, "quota") || strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "rate limit"):
		return ErrClassRateLimited
	case strings.Contains(msg, "not found") || strings.Contains(msg, "is not supported") || strings.Contains(msg, "unknown model") || strings.Contains(msg, "model is unavailable"):
		return ErrClassModelIncompatible
	}

	return ErrClassTransient
}

// ShouldRetryWithFallback reports whether retrying the same request on
// the fallback model makes sense for this error.
func ShouldRetryWithFallback(err error) bool {
	return ClassifyGenerationError(err) == ErrClassModelIncompatible
}
