package ai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassifyGenerationError_HTTPCodes(t *testing.T) {
	cases := []struct {
		code int
		want GenerationErrorClass
	}{
		{401, ErrClassAuth},
		{403, ErrClassAuth},
		{429, ErrClassRateLimited},
		{404, ErrClassModelIncompatible},
		{500, ErrClassTransient},
		{503, ErrClassTransient},
	}

	for _, tc := range cases {
		err := &googleapi.Error{Code: tc.code, Message: "backend said no"}
		assert.Equal(t, tc.want, ClassifyGenerationError(err), "code %d", tc.code)
	}
}

func TestClassifyGenerationError_WrappedAPIError(t *testing.T) {
	err := fmt.Errorf("generate content: %w", &googleapi.Error{Code: 429})
	assert.Equal(t, ErrClassRateLimited, ClassifyGenerationError(err))
}

func TestClassifyGenerationError_MessageSniffing(t *testing.T) {
	cases := []struct {
		msg  string
		want GenerationErrorClass
	}{
		{"API key not valid", ErrClassAuth},
		{"quota exceeded for project", ErrClassRateLimited},
		{"RESOURCE EXHAUSTED: too many requests", ErrClassRateLimited},
		{"rate limit hit", ErrClassRateLimited},
		{"model gemini-x not found", ErrClassModelIncompatible},
		{"this model is not supported for generateContent", ErrClassModelIncompatible},
		{"unknown model name", ErrClassModelIncompatible},
		{"context deadline exceeded", ErrClassTransient},
		{"connection reset by peer", ErrClassTransient},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyGenerationError(errors.New(tc.msg)), "message %q", tc.msg)
	}
}

func TestShouldRetryWithFallback(t *testing.T) {
	assert.True(t, ShouldRetryWithFallback(errors.New("model gemini-x not found")))
	assert.True(t, ShouldRetryWithFallback(&googleapi.Error{Code: 404}))

	assert.False(t, ShouldRetryWithFallback(errors.New("quota exceeded")))
	assert.False(t, ShouldRetryWithFallback(errors.New("API key not valid")))
	assert.False(t, ShouldRetryWithFallback(errors.New("connection reset")))
	assert.False(t, ShouldRetryWithFallback(ErrEmptyResponse))
}
