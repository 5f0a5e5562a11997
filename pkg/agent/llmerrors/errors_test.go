package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{400, ErrorTypeBadPrompt},
		{413, ErrorTypeBadPrompt},
		{500, ErrorTypeTransient},
		{503, ErrorTypeTransient},
		{302, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForStatus(tt.status))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil, 0, ""))

	e := Classify(context.Canceled, 0, "")
	assert.Equal(t, ErrorTypeCancelled, e.Type)
	assert.False(t, e.IsRetryable())

	e = Classify(fmt.Errorf("call: %w", context.DeadlineExceeded), 0, "")
	assert.Equal(t, ErrorTypeTransient, e.Type)
	assert.True(t, e.IsRetryable())

	e = Classify(errors.New("bad key"), 401, strings.Repeat("x", 1000))
	assert.Equal(t, ErrorTypeAuth, e.Type)
	assert.Equal(t, 401, e.StatusCode)
	assert.Len(t, e.BodyStub, 256)
	assert.False(t, e.IsRetryable())

	e = Classify(errors.New("Rate limit reached for gpt-4"), 0, "")
	assert.Equal(t, ErrorTypeRateLimit, e.Type)

	e = Classify(errors.New("read: connection reset by peer"), 0, "")
	assert.Equal(t, ErrorTypeTransient, e.Type)

	e = Classify(errors.New("something odd"), 0, "")
	assert.Equal(t, ErrorTypeUnknown, e.Type)
	assert.True(t, e.IsRetryable())

	already := NewError(ErrorTypeEmptyResponse, "no content")
	assert.Same(t, already, Classify(fmt.Errorf("wrap: %w", already), 500, ""))
}

func TestIsAndTypeOf(t *testing.T) {
	base := NewErrorWithStatus(ErrorTypeRateLimit, 429, "slow down")
	wrapped := fmt.Errorf("attempt 2: %w", base)

	assert.True(t, Is(wrapped, ErrorTypeRateLimit))
	assert.False(t, Is(wrapped, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "")
	assert.Equal(t, "LLM error (transient): dial tcp: refused", err.Error())
	require.ErrorIs(t, err, cause)

	assert.Equal(t, "LLM error (auth): status 401", (&Error{Type: ErrorTypeAuth, StatusCode: 401}).Error())
	assert.Equal(t, "invalid", ErrorType(99).String())
}

func TestSanitizePrompt(t *testing.T) {
	short := "short prompt"
	assert.Equal(t, short, SanitizePrompt(short, 100))

	long := strings.Repeat("a", 500) + strings.Repeat("b", 500)
	out := SanitizePrompt(long, 200)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 100)))
	assert.Contains(t, out, "[1000 chars, hash:")
}
