package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	notConnected := NewNotConnectedError("not connected")

	assert.True(t, errors.Is(notConnected, &Error{Kind: KindNotConnected}))
	assert.True(t, errors.Is(notConnected, &Error{}))
	assert.False(t, errors.Is(notConnected, &Error{Kind: KindConflict}))
	assert.False(t, errors.Is(notConnected, errors.New("not connected")))

	wrapped := fmt.Errorf("loading users: %w", notConnected)
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindNotConnected}))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("driver exploded")
	err := NewInternalError("something failed", cause)

	assert.Equal(t, "something failed", err.Error())
	assert.ErrorIs(t, err, cause)

	var target *Error
	require.True(t, errors.As(fmt.Errorf("ctx: %w", err), &target))
	assert.Equal(t, KindInternal, target.Kind)
	assert.Equal(t, "INTERNAL", target.Code)
}

func TestError_WithMessage(t *testing.T) {
	base := NewInvalidConfigError("invalid", []FieldError{{Field: "client", Error: "is required"}})
	copied := base.WithMessage("config is broken")

	assert.Equal(t, "invalid", base.Message)
	assert.Equal(t, "config is broken", copied.Message)
	assert.Equal(t, base.Code, copied.Code)
	assert.Equal(t, base.Fields, copied.Fields)
}

func TestConstructorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code string
	}{
		{name: "invalid config", err: NewInvalidConfigError("x", nil), code: "INVALID_CONFIG"},
		{name: "not connected", err: NewNotConnectedError("x"), code: "NOT_CONNECTED"},
		{name: "unsupported", err: NewUnsupportedError("x"), code: "UNSUPPORTED"},
		{name: "not found default", err: NewNotFoundError("x", nil, nil), code: "NOT_FOUND"},
		{name: "conflict custom", err: NewConflictError("x", "USER_ALREADY_EXISTS", nil), code: "USER_ALREADY_EXISTS"},
		{name: "invalid input custom", err: NewInvalidInputError("x", "USER_REQUIRED", nil, nil), code: "USER_REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestMakeUpperCaseWithUnderscores(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST", MakeUpperCaseWithUnderscores("Bad Request"))
	assert.Equal(t, "", MakeUpperCaseWithUnderscores(""))
}
