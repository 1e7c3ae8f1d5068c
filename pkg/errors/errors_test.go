// Package errors_test provides unit tests for the AppError type, factory
// functions, and error-chain helpers defined in pkg/errors/errors.go.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ipscope/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.ErrCodeInternal, "unexpected failure"},
		{"empty assignee", errors.ErrCodeEmptyAssignee, "assignee name must not be empty"},
		{"source timeout", errors.ErrCodeSourceTimeout, "patents registry timed out"},
		{"recount not found", errors.ErrCodeRecountNotFound, "recount abc123 not found"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail, "Detail should be empty for bare New()")
			assert.Nil(t, ae.Cause, "Cause should be nil for bare New()")
		})
	}
}

func TestNew_StackIsPopulated(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeInternal, "test")
	require.NotNil(t, ae)
	assert.Contains(t, ae.Stack, "errors_test.go")
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeEmptyAssignee, "assignee name must not be empty")
	assert.Equal(t, "[VAL_001] assignee name must not be empty", ae.Error())

	withDetail := ae.WithDetail(`assignee=""`)
	assert.Equal(t, `[VAL_001] assignee name must not be empty: assignee=""`, withDetail.Error())
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	result := errors.Wrap(nil, errors.ErrCodeInternal, "should not matter")
	assert.Nil(t, result)
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("connection refused")
	wrapped := errors.Wrap(root, errors.ErrCodeEventPublishFailed, "publish failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.ErrCodeEventPublishFailed, wrapped.Code)
	assert.Equal(t, "publish failed", wrapped.Message)
	assert.Equal(t, root, wrapped.Cause)

	unwrapped := stderrors.Unwrap(wrapped)
	assert.Equal(t, root, unwrapped)
}

func TestWrap_UnknownCodePreservesOriginal(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeRecountNotFound, "recount missing")
	outer := errors.Wrap(inner, errors.CodeUnknown, "adding context")

	require.NotNil(t, outer)
	assert.Equal(t, errors.ErrCodeRecountNotFound, outer.Code)
}

func TestWrap_WorksWithErrorsIs(t *testing.T) {
	t.Parallel()

	sentinel := stderrors.New("sentinel")
	chained := fmt.Errorf("middle: %w", sentinel)
	ae := errors.Wrap(chained, errors.ErrCodeInternal, "outer")

	assert.True(t, stderrors.Is(ae, sentinel))
}

func TestWithDetail_DoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	base := errors.New(errors.ErrCodeValidation, "validation failed")
	detailed := base.WithDetail("tryVariants=banana")

	assert.Empty(t, base.Detail)
	assert.Equal(t, "tryVariants=banana", detailed.Detail)
	assert.Equal(t, base.Code, detailed.Code)
}

func TestWithDetail_NilReceiver(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("ignored"))
	assert.Nil(t, ae.WithCause(stderrors.New("ignored")))
}

func TestWithCause_AttachesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("dial tcp: timeout")
	ae := errors.New(errors.ErrCodeSourceUnavailable, "registry down").WithCause(cause)

	assert.Equal(t, cause, stderrors.Unwrap(ae))
}

func TestIsCode_FindsCodeAnywhereInChain(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeEmptyAssignee, "empty")
	middle := fmt.Errorf("handler: %w", inner)
	outer := errors.Wrap(middle, errors.ErrCodeInternal, "request failed")

	assert.True(t, errors.IsCode(outer, errors.ErrCodeEmptyAssignee))
	assert.True(t, errors.IsCode(outer, errors.ErrCodeInternal))
	assert.False(t, errors.IsCode(outer, errors.ErrCodeRecountNotFound))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeInternal))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.NotFound("gone")))
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeRecountNotFound, "recount gone")))
	assert.False(t, errors.IsNotFound(errors.Internal("boom")))
	assert.False(t, errors.IsNotFound(stderrors.New("plain")))
	assert.False(t, errors.IsNotFound(nil))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))

	ae := errors.New(errors.ErrCodeSourceParseError, "bad body")
	wrapped := fmt.Errorf("adapter: %w", ae)
	assert.Equal(t, errors.ErrCodeSourceParseError, errors.GetCode(wrapped))
}

func TestConvenienceFactories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  *errors.AppError
		code errors.ErrorCode
	}{
		{"NotFound", errors.NotFound("x"), errors.ErrCodeNotFound},
		{"InvalidParam", errors.InvalidParam("x"), errors.ErrCodeBadRequest},
		{"Validation", errors.Validation("x"), errors.ErrCodeValidation},
		{"Internal", errors.Internal("x"), errors.ErrCodeInternal},
		{"RateLimit", errors.RateLimit("x"), errors.ErrCodeTooManyRequests},
		{"Unavailable", errors.Unavailable("x"), errors.ErrCodeServiceUnavailable},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.NotNil(t, tc.err)
			assert.Equal(t, tc.code, tc.err.Code)
		})
	}
}

func TestStack_SkipsRuntimeFrames(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeInternal, "test")
	for _, line := range strings.Split(ae.Stack, "\n") {
		assert.NotContains(t, line, "runtime/")
	}
}
