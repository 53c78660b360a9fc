package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/molbayes/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"model not found", errors.ErrCodeModelNotFound, "model m1 not found"},
		{"invalid param", errors.CodeInvalidParam, "folding must not be negative"},
		{"training empty", errors.ErrCodeTrainingEmpty, "no training examples"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
		})
	}
}

func TestNew_StackIsPopulated(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeInternal, "test")
	assert.Contains(t, ae.Stack, "errors_test.go")
	assert.NotContains(t, ae.Error(), "errors_test.go", "stack is not part of Error()")
}

// ─────────────────────────────────────────────────────────────────────────────
// Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("connection refused")
	wrapped := errors.Wrap(root, errors.ErrCodeStorageError, "upload model")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.ErrCodeStorageError, wrapped.Code)
	assert.Equal(t, "upload model", wrapped.Message)
	assert.Equal(t, root, wrapped.Cause)
	assert.Equal(t, root, stderrors.Unwrap(wrapped))
	assert.True(t, stderrors.Is(wrapped, root))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeMoleculeInvalidFormat, "unknown element")
	outer := errors.Wrap(inner, errors.CodeUnknown, "invalid training record")

	assert.Equal(t, errors.ErrCodeMoleculeInvalidFormat, outer.Code)
}

func TestWrap_UnknownCodeOnPlainError(t *testing.T) {
	t.Parallel()

	outer := errors.Wrap(stderrors.New("boom"), errors.CodeUnknown, "context")
	assert.Equal(t, errors.CodeUnknown, outer.Code)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeModelNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeInternal, "unexpected state")

	assert.Equal(t, errors.CodeInternal, outer.Code)
	assert.True(t, errors.IsCode(outer, errors.ErrCodeModelNotFound), "inner code stays reachable")
}

func TestWrap_MultiLevel(t *testing.T) {
	t.Parallel()

	root := stderrors.New("dial tcp: connection refused")
	level1 := errors.Wrap(root, errors.ErrCodeCacheError, "redis unreachable")
	level2 := errors.Wrap(level1, errors.CodeInternal, "failed to load model")

	assert.Equal(t, level1, stderrors.Unwrap(level2))
	assert.Equal(t, root, stderrors.Unwrap(level1))

	var ae *errors.AppError
	require.True(t, stderrors.As(level2, &ae))
	assert.Equal(t, errors.CodeInternal, ae.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Error()
// ─────────────────────────────────────────────────────────────────────────────

func TestError_Format(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[BAY_001] malformed header", errors.FormatError("malformed header").Error())
	assert.Equal(t, "[BAY_001] malformed header: line=1",
		errors.FormatError("malformed header").WithDetail("line=1").Error())
}

func TestError_EmptyMessageDoesNotPanic(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeOK, "")
	assert.NotPanics(t, func() { _ = ae.Error() })
	assert.True(t, strings.HasPrefix(ae.Error(), "[OK]"))
}

// ─────────────────────────────────────────────────────────────────────────────
// WithDetail / WithCause
// ─────────────────────────────────────────────────────────────────────────────

func TestWithDetail_SetsDetailOnCopy(t *testing.T) {
	t.Parallel()

	original := errors.New(errors.CodeNotFound, "resource missing")
	detailed := original.WithDetail("id=42")

	assert.Empty(t, original.Detail, "WithDetail must not mutate the original")
	assert.Equal(t, "id=42", detailed.Detail)
	assert.Equal(t, original.Code, detailed.Code)
	assert.Equal(t, original.Message, detailed.Message)
}

func TestWithDetail_LastCallWins(t *testing.T) {
	t.Parallel()

	ae := errors.InvalidParam("bad").WithDetail("a").WithDetail("b")
	assert.Equal(t, "b", ae.Detail)
}

func TestWithCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("eof")
	original := errors.FormatError("truncated model")
	withCause := original.WithCause(cause)

	assert.Nil(t, original.Cause)
	assert.Equal(t, cause, withCause.Cause)
	assert.True(t, stderrors.Is(withCause, cause))
}

func TestWith_NilReceiver(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// IsCode / GetCode
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode(t *testing.T) {
	t.Parallel()

	base := errors.New(errors.ErrCodeFoldingInvalid, "folding=100")
	wrapped := fmt.Errorf("train: %w", errors.Wrap(base, errors.CodeUnknown, "build"))

	assert.True(t, errors.IsCode(base, errors.ErrCodeFoldingInvalid))
	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeFoldingInvalid))
	assert.False(t, errors.IsCode(wrapped, errors.ErrCodeModelFormat))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeFoldingInvalid))
	assert.False(t, errors.IsCode(stderrors.New("plain"), errors.CodeUnknown))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeTrainingEmpty,
		errors.GetCode(fmt.Errorf("ctx: %w", errors.New(errors.ErrCodeTrainingEmpty, "empty"))))
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

func TestFactories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  *errors.AppError
		code errors.ErrorCode
	}{
		{"InvalidInput", errors.InvalidInput("blank"), errors.ErrCodeInvalidInput},
		{"FormatError", errors.FormatError("bad line"), errors.ErrCodeModelFormat},
		{"NotFound", errors.NotFound("gone"), errors.CodeNotFound},
		{"InvalidParam", errors.InvalidParam("bad"), errors.CodeInvalidParam},
		{"InvalidState", errors.InvalidState("not built"), errors.CodeConflict},
		{"Internal", errors.Internal("boom"), errors.CodeInternal},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.NotNil(t, tc.err)
			assert.Equal(t, tc.code, tc.err.Code)
			assert.NotEmpty(t, tc.err.Message)
			assert.NotEmpty(t, tc.err.Stack)
		})
	}
}
