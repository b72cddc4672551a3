package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	ErrSentinel  String  = "something went wrong"
	ErrFormatted StringF = "bad value %q"
	ErrState     State   = "already closed"
)

func TestStringErrorAndIs(t *testing.T) {
	var err error = ErrSentinel
	assert.Equal(t, "something went wrong", err.Error())
	assert.ErrorIs(t, err, ErrSentinel)
}

func TestStateErrorAndIs(t *testing.T) {
	var err error = ErrState
	assert.Equal(t, "already closed", err.Error())
	assert.ErrorIs(t, err, ErrState)
}

func TestStringFFormatsAndRemainsComparable(t *testing.T) {
	wrapped := ErrFormatted.F("oops")
	assert.Equal(t, `bad value "oops"`, wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrFormatted)
	assert.NotErrorIs(t, wrapped, ErrSentinel)
}

func TestStringKVAttachesContextWithoutConsumingAsFormat(t *testing.T) {
	wrapped := ErrSentinel.KV("socket", "abc", "reason", "timeout")
	assert.Equal(t, "something went wrong {socket=abc reason=timeout}", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrSentinel)
}

func TestStructUnwrapReturnsSentinel(t *testing.T) {
	wrapped := ErrFormatted.F("x")
	assert.Equal(t, error(ErrFormatted), errors.Unwrap(wrapped))
}

func TestStructKVWithOddLengthDropsTrailingKey(t *testing.T) {
	wrapped := ErrSentinel.KV("onlykey")
	assert.Equal(t, "something went wrong {}", wrapped.Error())
}
