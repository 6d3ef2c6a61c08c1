package rterror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinelInvalid = New(Kind("test.Invalid"), "sentinel")

func TestErrorIsMatchesByKind(t *testing.T) {
	err := Newf(Kind("test.Invalid"), "handle %d is invalid", 42)
	assert.True(t, errors.Is(err, errSentinelInvalid))
	assert.False(t, errors.Is(err, New(Kind("test.Other"), "sentinel")))
}

func TestWrapChainsCause(t *testing.T) {
	cause := errors.New("dlopen failed")
	err := Wrap(Kind("library.PathNotFound"), "could not load /tmp/x.so", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "could not load /tmp/x.so")
	assert.Contains(t, err.Error(), "dlopen failed")
	assert.Contains(t, err.Debug(), "library.PathNotFound")
}

func TestDebugRendersFullChain(t *testing.T) {
	inner := New(Kind("module.InterfaceNotFound"), "missing foo@1.0.0")
	outer := Wrap(Kind("module.ModuleStateInvalid"), "load failed", inner)

	debug := outer.Debug()
	assert.Contains(t, debug, "module.ModuleStateInvalid")
	assert.Contains(t, debug, "module.InterfaceNotFound")
}
