package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelIdentity(t *testing.T) {
	wrapped := Wrap(ErrInputExists, "ctakes_input/abc.txt")
	assert.True(t, Is(wrapped, ErrInputExists))
	assert.False(t, Is(wrapped, ErrNoInputDir))

	doubly := Wrapf(wrapped, "criterion %s", "abc")
	assert.True(t, Is(doubly, ErrInputExists))
}

func TestIsConfigurationError(t *testing.T) {
	err := NewConfigurationError("engine root %q does not exist", "/opt/ctakes")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.False(t, IsConfigurationError(nil))
	assert.False(t, IsConfigurationError(New("unrelated")))
	assert.Contains(t, err.Error(), "/opt/ctakes")
}

func TestIsContentError(t *testing.T) {
	err := NewContentError("keypath %q resolved to a non-string leaf", "brief_summary")
	assert.True(t, IsContentError(err))
	assert.False(t, IsEngineRunError(err))
}

func TestIsEngineRunError(t *testing.T) {
	base := Wrap(ErrEngineRun, "metamap")
	assert.True(t, IsEngineRunError(base))
	assert.True(t, IsEngineRunError(Wrap(base, "run r_x")))
	assert.False(t, IsEngineRunError(nil))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "trial NCT00001234")))
	assert.True(t, IsNotFoundError(New("trial not found")))
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("something else")))
}

func TestWrapPreservesMessage(t *testing.T) {
	err := Wrap(New("inner"), "outer")
	assert.Equal(t, "outer: inner", err.Error())
}

func TestAssertionFailure(t *testing.T) {
	err := AssertionFailedf("analyzable without source object")
	require.Error(t, err)
	assert.True(t, HasAssertionFailure(err))
	assert.False(t, HasAssertionFailure(New("ordinary")))
}
