package logutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "********", RedactKey(""))
	assert.Equal(t, "********", RedactKey("short"))
	assert.Equal(t, "abcd...wxyz", RedactKey("abcd1234567890wxyz"))
}

func TestNewConsoleOnly(t *testing.T) {
	logger, err := New(false, true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Debugw("debug enabled", "ok", true)
}
