package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeJSON(&out, map[string]any{"count": 2}))
	assert.JSONEq(t, `{"count": 2}`, out.String())

	err := writeJSON(&out, map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal JSON")
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("text"))
	assert.NoError(t, validateFormat("json"))
	assert.Error(t, validateFormat("yaml"))
}

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(nil))
	assert.NoError(t, ignoreCanceled(context.Canceled))

	boom := errors.New("boom")
	assert.ErrorIs(t, ignoreCanceled(boom), boom)
	assert.ErrorIs(t, ignoreCanceled(context.DeadlineExceeded), context.DeadlineExceeded)
}
