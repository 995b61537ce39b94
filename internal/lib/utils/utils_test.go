package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]any{"name": "alice", "age": 30}))
	assert.Equal(t, "{\n  \"age\": 30,\n  \"name\": \"alice\"\n}\n", buf.String())

	buf.Reset()
	assert.Error(t, PrintJSON(&buf, map[string]any{"ch": make(chan int)}))
	assert.Empty(t, buf.String())
}
