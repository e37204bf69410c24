package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTable_Aligns(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, []string{"YEAR", "BACKEND"}, [][]string{
		{"2021", "remote_job"},
		{"2022", "local_pipeline"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "YEAR  BACKEND", lines[0])
	assert.Equal(t, "----  -------", lines[1])
	assert.Equal(t, "2021  remote_job", lines[2])
	assert.Equal(t, "2022  local_pipeline", lines[3])
}
