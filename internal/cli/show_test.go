package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func showEntity(t *testing.T, wfDir, format, kind, id string) (*bytes.Buffer, error) {
	t.Helper()
	rootOpts := &RootOptions{Format: format}
	cmd := NewShowCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{wfDir, kind, id})
	return buf, cmd.Execute()
}

func TestShowRun(t *testing.T) {
	wfDir := createTestWorkflow(t)

	buf, err := showEntity(t, wfDir, "text", "run", "0")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"iteration_id"`)
	assert.Contains(t, buf.String(), `"data_idx"`)
}

func TestShowParameterJSON(t *testing.T) {
	wfDir := createTestWorkflow(t)

	buf, err := showEntity(t, wfDir, "json", "parameter", "0")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Data)
}

func TestShowUnknownID(t *testing.T) {
	wfDir := createTestWorkflow(t)

	buf, err := showEntity(t, wfDir, "text", "run", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "run 99 not found")
}

func TestShowUnknownKind(t *testing.T) {
	wfDir := createTestWorkflow(t)

	_, err := showEntity(t, wfDir, "text", "widget", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity kind")
}

func TestShowBadID(t *testing.T) {
	wfDir := createTestWorkflow(t)

	_, err := showEntity(t, wfDir, "text", "run", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid entity ID")
}
