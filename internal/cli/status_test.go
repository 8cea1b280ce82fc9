package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusReportsCounts(t *testing.T) {
	wfDir := createTestWorkflow(t)

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewStatusCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{wfDir})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "tasks:       2")
	assert.Contains(t, output, "elements:    3")
	assert.Contains(t, output, "runs:        3")
	assert.Contains(t, output, "submissions: 0")
}

func TestStatusJSONOutput(t *testing.T) {
	wfDir := createTestWorkflow(t)

	rootOpts := &RootOptions{Format: "json"}
	cmd := NewStatusCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{wfDir})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["tasks"])
	assert.Equal(t, float64(5), data["parameters"])
	assert.NotEmpty(t, data["workflow"])
}

func TestStatusMissingWorkflow(t *testing.T) {
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewStatusCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, buf.String(), "failed to open workflow")
}
