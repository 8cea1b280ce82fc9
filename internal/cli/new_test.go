package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesWorkflow(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeTestTemplate(t, dir)

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewNewCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{tplPath, "--dir", dir})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), `created workflow "sweep"`)
	assert.Contains(t, buf.String(), "2 tasks, 3 elements, 3 runs")
	assert.FileExists(t, filepath.Join(dir, "sweep", "metadata.json"))
}

func TestNewSQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeTestTemplate(t, dir)

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewNewCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{tplPath, "--dir", dir, "--store", "sqlite"})

	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, "sweep", "workflow.db"))
}

func TestNewJSONOutput(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeTestTemplate(t, dir)

	rootOpts := &RootOptions{Format: "json"}
	cmd := NewNewCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{tplPath, "--dir", dir})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sweep", data["workflow"])
	assert.Equal(t, float64(3), data["elements"])
}

func TestNewInvalidTemplate(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(tplPath, []byte("name: x\ntasks: []\n"), 0644))

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewNewCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{tplPath, "--dir", dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeTemplate)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "failed to load template")
}

func TestNewMissingTemplateFile(t *testing.T) {
	dir := t.TempDir()

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewNewCommand(rootOpts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{filepath.Join(dir, "absent.yaml"), "--dir", dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
