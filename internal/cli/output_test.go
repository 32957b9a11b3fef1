package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"nodes": 3})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"nodes": 3.0}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeBackend, "backend unreachable", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBackend, resp.Error.Code)
	assert.Equal(t, "backend unreachable", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeInvalid, "bad types", map[string]string{"field": "node_type.user.name"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success("3 nodes loaded"))
	assert.Equal(t, "3 nodes loaded\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Error(ErrCodeConfig, "read config: missing", map[string]string{"path": "x"}))
	assert.Equal(t, "Error [CONFIG]: read config: missing\n", buf.String(), "details only under --verbose")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error(ErrCodeConfig, "read config: missing", "koppla.yaml"))
	assert.Contains(t, buf.String(), "Error [CONFIG]")
	assert.Contains(t, buf.String(), "Details: koppla.yaml")
}

func TestOutputFormatter_Textf(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"text", "Nodes: 2\n"},
		{"json", ""},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: tt.format, Writer: buf}

			formatter.Textf("Nodes: %d", 2)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "text",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("flushing %d node(s)", 4)

			assert.Empty(t, out.String(), "diagnostics never go to stdout")
			if tt.wantLog {
				assert.Equal(t, "flushing 4 node(s)\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail(ExitCommandError, ErrCodeInput, errors.New("open csv: no such file"))

	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.EqualError(t, err, "INPUT: open csv: no such file")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInput, resp.Error.Code)
	assert.Equal(t, "open csv: no such file", resp.Error.Message)
}

func TestOutputFormatter_Report(t *testing.T) {
	t.Run("exit error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		in := WrapExitError(ExitCommandError, ErrCodeConfig, errors.New("read config: gone"))

		err := formatter.Report(in)

		assert.Same(t, in, err)
		assert.Equal(t, "Error [CONFIG]: read config: gone\n", buf.String())
	})

	t.Run("plain error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		err := formatter.Report(errors.New("boom"))

		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Equal(t, "Error [INVALID]: boom\n", buf.String())
	})
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("x"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "x"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "x")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitFailure, ErrCodeSync, inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "SYNC: disk full", err.Error())
	assert.Equal(t, "scenario failed", NewExitError(ExitFailure, "scenario failed").Error())
}
