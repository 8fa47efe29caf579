package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/ovipipe/internal/cli"
)

const definitions = `
modifier "cutoff" "small" {
  cutoff = 1
}

pipeline "main" {
  source "generator" {
    rows = 4
  }
  apply "small" {}
}
`

func writeDefinitions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to set up test file")
	return path
}

func TestRun_Eval(t *testing.T) {
	t.Parallel()
	path := writeDefinitions(t, definitions)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	err := run(context.Background(), out, logs, []string{"eval", path, "-o", "yaml"})

	require.NoError(t, err, logs.String())
	require.Contains(t, out.String(), "name: main")
	require.Contains(t, out.String(), "rows: 2")
}

func TestRun_Validate(t *testing.T) {
	t.Parallel()
	path := writeDefinitions(t, definitions)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	err := run(context.Background(), out, logs, []string{"validate", path})

	require.NoError(t, err)
	require.Empty(t, out.String())
	require.Contains(t, logs.String(), "Pipeline definitions are valid.")
}

func TestRun_InvalidDefinitions(t *testing.T) {
	t.Parallel()
	path := writeDefinitions(t, `
		pipeline "main" {
			source "generator" {
		// Missing closing brace here
	`)

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"eval", path})

	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load pipeline definitions")
	require.Contains(t, err.Error(), "failed to parse")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"eval", "--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}
