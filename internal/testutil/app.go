package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/ovipipe/internal/app"
	"github.com/specialistvlad/ovipipe/internal/registry"
)

// AppHarness holds an App built from temporary definition files together
// with its captured output.
type AppHarness struct {
	App *app.App
	Dir string
	Out *SafeBuffer
	Log *SafeBuffer
}

// AppConfig returns the configuration used by SetupApp before mutation.
func AppConfig(dir string) app.Config {
	return app.Config{
		PipelinePath: dir,
		LogFormat:    "text",
		LogLevel:     "debug",
		WorkerCount:  2,
		Output:       "yaml",
		BreakOnError: true,
	}
}

// SetupApp writes files, keyed by their path relative to a temporary
// directory, and creates an App evaluating that directory. mutate may adjust
// the configuration. With no modules the core modules are registered.
func SetupApp(t *testing.T, files map[string]string, mutate func(*app.Config), modules ...registry.Module) *AppHarness {
	t.Helper()
	h, err := TrySetupApp(t, files, mutate, modules...)
	require.NoError(t, err)
	return h
}

// TrySetupApp is SetupApp returning the error of NewConfig or NewApp.
func TrySetupApp(t *testing.T, files map[string]string, mutate func(*app.Config), modules ...registry.Module) (*AppHarness, error) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	raw := AppConfig(dir)
	if mutate != nil {
		mutate(&raw)
	}
	cfg, err := app.NewConfig(raw)
	if err != nil {
		return nil, err
	}

	h := &AppHarness{Dir: dir, Out: &SafeBuffer{}, Log: &SafeBuffer{}}
	t.Cleanup(func() {
		if os.Getenv("OVIPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), h.Log.String())
		}
	})
	h.App, err = app.NewApp(h.Out, h.Log, cfg, modules...)
	if err != nil {
		return nil, err
	}
	return h, nil
}
