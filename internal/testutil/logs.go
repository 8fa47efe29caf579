package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Logger returns a debug logger writing into a fresh buffer. When the
// OVIPIPE_TEST_LOGS environment variable is "true" the captured output is
// printed at the end of the test.
func Logger(t *testing.T) (*slog.Logger, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if os.Getenv("OVIPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return logger, buf
}

// Context returns a context carrying a test logger.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	logger, buf := Logger(t)
	return ctxlog.WithLogger(context.Background(), logger), buf
}
