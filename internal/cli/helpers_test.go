package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/yogisync/internal/config"
	"github.com/roach88/yogisync/internal/remote"
	"github.com/roach88/yogisync/internal/source"
)

// testEnv is a config file plus the cache it points at, isolated from the
// host environment.
type testEnv struct {
	dir        string
	configPath string
	cachePath  string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	for _, key := range []string{
		"GMAIL_QUERY", "GOOGLE_CLIENT_SECRET_PATH", "GOOGLE_TOKEN_PATH",
		"YOGISYNC_CALENDAR_ID", "TIMEZONE", "SQLITE_PATH", "SYNC_SCHEDULE",
		"METRICS_ADDR", "DEFAULT_EVENT_DURATION_MINUTES", "SEARCH_WINDOW_DAYS",
		"SYNC_LIMIT",
	} {
		t.Setenv(key, "")
		t.Setenv(strings.ToLower(key), "")
	}

	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "yogisync.yaml"),
		cachePath:  filepath.Join(dir, "data", "yogisync.db"),
	}
	content := fmt.Sprintf("sqlite_path: %s\n%s", env.cachePath, extra)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

func (e *testEnv) rootOptions(format string) *RootOptions {
	return &RootOptions{Format: format, ConfigPath: e.configPath}
}

// testCommand returns a bare command whose output lands in the buffers.
func testCommand(ctx context.Context) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetContext(ctx)
	return cmd, out, errOut
}

func bonneMessage(id string) source.Message {
	return source.Message{
		ID:        id,
		From:      "Studio BONNE <info@studio-bonne.jp>",
		Subject:   "ご予約完了",
		TextPlain: "プログラム：リラックスヨガ\nインストラクター：Aiko\n予約番号：B-778\n日時：2024年5月12日(日) 10時30分\n",
	}
}

// fakeBackend serves fixed messages and a shared in-memory calendar.
type fakeBackend struct {
	messages []source.Message
	store    *remote.MemoryStore
	calls    int
	err      error
	after    func()
}

func newFakeBackend(destination string, messages ...source.Message) *fakeBackend {
	clock := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &fakeBackend{
		messages: messages,
		store: remote.NewMemoryStore(destination, func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	}
}

func (f *fakeBackend) backend(_ context.Context, _ *config.Config, _ *slog.Logger) (source.Collector, remote.Store, error) {
	f.calls++
	if f.after != nil {
		defer f.after()
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return source.StaticCollector(f.messages), f.store, nil
}
