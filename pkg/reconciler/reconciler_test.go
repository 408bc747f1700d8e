package reconciler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/types"
)

type mapFetcher struct {
	content map[string][]byte
	errs    map[string]error
	calls   []string
}

func (m *mapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.calls = append(m.calls, url)
	if err := m.errs[url]; err != nil {
		return nil, err
	}
	return m.content[url], nil
}

type fakeServices struct {
	restarts []string
	err      error
}

func (f *fakeServices) Restart(ctx context.Context, service string) error {
	f.restarts = append(f.restarts, service)
	return f.err
}

type fakeLocator struct {
	path  string
	calls int
}

func (l *fakeLocator) Locate(ctx context.Context) (bool, error) {
	l.calls++
	return true, os.WriteFile(l.path, []byte("https://cp.example.com/\n"), 0644)
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newSyncer(f Fetcher, lockDir string) *ArtifactSyncer {
	s := NewArtifactSyncer(f, lockDir).WithPause(2 * time.Second)
	s.sleep = noSleep
	return s
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a")

	_, exists, err := FingerprintFile(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))
	fp, exists, err := FingerprintFile(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, FingerprintBytes([]byte("payload")), fp)
	assert.NotEqual(t, FingerprintBytes([]byte("payload2")), fp)
	assert.Len(t, fp.String(), 64)
}

func TestArtifactMatchLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "led_status.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho ok\n"), 0700))
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	fetcher := &mapFetcher{content: map[string][]byte{"https://r/led": []byte("#!/bin/sh\necho ok\n")}}
	results := newSyncer(fetcher, dir).Sync(context.Background(), []types.ArtifactDescriptor{
		{Name: "led_status", RemoteURL: "https://r/led", LocalPath: path},
	})

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.False(t, results[0].Changed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestArtifactMismatchReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "online")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	fetcher := &mapFetcher{content: map[string][]byte{"https://r/online": []byte("new content")}}
	results := newSyncer(fetcher, dir).Sync(context.Background(), []types.ArtifactDescriptor{
		{Name: "online", RemoteURL: "https://r/online", LocalPath: path},
	})

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
		assert.NotContains(t, e.Name(), ".online.")
	}
}

func TestArtifactFailureDoesNotStopOthers(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("keep"), 0755))

	fetcher := &mapFetcher{
		content: map[string][]byte{"https://r/second": []byte("two"), "https://r/empty": {}},
		errs:    map[string]error{"https://r/first": errors.New("connection refused")},
	}
	results := newSyncer(fetcher, dir).Sync(context.Background(), []types.ArtifactDescriptor{
		{Name: "first", RemoteURL: "https://r/first", LocalPath: first},
		{Name: "empty", RemoteURL: "https://r/empty", LocalPath: empty},
		{Name: "second", RemoteURL: "https://r/second", LocalPath: second},
	})

	require.Len(t, results, 3)
	assert.Error(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, errEmptyArtifact)
	assert.NoError(t, results[2].Err)
	assert.True(t, results[2].Changed)

	_, err := os.Stat(first)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(empty)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
	assert.Equal(t, []string{"https://r/first", "https://r/empty", "https://r/second"}, fetcher.calls)
}

func TestArtifactOversizedDownloadKeepsLocalFile(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "led_status.sh")
	fresh := filepath.Join(dir, "online")
	require.NoError(t, os.WriteFile(kept, []byte("#!/bin/sh\necho ok\n"), 0755))

	big := bytes.Repeat([]byte("#"), 16<<20+512)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(big)
	}))
	defer server.Close()

	fetcher := client.New("", client.Options{
		Timeout: 10 * time.Second,
		Retry:   retry.Policy{MaxAttempts: 1},
	})
	artifacts := []types.ArtifactDescriptor{
		{Name: "led_status.sh", RemoteURL: server.URL + "/led_status.sh", LocalPath: kept},
		{Name: "online", RemoteURL: server.URL + "/online", LocalPath: fresh},
	}

	// A second pass must fail the same way rather than settle on a prefix
	for pass := 0; pass < 2; pass++ {
		results := newSyncer(fetcher, dir).Sync(context.Background(), artifacts)
		require.Len(t, results, 2)
		for _, res := range results {
			assert.ErrorIs(t, res.Err, client.ErrTooLarge)
			assert.False(t, res.Changed)
		}
	}

	data, err := os.ReadFile(kept)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho ok\n", string(data))
	_, err = os.Stat(fresh)
	assert.True(t, os.IsNotExist(err))
}

func TestArtifactPauseBetweenArtifacts(t *testing.T) {
	dir := t.TempDir()
	fetcher := &mapFetcher{content: map[string][]byte{"a": []byte("a"), "b": []byte("b"), "c": []byte("c")}}
	s := NewArtifactSyncer(fetcher, dir).WithPause(2 * time.Second)
	var pauses []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	s.Sync(context.Background(), []types.ArtifactDescriptor{
		{Name: "a", RemoteURL: "a", LocalPath: filepath.Join(dir, "a")},
		{Name: "b", RemoteURL: "b", LocalPath: filepath.Join(dir, "b")},
		{Name: "c", RemoteURL: "c", LocalPath: filepath.Join(dir, "c")},
	})
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, pauses)
}

func TestRenderSchedule(t *testing.T) {
	table := types.ScheduleTable{
		Version: 3,
		Entries: []types.ScheduleEntry{
			{Cron: "*/2 * * * *", Command: "/usr/bin/edgeagent watchdog"},
			{Cron: " 0 5 * * * ", Command: "/usr/bin/edgeagent update "},
		},
	}
	out, err := RenderSchedule(table)
	require.NoError(t, err)
	assert.Equal(t, "# edgeagent schedule v3\n*/2 * * * * /usr/bin/edgeagent watchdog\n0 5 * * * /usr/bin/edgeagent update\n", out)

	tests := []struct {
		name  string
		entry types.ScheduleEntry
	}{
		{"bad expression", types.ScheduleEntry{Cron: "every minute", Command: "/bin/true"}},
		{"six fields", types.ScheduleEntry{Cron: "0 */2 * * * *", Command: "/bin/true"}},
		{"no command", types.ScheduleEntry{Cron: "* * * * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RenderSchedule(types.ScheduleTable{Version: 1, Entries: []types.ScheduleEntry{tt.entry}})
			assert.Error(t, err)
		})
	}
}

func TestScheduleReconcile(t *testing.T) {
	table := types.ScheduleTable{
		Version: 1,
		Entries: []types.ScheduleEntry{{Cron: "*/5 * * * *", Command: "/usr/bin/edgeagent online"}},
	}
	rendered, err := RenderSchedule(table)
	require.NoError(t, err)

	tests := []struct {
		name        string
		existing    *string
		wantChanged bool
	}{
		{"absent", nil, true},
		{"identical", strPtr(rendered), false},
		{"surrounding whitespace", strPtr("\n\n" + strings.TrimSpace(rendered) + "\n\n\n"), false},
		{"different", strPtr("*/1 * * * * /root/other\n"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "root")
			if tt.existing != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.existing), 0600))
			}
			services := &fakeServices{}
			r := NewScheduleReconciler(path, dir, services, "cron")

			changed, err := r.Reconcile(context.Background(), table)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			if tt.wantChanged {
				assert.Equal(t, rendered, string(data))
				assert.Equal(t, []string{"cron"}, services.restarts)
			} else {
				assert.Equal(t, *tt.existing, string(data))
				assert.Empty(t, services.restarts)
			}

			// A second pass is always a no-op
			services.restarts = nil
			changed, err = r.Reconcile(context.Background(), table)
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Empty(t, services.restarts)
		})
	}
}

func TestReconcilerRun(t *testing.T) {
	dir := t.TempDir()
	agentPath := filepath.Join(dir, "edgeagent")
	scriptPath := filepath.Join(dir, "led_status.sh")
	crontab := filepath.Join(dir, "crontab")
	location := filepath.Join(dir, "server_location.txt")

	fetcher := &mapFetcher{content: map[string][]byte{
		"https://r/agent": []byte("binary"),
		"https://r/led":   []byte("script"),
	}}
	services := &fakeServices{}
	locator := &fakeLocator{path: location}
	var notified []Report

	r := NewReconciler(newSyncer(fetcher, dir), NewScheduleReconciler(crontab, dir, services, "cron"), services).
		WithBootstrap(location, locator).
		WithNotifier(func(ctx context.Context, report Report) error {
			notified = append(notified, report)
			return errors.New("control plane unreachable")
		})

	artifacts := []types.ArtifactDescriptor{
		{Name: "edgeagent", RemoteURL: "https://r/agent", LocalPath: agentPath, Restart: "cron"},
		{Name: "led_status", RemoteURL: "https://r/led", LocalPath: scriptPath},
	}
	table := types.ScheduleTable{Version: 2, Entries: []types.ScheduleEntry{{Cron: "*/2 * * * *", Command: scriptPath}}}

	report, err := r.Run(context.Background(), artifacts, table)
	require.NoError(t, err)
	assert.Equal(t, []string{"edgeagent", "led_status"}, report.Updated)
	assert.True(t, report.ScheduleRewritten)
	assert.True(t, report.Bootstrapped)
	assert.True(t, report.Changed())
	assert.Equal(t, []string{"cron"}, report.Restarted)
	assert.Equal(t, 1, locator.calls)
	// one reload for the schedule and one for the artifact
	assert.Equal(t, []string{"cron", "cron"}, services.restarts)
	require.Len(t, notified, 1)

	// Second pass: nothing drifted
	services.restarts = nil
	report, err = r.Run(context.Background(), artifacts, table)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Empty(t, services.restarts)
	assert.Equal(t, 1, locator.calls)
	assert.Len(t, notified, 2)
}

func TestReconcilerRunScheduleError(t *testing.T) {
	dir := t.TempDir()
	services := &fakeServices{}
	r := NewReconciler(newSyncer(&mapFetcher{}, dir), NewScheduleReconciler(filepath.Join(dir, "crontab"), dir, services, "cron"), services)

	_, err := r.Run(context.Background(), nil, types.ScheduleTable{
		Version: 1,
		Entries: []types.ScheduleEntry{{Cron: "nope", Command: "/bin/true"}},
	})
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
