package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/types"
)

type fakeAPI struct {
	files    []client.FileDelivery
	content  map[string][]byte
	listErr  error
	markErr  error
	marked   []int
	fetches  []string
	listings int
}

func (f *fakeAPI) Token(ctx context.Context, id types.DeviceIdentity) (*client.Token, error) {
	return &client.Token{Access: "tok"}, nil
}

func (f *fakeAPI) FileDeliveries(ctx context.Context, tok *client.Token) ([]client.FileDelivery, error) {
	f.listings++
	return f.files, f.listErr
}

func (f *fakeAPI) MarkDelivered(ctx context.Context, tok *client.Token, id int, at time.Time) error {
	f.marked = append(f.marked, id)
	return f.markErr
}

func (f *fakeAPI) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.fetches = append(f.fetches, url)
	data, ok := f.content[url]
	if !ok {
		return nil, &client.StatusError{Method: "GET", Path: url, Code: 404}
	}
	return data, nil
}

var identity = types.DeviceIdentity{SerialNumber: "SN1", BoardSerialNumber: "MLB1"}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestEligible(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		d       client.FileDelivery
		want    bool
		wantErr bool
	}{
		{"active future", client.FileDelivery{Status: true, ValidUntil: "2026-03-11"}, true, false},
		{"valid through today", client.FileDelivery{Status: true, ValidUntil: "2026-03-10"}, true, false},
		{"expired", client.FileDelivery{Status: true, ValidUntil: "2026-03-09"}, false, false},
		{"inactive", client.FileDelivery{Status: false, ValidUntil: "2026-03-11"}, false, false},
		{"already applied", client.FileDelivery{Status: true, Applied: true, ValidUntil: "2026-03-11"}, false, false},
		{"bad date", client.FileDelivery{Status: true, ValidUntil: "soon"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eligible(tt.d, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	installed := filepath.Join(dir, "etc", "banner")
	stale := filepath.Join(dir, "stale.conf")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	api := &fakeAPI{
		content: map[string][]byte{"https://files/banner": []byte("welcome\n")},
		files: []client.FileDelivery{
			{ID: 1, Status: true, ValidUntil: "2026-12-31", LocalLocation: installed, RemoteLocation: "https://files/banner"},
			{ID: 2, Status: true, ValidUntil: "2026-12-31", LocalLocation: stale},
			{ID: 3, Status: true, ValidUntil: "2026-12-31", LocalLocation: filepath.Join(dir, "missing"), RemoteLocation: "https://files/missing"},
			{ID: 4, Status: true, ValidUntil: "2026-12-31", LocalLocation: "relative/path", RemoteLocation: "https://files/banner"},
			{ID: 5, Status: true, Applied: true, ValidUntil: "2026-12-31", LocalLocation: installed, RemoteLocation: "https://files/banner"},
		},
	}
	p := NewProcessor(api, identity, testPolicy()).WithLockDir(dir)
	p.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Applied)
	assert.Equal(t, []int{2}, res.Removed)
	assert.Equal(t, []int{3, 4}, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []int{1, 2}, api.marked)

	data, err := os.ReadFile(installed)
	require.NoError(t, err)
	assert.Equal(t, "welcome\n", string(data))

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRunListFailure(t *testing.T) {
	api := &fakeAPI{listErr: &client.StatusError{Method: "GET", Path: "device-file/", Code: 503}}
	_, err := NewProcessor(api, identity, testPolicy()).Run(context.Background())
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 3, api.listings)

	api = &fakeAPI{listErr: &client.StatusError{Method: "GET", Path: "device-file/", Code: 401}}
	_, err = NewProcessor(api, identity, testPolicy()).Run(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, retry.ErrExhausted))
	assert.Equal(t, 1, api.listings)
}
