// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlsec-blocklist/internal/app"
	"github.com/JakeFAU/urlsec-blocklist/internal/config"
	"github.com/JakeFAU/urlsec-blocklist/internal/fetcher"
	"github.com/JakeFAU/urlsec-blocklist/internal/publisher"
	pubmemory "github.com/JakeFAU/urlsec-blocklist/internal/publisher/memory"
	"github.com/JakeFAU/urlsec-blocklist/internal/storage/local"
	"github.com/JakeFAU/urlsec-blocklist/internal/storage/memory"
	"github.com/JakeFAU/urlsec-blocklist/internal/writer"
)

const feedBody = `{"data":[
	{"src_url":"https://b.com/","evilclass":""},
	{"src_url":"HTTP://a.com//","evilclass":"phish"},
	{"src_url":"a.com","evilclass":"phish"}
]}`

// MockPublisher mocks the publisher.Publisher interface.
type MockPublisher struct {
	mock.Mock
}

// Publish satisfies the publisher.Publisher interface for the mock.
func (m *MockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func (fakeClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-1", nil }

var testTime = time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)

func feedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, endpoint string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Extract.Endpoint = endpoint
	cfg.Output.Path = filepath.Join(t.TempDir(), "blocklist.txt")
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts ...app.Option) *app.App {
	t.Helper()
	base := []app.Option{app.WithClock(fakeClock{now: testTime}), app.WithIDGenerator(fixedIDs{})}
	a, err := app.NewApp(context.Background(), cfg, zap.NewNop(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestRunWritesAndPublishes(t *testing.T) {
	srv := feedServer(t, http.StatusOK, feedBody)
	cfg := testConfig(t, srv.URL)
	cfg.PubSub = config.PubSubConfig{ProjectID: "proj", Topic: "blocklist-updates"}

	store := memory.NewBlobStore()
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, "blocklist-updates", mock.MatchedBy(func(e publisher.BlocklistUpdated) bool {
		return e.RunID == "run-1" && e.Entries == 2 && e.GeneratedAt.Equal(testTime)
	})).Return("msg-1", nil).Once()

	a := newTestApp(t, cfg, app.WithStores(store), app.WithPublisher(pub))
	report, err := a.Run(context.Background())
	require.NoError(t, err)

	content, ok := store.Get("blocklist.txt")
	require.True(t, ok)
	assert.Equal(t, "a.com # phish\nb.com # ", string(content))

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, srv.URL, report.Endpoint)
	assert.Equal(t, 2, report.Entries)
	assert.Len(t, report.SHA256, 64)
	assert.Equal(t, []string{"memory://blocklist.txt"}, report.URIs)
	assert.Equal(t, "05_Mar_2024_07_08_09-UTC", report.Timestamp)
	assert.Equal(t, "msg-1", report.MessageID)
	pub.AssertExpectations(t)
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	srv := feedServer(t, http.StatusOK, feedBody)
	cfg := testConfig(t, srv.URL)

	pub := pubmemory.New()
	pub.FailWith(errors.New("broker down"))

	a := newTestApp(t, cfg, app.WithStores(memory.NewBlobStore()), app.WithPublisher(pub))
	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.MessageID)
	assert.Equal(t, 2, report.Entries)
	assert.Empty(t, pub.Messages())
}

func TestRunRecordsUpdateEvent(t *testing.T) {
	srv := feedServer(t, http.StatusOK, feedBody)
	cfg := testConfig(t, srv.URL)
	cfg.PubSub = config.PubSubConfig{ProjectID: "proj", Topic: "blocklist-updates"}

	pub := pubmemory.New()
	a := newTestApp(t, cfg, app.WithStores(memory.NewBlobStore()), app.WithPublisher(pub))
	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory-1", report.MessageID)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "blocklist-updates", msgs[0].Topic)
	event, ok := msgs[0].Payload.(publisher.BlocklistUpdated)
	require.True(t, ok)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, 2, event.Entries)
	assert.Equal(t, report.SHA256, event.SHA256)
	assert.Equal(t, []string{"memory://blocklist.txt"}, event.URIs)
}

func TestRunMirrorFailureKeepsPreviousFile(t *testing.T) {
	srv := feedServer(t, http.StatusOK, feedBody)
	cfg := testConfig(t, srv.URL)
	require.NoError(t, os.WriteFile(cfg.Output.Path, []byte("previous"), 0o600))

	primary, err := local.New(local.Config{BaseDir: filepath.Dir(cfg.Output.Path)})
	require.NoError(t, err)
	mirror := memory.NewBlobStore()
	mirror.FailWith(errors.New("bucket unavailable"))
	pub := pubmemory.New()

	a := newTestApp(t, cfg, app.WithStores(primary, mirror), app.WithPublisher(pub))
	_, err = a.Run(context.Background())
	require.ErrorContains(t, err, "bucket unavailable")

	// #nosec G304 -- test reads from the controlled temp directory.
	content, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(content))
	assert.Empty(t, pub.Messages())
}

func TestRunEmptyFeed(t *testing.T) {
	srv := feedServer(t, http.StatusOK, `{"data":[]}`)
	cfg := testConfig(t, srv.URL)

	store := memory.NewBlobStore()
	pub := new(MockPublisher)
	a := newTestApp(t, cfg, app.WithStores(store), app.WithPublisher(pub))

	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, writer.ErrNoEntries)
	assert.Empty(t, store.Paths())
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunFeedUnavailable(t *testing.T) {
	srv := feedServer(t, http.StatusServiceUnavailable, "down")
	cfg := testConfig(t, srv.URL)

	store := memory.NewBlobStore()
	a := newTestApp(t, cfg, app.WithStores(store))

	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, writer.ErrNoEntries)
	require.ErrorIs(t, err, fetcher.ErrUnexpectedStatus)
	assert.Empty(t, store.Paths())
}

func TestRunWritesLocalFile(t *testing.T) {
	srv := feedServer(t, http.StatusOK, feedBody)
	cfg := testConfig(t, srv.URL)

	a := newTestApp(t, cfg)
	report, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.URIs, 1)
	assert.Equal(t, "file://"+filepath.ToSlash(cfg.Output.Path), report.URIs[0])

	// #nosec G304 -- test reads from the controlled temp directory.
	content, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Equal(t, "a.com # phish\nb.com # ", string(content))
}

func TestRunPushesMetrics(t *testing.T) {
	var pushes atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics/job/urlsec_blocklist", r.URL.Path)
		pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	srv := feedServer(t, http.StatusOK, feedBody)
	cfg := testConfig(t, srv.URL)
	cfg.Metrics.PushgatewayURL = gateway.URL

	a := newTestApp(t, cfg, app.WithStores(memory.NewBlobStore()))
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), pushes.Load())
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "not a url")
	_, err := app.NewApp(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
