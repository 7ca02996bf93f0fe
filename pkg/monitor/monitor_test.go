package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/browser"
	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/post"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/storage"
	"igmonitor/pkg/timeline"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type fakeSession struct{ closed bool }

func (s *fakeSession) Page() browser.Page { return nil }
func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeSource struct {
	summaries []timeline.PostSummary
	pos       int
}

func (s *fakeSource) Next(ctx context.Context) (*timeline.PostSummary, error) {
	if s.pos >= len(s.summaries) {
		return nil, nil
	}
	sum := s.summaries[s.pos]
	s.pos++
	return &sum, nil
}

type fakeScanner struct {
	timelines map[string][]timeline.PostSummary
	scanErr   map[string]error
}

func (s *fakeScanner) Scan(ctx context.Context, username string) (timeline.Source, error) {
	if err := s.scanErr[username]; err != nil {
		return nil, err
	}
	return &fakeSource{summaries: s.timelines[username]}, nil
}

type fakeExtractor struct {
	mu      sync.Mutex
	details map[string]*post.Detail
	errs    map[string]error
	calls   []string
}

func (e *fakeExtractor) Extract(ctx context.Context, ref string) (*post.Detail, error) {
	e.mu.Lock()
	e.calls = append(e.calls, ref)
	e.mu.Unlock()

	if err := e.errs[ref]; err != nil {
		return nil, err
	}
	return e.details[ref], nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeFetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	return []byte("img"), nil
}

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	images   map[string]bool
	captions map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		existing: make(map[string]bool),
		images:   make(map[string]bool),
		captions: make(map[string]string),
	}
}

func (s *fakeStore) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[path]
}

func (s *fakeStore) SaveImage(r io.Reader, path string) error {
	io.Copy(io.Discard, r)
	s.mu.Lock()
	s.images[path] = true
	s.existing[path] = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) SaveCaption(text, path string) error {
	s.mu.Lock()
	s.captions[path] = text
	s.existing[path] = true
	s.mu.Unlock()
	return nil
}

func testConfig(usernames ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Monitor.Usernames = usernames
	cfg.Monitor.RunTimeout = time.Minute
	cfg.Browser.MinActionDelay = 0
	cfg.Browser.MaxActionDelay = 0
	cfg.Download.Workers = 2
	cfg.Output.BaseDirectory = "/data"
	return cfg
}

func newTestMonitor(cfg *config.Config, scanner Scanner, extractor Extractor, fetcher *fakeFetcher, store *fakeStore) (*Monitor, *fakeSession) {
	sess := &fakeSession{}
	return &Monitor{
		cfg:    cfg,
		logger: logger.GetLogger(),
		now:    func() time.Time { return testNow },
		dial: func(ctx context.Context, bcfg *config.BrowserConfig) (Session, error) {
			return sess, nil
		},
		newScanner: func(page browser.Page, pacer *ratelimit.Pacer, mcfg *config.MonitorConfig) Scanner {
			return scanner
		},
		newExtractor: func(page browser.Page, pacer *ratelimit.Pacer) Extractor {
			return extractor
		},
		fetcher: fetcher,
		store:   store,
	}, sess
}

func freshSummary(id string, age time.Duration) timeline.PostSummary {
	return timeline.PostSummary{
		ID:          id,
		Ref:         "/p/" + id + "/",
		PublishedAt: testNow.Add(-age),
	}
}

func TestRunDownloadsFreshPosts(t *testing.T) {
	scanner := &fakeScanner{timelines: map[string][]timeline.PostSummary{
		"alice": {
			freshSummary("p1", time.Hour),
			freshSummary("p2", 2*time.Hour),
			freshSummary("old", 48*time.Hour),
		},
	}}
	extractor := &fakeExtractor{details: map[string]*post.Detail{
		"/p/p1/": {
			PostID:  "p1",
			Owner:   "alice",
			Caption: "first",
			Images:  []post.Image{{Index: 1, URL: "https://cdn.example/p1-1.jpg"}},
		},
		"/p/p2/": {
			PostID: "p2",
			Owner:  "alice",
			Images: []post.Image{
				{Index: 1, URL: "https://cdn.example/p2-1.jpg"},
				{Index: 2, URL: "https://cdn.example/p2-2.jpg"},
			},
		},
	}}
	fetcher := &fakeFetcher{}
	store := newFakeStore()

	m, sess := newTestMonitor(testConfig("alice"), scanner, extractor, fetcher, store)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.True(t, sess.closed, "session must be released")

	users := result.Users()
	require.Len(t, users, 1)
	rep := users[0]
	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 2, rep.Fresh)
	assert.Equal(t, 1, rep.Stale)
	assert.Equal(t, 3, rep.Downloaded)
	assert.Equal(t, 0, rep.Failed)

	// The stale post is never extracted.
	assert.NotContains(t, extractor.calls, "/p/old/")

	// Every image lands at its deterministic path.
	for _, want := range []string{
		storage.TargetPath("/data", "alice", "alice", "p1", 1, testNow.Add(-time.Hour)),
		storage.TargetPath("/data", "alice", "alice", "p2", 1, testNow.Add(-2*time.Hour)),
		storage.TargetPath("/data", "alice", "alice", "p2", 2, testNow.Add(-2*time.Hour)),
	} {
		assert.True(t, store.images[want], "missing image at %s", want)
	}

	// The caption side file carries the author header.
	require.Len(t, store.captions, 1)
	for _, text := range store.captions {
		assert.Contains(t, text, "author: alice")
		assert.Contains(t, text, "first")
	}
}

func TestRunIdempotentOverArchivedDay(t *testing.T) {
	scanner := &fakeScanner{timelines: map[string][]timeline.PostSummary{
		"alice": {freshSummary("p1", time.Hour)},
	}}
	extractor := &fakeExtractor{details: map[string]*post.Detail{
		"/p/p1/": {
			PostID: "p1",
			Owner:  "alice",
			Images: []post.Image{{Index: 1, URL: "https://cdn.example/p1-1.jpg"}},
		},
	}}
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	store.existing[storage.TargetPath("/data", "alice", "alice", "p1", 1, testNow.Add(-time.Hour))] = true

	m, _ := newTestMonitor(testConfig("alice"), scanner, extractor, fetcher, store)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	rep := result.Users()[0]
	assert.Equal(t, 0, rep.Downloaded)
	assert.Equal(t, 1, rep.AlreadyHad)
	assert.Empty(t, fetcher.calls, "existing image must not be refetched")
}

func TestRunPostHandledOncePerRun(t *testing.T) {
	shared := freshSummary("p1", time.Hour)
	scanner := &fakeScanner{timelines: map[string][]timeline.PostSummary{
		"alice": {shared},
		"bob":   {shared},
	}}
	extractor := &fakeExtractor{details: map[string]*post.Detail{
		"/p/p1/": {
			PostID: "p1",
			Owner:  "alice",
			Images: []post.Image{{Index: 1, URL: "https://cdn.example/p1-1.jpg"}},
		},
	}}

	m, _ := newTestMonitor(testConfig("alice", "bob"), scanner, extractor, &fakeFetcher{}, newFakeStore())

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, extractor.calls, 1, "a post seen on two profiles is extracted once")
}

func TestRunExtractFailureIsCounted(t *testing.T) {
	scanner := &fakeScanner{timelines: map[string][]timeline.PostSummary{
		"alice": {
			freshSummary("bad", time.Hour),
			freshSummary("good", 2*time.Hour),
		},
	}}
	extractor := &fakeExtractor{
		details: map[string]*post.Detail{
			"/p/good/": {
				PostID: "good",
				Owner:  "alice",
				Images: []post.Image{{Index: 1, URL: "https://cdn.example/good-1.jpg"}},
			},
		},
		errs: map[string]error{
			"/p/bad/": errors.New(errors.KindPostUnreachable, "detail view gone"),
		},
	}

	m, _ := newTestMonitor(testConfig("alice"), scanner, extractor, &fakeFetcher{}, newFakeStore())

	result, err := m.Run(context.Background())
	require.NoError(t, err, "a single unreachable post must not abort the run")

	rep := result.Users()[0]
	assert.Equal(t, 1, rep.Downloaded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.FailuresByKind[errors.KindPostUnreachable])
}

func TestRunUnreachableDetailDuringScanIsCounted(t *testing.T) {
	scanner := &fakeScanner{timelines: map[string][]timeline.PostSummary{
		"alice": {
			freshSummary("good", time.Hour),
			{
				ID:      "gone",
				Ref:     "/p/gone/",
				TimeErr: errors.New(errors.KindPostUnreachable, "detail view never rendered"),
			},
		},
	}}
	extractor := &fakeExtractor{details: map[string]*post.Detail{
		"/p/good/": {
			PostID: "good",
			Owner:  "alice",
			Images: []post.Image{{Index: 1, URL: "https://cdn.example/good-1.jpg"}},
		},
	}}

	m, _ := newTestMonitor(testConfig("alice"), scanner, extractor, &fakeFetcher{}, newFakeStore())

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	rep := result.Users()[0]
	assert.Equal(t, 1, rep.Downloaded)
	assert.Equal(t, 0, rep.Skipped, "an unreachable post is a failure, not a skip")
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.FailuresByKind[errors.KindPostUnreachable])
}

func TestRunUnresolvedImageIsCounted(t *testing.T) {
	scanner := &fakeScanner{timelines: map[string][]timeline.PostSummary{
		"alice": {freshSummary("p1", time.Hour)},
	}}
	extractor := &fakeExtractor{details: map[string]*post.Detail{
		"/p/p1/": {
			PostID: "p1",
			Owner:  "alice",
			Images: []post.Image{
				{Index: 1, URL: "https://cdn.example/p1-1.jpg"},
				{Index: 2, Err: errors.New(errors.KindAssetUnresolved, "placeholder")},
			},
		},
	}}

	m, _ := newTestMonitor(testConfig("alice"), scanner, extractor, &fakeFetcher{}, newFakeStore())

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	rep := result.Users()[0]
	assert.Equal(t, 1, rep.Downloaded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.FailuresByKind[errors.KindAssetUnresolved])
}

func TestRunLostSessionAbortsRun(t *testing.T) {
	scanner := &fakeScanner{
		timelines: map[string][]timeline.PostSummary{},
		scanErr: map[string]error{
			"alice": errors.New(errors.KindSessionInvalid, "redirected to login"),
		},
	}

	m, sess := newTestMonitor(testConfig("alice", "bob"), scanner, &fakeExtractor{}, &fakeFetcher{}, newFakeStore())

	_, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindSessionInvalid, errors.KindOf(err))
	assert.True(t, sess.closed, "session must be released even on a fatal error")
}

func TestRunDialFailure(t *testing.T) {
	m, _ := newTestMonitor(testConfig("alice"), &fakeScanner{}, &fakeExtractor{}, &fakeFetcher{}, newFakeStore())
	m.dial = func(ctx context.Context, bcfg *config.BrowserConfig) (Session, error) {
		return nil, errors.New(errors.KindSessionInvalid, "no browser at endpoint")
	}

	result, err := m.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, result, "the result is populated even when the run aborts")
}

func TestRunScanFailureMovesToNextProfile(t *testing.T) {
	scanner := &fakeScanner{
		timelines: map[string][]timeline.PostSummary{
			"bob": {freshSummary("p1", time.Hour)},
		},
		scanErr: map[string]error{
			"alice": fmt.Errorf("timeline did not render"),
		},
	}
	extractor := &fakeExtractor{details: map[string]*post.Detail{
		"/p/p1/": {
			PostID: "p1",
			Owner:  "bob",
			Images: []post.Image{{Index: 1, URL: "https://cdn.example/p1-1.jpg"}},
		},
	}}

	m, _ := newTestMonitor(testConfig("alice", "bob"), scanner, extractor, &fakeFetcher{}, newFakeStore())

	result, err := m.Run(context.Background())
	require.NoError(t, err, "one broken profile must not abort the run")

	downloaded, _, failed := result.Totals()
	assert.Equal(t, 1, downloaded)
	assert.Equal(t, 1, failed)
}
