package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	failing map[string]error
}

func (f *fakeFetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err, ok := f.failing[url]; ok {
		return nil, err
	}
	return []byte("img:" + url), nil
}

func (f *fakeFetcher) fetched(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == url {
			return true
		}
	}
	return false
}

type fakeStorage struct {
	mu       sync.Mutex
	existing map[string]bool
	saved    map[string][]byte
	saveErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		existing: make(map[string]bool),
		saved:    make(map[string][]byte),
	}
}

func (s *fakeStorage) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[path]
}

func (s *fakeStorage) SaveImage(r io.Reader, path string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.saved[path] = data
	s.existing[path] = true
	s.mu.Unlock()
	return nil
}

func collectResults(t *testing.T, pool *Pool, want int) map[string]Result {
	t.Helper()

	results := make(map[string]Result)
	timeout := time.After(5 * time.Second)
	for len(results) < want {
		select {
		case res, ok := <-pool.Results():
			if !ok {
				t.Fatalf("results channel closed after %d of %d results", len(results), want)
			}
			results[res.Job.Path] = res
		case <-timeout:
			t.Fatalf("timed out waiting for results, have %d of %d", len(results), want)
		}
	}
	return results
}

func TestPoolEveryJobReportsOnce(t *testing.T) {
	fetcher := &fakeFetcher{}
	storage := newFakeStorage()
	pool := NewPool(fetcher, storage, nil, 2)

	ctx := context.Background()
	pool.Start(ctx)

	const jobs = 6
	for i := 0; i < jobs; i++ {
		ok := pool.Submit(ctx, Job{
			URL:      fmt.Sprintf("https://cdn.example/%d.jpg", i),
			Path:     fmt.Sprintf("/data/alice/2026-08-30/alice_p1_%d_090000.jpg", i+1),
			Username: "alice",
			PostID:   "p1",
			Index:    i + 1,
		})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	pool.Stop()

	results := collectResults(t, pool, jobs)

	for path, res := range results {
		if res.Outcome != Written {
			t.Errorf("%s: outcome = %s, want written", path, res.Outcome)
		}
	}
	if len(storage.saved) != jobs {
		t.Errorf("saved %d files, want %d", len(storage.saved), jobs)
	}

	// After Stop the channel must close.
	if _, ok := <-pool.Results(); ok {
		t.Error("results channel still open after all jobs reported")
	}
}

func TestPoolExistingFileSkipsFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	storage := newFakeStorage()
	storage.existing["/data/alice/2026-08-30/alice_p1_1_090000.jpg"] = true

	pool := NewPool(fetcher, storage, nil, 1)
	ctx := context.Background()
	pool.Start(ctx)

	pool.Submit(ctx, Job{
		URL:      "https://cdn.example/1.jpg",
		Path:     "/data/alice/2026-08-30/alice_p1_1_090000.jpg",
		Username: "alice",
		PostID:   "p1",
		Index:    1,
	})
	pool.Stop()

	results := collectResults(t, pool, 1)
	for _, res := range results {
		if res.Outcome != AlreadyExists {
			t.Errorf("outcome = %s, want already_exists", res.Outcome)
		}
	}
	if fetcher.fetched("https://cdn.example/1.jpg") {
		t.Error("existing file was fetched anyway")
	}
}

func TestPoolFailureDoesNotStopOthers(t *testing.T) {
	fetcher := &fakeFetcher{
		failing: map[string]error{
			"https://cdn.example/bad.jpg": fmt.Errorf("connection reset"),
		},
	}
	storage := newFakeStorage()

	pool := NewPool(fetcher, storage, nil, 2)
	ctx := context.Background()
	pool.Start(ctx)

	pool.Submit(ctx, Job{URL: "https://cdn.example/bad.jpg", Path: "/d/bad.jpg", Username: "alice", PostID: "p1", Index: 1})
	pool.Submit(ctx, Job{URL: "https://cdn.example/good.jpg", Path: "/d/good.jpg", Username: "alice", PostID: "p1", Index: 2})
	pool.Stop()

	results := collectResults(t, pool, 2)

	bad := results["/d/bad.jpg"]
	if bad.Outcome != Failed || bad.Err == nil {
		t.Errorf("bad job: outcome = %s, err = %v", bad.Outcome, bad.Err)
	}

	good := results["/d/good.jpg"]
	if good.Outcome != Written {
		t.Errorf("good job: outcome = %s, want written", good.Outcome)
	}
}

func TestPoolSubmitAfterCancel(t *testing.T) {
	pool := NewPool(&fakeFetcher{}, newFakeStorage(), nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	// Fill any buffer space; eventually Submit must observe cancellation.
	accepted := 0
	for i := 0; i < 100; i++ {
		if !pool.Submit(ctx, Job{URL: "u", Path: fmt.Sprintf("/d/%d", i)}) {
			break
		}
		accepted++
	}
	if accepted == 100 {
		t.Error("submit never observed the cancelled context")
	}
}
