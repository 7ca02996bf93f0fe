package downloader

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/ratelimit"
)

// Outcome classifies how a job ended
type Outcome int

const (
	// Written means the asset was fetched and persisted
	Written Outcome = iota
	// AlreadyExists means the target path was already on disk; nothing
	// was fetched
	AlreadyExists
	// Failed means the asset could not be fetched or persisted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case AlreadyExists:
		return "already_exists"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one image to place at one path
type Job struct {
	URL      string
	Path     string
	Username string
	PostID   string
	Index    int
}

// Result reports how a job ended. Err is set only for Failed.
type Result struct {
	Job      Job
	Outcome  Outcome
	Err      error
	Size     int64
	Duration time.Duration
}

// Fetcher retrieves an image by URL
type Fetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Storage is the slice of the storage manager the pool needs
type Storage interface {
	Exists(path string) bool
	SaveImage(r io.Reader, path string) error
}

// Pool downloads images with a fixed number of workers. Failures never stop
// the pool; every submitted job produces exactly one result.
type Pool struct {
	fetcher Fetcher
	storage Storage
	limiter ratelimit.Limiter
	logger  logger.Logger

	workers int
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup

	stopOnce sync.Once
}

// NewPool creates a download pool. Start must be called before Submit.
func NewPool(fetcher Fetcher, storage Storage, limiter ratelimit.Limiter, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		fetcher: fetcher,
		storage: storage,
		limiter: limiter,
		logger:  logger.GetLogger(),
		workers: workers,
		jobs:    make(chan Job, workers*2),
		results: make(chan Result, workers*2),
	}
}

// Start launches the workers. The results channel closes after Stop once
// every in-flight job has reported.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Submit enqueues a job. Returns false if the run context is done.
func (p *Pool) Submit(ctx context.Context, job Job) bool {
	select {
	case p.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop signals that no more jobs will be submitted. Safe to call more than
// once. Results for queued jobs keep flowing until the channel closes.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
}

// Results is the channel of per-job outcomes
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.WithField("worker", id)
	log.Debug("Download worker started")

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				log.Debug("Download worker finished")
				return
			}
			res := p.process(ctx, job)
			logger.LogDownload(job.Username, job.PostID, job.Index, res.Outcome.String(), res.Err)
			select {
			case p.results <- res:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// process runs one job to a terminal outcome. Existence is checked before
// any fetch so re-runs over already-archived days stay cheap.
func (p *Pool) process(ctx context.Context, job Job) Result {
	start := time.Now()

	if p.storage.Exists(job.Path) {
		return Result{Job: job, Outcome: AlreadyExists, Duration: time.Since(start)}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Result{Job: job, Outcome: Failed, Err: err, Duration: time.Since(start)}
		}
	}

	data, err := p.fetcher.FetchImage(ctx, job.URL)
	if err != nil {
		return Result{Job: job, Outcome: Failed, Err: err, Duration: time.Since(start)}
	}

	if err := p.storage.SaveImage(bytes.NewReader(data), job.Path); err != nil {
		return Result{Job: job, Outcome: Failed, Err: err, Duration: time.Since(start)}
	}

	return Result{
		Job:      job,
		Outcome:  Written,
		Size:     int64(len(data)),
		Duration: time.Since(start),
	}
}
