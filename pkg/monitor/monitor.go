package monitor

import (
	"context"
	"fmt"
	"time"

	"igmonitor/internal/downloader"
	"igmonitor/pkg/browser"
	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/fetch"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/post"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/storage"
	"igmonitor/pkg/timeline"
)

// Session is the slice of the browser session the monitor needs
type Session interface {
	Page() browser.Page
	Close() error
}

// Scanner produces a lazy sequence of timeline summaries for one profile
type Scanner interface {
	Scan(ctx context.Context, username string) (timeline.Source, error)
}

// Extractor resolves the full content of one post
type Extractor interface {
	Extract(ctx context.Context, ref string) (*post.Detail, error)
}

// Store is the slice of the storage manager the monitor needs
type Store interface {
	downloader.Storage
	SaveCaption(text, path string) error
}

// Monitor runs one scan-filter-download pass over the configured profiles.
// The collaborator constructors are fields so tests can substitute fakes;
// production code goes through New and never touches them.
type Monitor struct {
	cfg    *config.Config
	logger logger.Logger
	now    func() time.Time

	dial         func(ctx context.Context, cfg *config.BrowserConfig) (Session, error)
	newScanner   func(page browser.Page, pacer *ratelimit.Pacer, cfg *config.MonitorConfig) Scanner
	newExtractor func(page browser.Page, pacer *ratelimit.Pacer) Extractor
	fetcher      downloader.Fetcher
	store        Store
}

// New creates a monitor wired to the real browser, fetcher, and storage
func New(cfg *config.Config) (*Monitor, error) {
	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "cannot prepare output directory %s", cfg.Output.BaseDirectory)
	}

	fetcher := fetch.NewClient(cfg.Download.Timeout, cfg.Download.RetryAttempts, nil)
	// CDN hosts are touchy about referrer-less image requests.
	fetcher.SetHeader("Referer", browser.BaseURL+"/")

	return &Monitor{
		cfg:    cfg,
		logger: logger.GetLogger(),
		now:    time.Now,
		dial: func(ctx context.Context, bcfg *config.BrowserConfig) (Session, error) {
			return browser.Connect(ctx, bcfg)
		},
		newScanner: func(page browser.Page, pacer *ratelimit.Pacer, mcfg *config.MonitorConfig) Scanner {
			return timeline.NewScanner(page, pacer, mcfg)
		},
		newExtractor: func(page browser.Page, pacer *ratelimit.Pacer) Extractor {
			return post.NewExtractor(page, pacer)
		},
		fetcher: fetcher,
		store:   store,
	}, nil
}

// Run executes one complete monitoring pass: every configured profile is
// scanned, fresh posts are extracted, and their images stream through the
// download pool. Per-post and per-image failures are absorbed into the
// result; only a fatal condition (lost session, cancelled run) aborts the
// pass and comes back as an error. The returned result is populated either
// way.
func (m *Monitor) Run(ctx context.Context) (*RunResult, error) {
	if m.cfg.Monitor.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Monitor.RunTimeout)
		defer cancel()
	}

	start := m.now()
	result := NewRunResult(start)

	logger.LogComponentStart("monitor", map[string]interface{}{
		"profiles": len(m.cfg.Monitor.Usernames),
		"window":   m.cfg.Monitor.FreshnessWindow,
		"strict":   m.cfg.Monitor.StrictFilter,
	})

	pacer := ratelimit.NewPacer(m.cfg.Browser.MinActionDelay, m.cfg.Browser.MaxActionDelay)

	sess, err := m.dial(ctx, &m.cfg.Browser)
	if err != nil {
		return result, err
	}
	defer sess.Close()

	page := sess.Page()
	scanner := m.newScanner(page, pacer, &m.cfg.Monitor)
	extractor := m.newExtractor(page, pacer)

	limiter := ratelimit.NewTokenBucket(m.cfg.Download.RequestsPerMinute, time.Minute)
	pool := downloader.NewPool(m.fetcher, m.store, limiter, m.cfg.Download.Workers)
	pool.Start(ctx)

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for res := range pool.Results() {
			switch res.Outcome {
			case downloader.Written:
				result.RecordDownloaded(res.Job.Username)
			case downloader.AlreadyExists:
				result.RecordAlreadyHad(res.Job.Username)
			case downloader.Failed:
				result.RecordFailure(res.Job.Username, res.Err)
			}
		}
	}()

	// Post IDs handled this run. A post surfacing on two watched profiles
	// is only extracted once.
	handled := make(map[string]bool)

	var runErr error
	for i, username := range m.cfg.Monitor.Usernames {
		if i > 0 {
			if err := pacer.Pause(ctx); err != nil {
				runErr = err
				break
			}
		}
		if err := m.runUser(ctx, username, scanner, extractor, pool, handled, result); err != nil {
			runErr = err
			break
		}
	}

	pool.Stop()
	<-collectorDone

	result.Duration = m.now().Sub(start)
	LogRunSummary(result)

	return result, runErr
}

// runUser scans one profile and feeds its fresh posts to the pool. Scan
// failures for one profile never abort the run unless they are fatal.
func (m *Monitor) runUser(ctx context.Context, username string, scanner Scanner, extractor Extractor, pool *downloader.Pool, handled map[string]bool, result *RunResult) error {
	log := m.logger.WithField("username", username)

	src, err := scanner.Scan(ctx, username)
	if err != nil {
		if errors.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		log.WithError(err).Warn("Timeline scan failed, moving on")
		result.RecordFailure(username, err)
		return nil
	}

	now := m.now()
	fresh, stats, ferr := timeline.Filter(ctx, src, now, m.cfg.Monitor.FreshnessWindow, m.cfg.Monitor.StrictFilter)
	result.RecordScan(username, stats.Scanned, len(fresh), stats.Skipped, stats.Stale)
	for _, uerr := range stats.Unreachable {
		log.WithError(uerr).Warn("Post detail unreachable during scan")
		result.RecordFailure(username, uerr)
	}
	if ferr != nil {
		return ferr
	}

	for _, sum := range fresh {
		if handled[sum.ID] {
			continue
		}
		handled[sum.ID] = true

		if err := m.processPost(ctx, username, sum, extractor, pool, result); err != nil {
			return err
		}
	}

	return nil
}

// processPost extracts one fresh post and submits its images. The post's
// publish time is captured once here so every artifact of the post lands in
// the same dated directory even when the run crosses midnight.
func (m *Monitor) processPost(ctx context.Context, username string, sum timeline.PostSummary, extractor Extractor, pool *downloader.Pool, result *RunResult) error {
	log := m.logger.WithFields(map[string]interface{}{
		"username": username,
		"post_id":  sum.ID,
	})

	detail, err := extractor.Extract(ctx, sum.Ref)
	if err != nil {
		if errors.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		log.WithError(err).Warn("Post extraction failed")
		result.RecordFailure(username, err)
		return nil
	}

	owner := detail.Owner
	if owner == "" {
		owner = username
	}
	capturedAt := sum.PublishedAt
	base := m.cfg.Output.BaseDirectory

	for _, img := range detail.Images {
		if img.Err != nil {
			log.WithError(img.Err).WithField("index", img.Index).Warn("Image unresolved")
			result.RecordFailure(username, img.Err)
			continue
		}

		job := downloader.Job{
			URL:      img.URL,
			Path:     storage.TargetPath(base, username, owner, detail.PostID, img.Index, capturedAt),
			Username: username,
			PostID:   detail.PostID,
			Index:    img.Index,
		}
		if !pool.Submit(ctx, job) {
			return ctx.Err()
		}
	}

	m.saveCaption(username, owner, detail, capturedAt)

	return nil
}

// saveCaption writes the caption side file. Best-effort: a caption failure
// never blocks the post's images.
func (m *Monitor) saveCaption(username, owner string, detail *post.Detail, capturedAt time.Time) {
	if detail.Caption == "" {
		return
	}

	path := storage.CaptionPath(m.cfg.Output.BaseDirectory, username, owner, detail.PostID,
		m.cfg.Output.CaptionExtension, capturedAt)
	if m.store.Exists(path) {
		return
	}

	content := fmt.Sprintf("author: %s\npublished: %s\n\n%s\n",
		owner, capturedAt.Format(time.RFC3339), detail.Caption)

	if err := m.store.SaveCaption(content, path); err != nil {
		m.logger.WithError(err).WithFields(map[string]interface{}{
			"username": username,
			"post_id":  detail.PostID,
		}).Warn("Caption not saved")
	}
}
