package timeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"igmonitor/pkg/browser"
	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ratelimit"
)

const scrollStep = 1200 // pixels per scroll, roughly one viewport

var refIDPattern = regexp.MustCompile(`^/(?:p|reel)/([^/]+)/?`)

// PostSummary is one timeline entry as observed in the page DOM.
// TimeErr is set when the publish time could not be determined; such
// summaries are never treated as fresh.
type PostSummary struct {
	ID            string
	Ref           string // detail href, e.g. "/p/abc123/"
	PublishedAt   time.Time
	PublishedText string
	TimeErr       error
}

// Source is a lazy, finite, non-restartable sequence of post summaries.
// Next returns (nil, nil) once the sequence is exhausted.
type Source interface {
	Next(ctx context.Context) (*PostSummary, error)
}

// Scanner walks a profile timeline through the shared browser page.
// Each Scan re-scans from scratch; there is no resumption token.
type Scanner struct {
	page   browser.Page
	pacer  *ratelimit.Pacer
	cfg    *config.MonitorConfig
	logger logger.Logger
}

// NewScanner creates a timeline scanner bound to the shared page
func NewScanner(page browser.Page, pacer *ratelimit.Pacer, cfg *config.MonitorConfig) *Scanner {
	return &Scanner{
		page:   page,
		pacer:  pacer,
		cfg:    cfg,
		logger: logger.GetLogger(),
	}
}

// Scan navigates to the profile, loads the timeline grid, and returns a
// lazy sequence of post summaries in page order (newest first for a normal
// profile). Pinned posts are dropped; duplicate tiles surfaced by the
// infinite scroll are deduplicated by post ID.
func (s *Scanner) Scan(ctx context.Context, username string) (Source, error) {
	log := s.logger.WithField("username", username)

	if err := s.page.Navigate(ctx, browser.ProfileURL(username)); err != nil {
		return nil, fmt.Errorf("navigating to profile %s: %w", username, err)
	}
	if err := s.pacer.Pause(ctx); err != nil {
		return nil, err
	}

	// A login or challenge redirect means the shared session is gone.
	loc, err := s.page.Location(ctx)
	if err == nil {
		for _, marker := range loginMarkers {
			if strings.Contains(loc, marker) {
				return nil, errors.New(errors.KindSessionInvalid,
					"profile page redirected to %s", loc)
			}
		}
	}

	if err := s.page.WaitVisible(ctx, "main"); err != nil {
		s.saveDebugScreenshot(ctx, username)
		return nil, fmt.Errorf("timeline for %s did not render: %w", username, err)
	}

	for i := 0; i < s.cfg.ScrollCount; i++ {
		if err := s.page.ScrollBy(ctx, scrollStep); err != nil {
			log.WithError(err).Debug("Scroll failed, stopping early")
			break
		}
		if err := s.pacer.Pause(ctx); err != nil {
			return nil, err
		}
	}

	pinned := s.pinnedRefs(ctx)
	refs := s.collectRefs(ctx, pinned)

	logger.LogScan(username, len(refs), len(pinned))

	if len(refs) > s.cfg.MaxPostsPerScan {
		refs = refs[:s.cfg.MaxPostsPerScan]
	}

	return &sequence{
		page:  s.page,
		pacer: s.pacer,
		refs:  refs,
	}, nil
}

// collectRefs gathers post hrefs in grid order, skipping pinned tiles and
// duplicates
func (s *Scanner) collectRefs(ctx context.Context, pinned map[string]bool) []string {
	var links []string
	for _, sel := range postLinkSelectors {
		ls, err := s.page.Links(ctx, sel)
		if err != nil {
			continue
		}
		if len(ls) > 0 {
			links = ls
			break
		}
	}

	seen := make(map[string]bool)
	var refs []string
	for _, href := range links {
		id := RefID(href)
		if id == "" || seen[id] || pinned[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, href)
	}
	return refs
}

func (s *Scanner) pinnedRefs(ctx context.Context) map[string]bool {
	pinned := make(map[string]bool)
	for _, sel := range pinnedLinkSelectors {
		links, err := s.page.Links(ctx, sel)
		if err != nil {
			continue
		}
		for _, href := range links {
			if id := RefID(href); id != "" {
				pinned[id] = true
			}
		}
		if len(pinned) > 0 {
			break
		}
	}
	return pinned
}

func (s *Scanner) saveDebugScreenshot(ctx context.Context, username string) {
	buf, err := s.page.Screenshot(ctx)
	if err != nil || len(buf) == 0 {
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"username": username,
		"size":     len(buf),
	}).Debug("Captured debug screenshot of unrenderable timeline")
}

// RefID extracts the post ID from a detail href like "/p/abc123/"
func RefID(ref string) string {
	if strings.HasPrefix(ref, "http") {
		if i := strings.Index(ref, "/p/"); i >= 0 {
			ref = ref[i:]
		} else if i := strings.Index(ref, "/reel/"); i >= 0 {
			ref = ref[i:]
		}
	}
	m := refIDPattern.FindStringSubmatch(ref)
	if m == nil {
		return ""
	}
	return m[1]
}

// sequence lazily resolves publish times by visiting each detail view as
// the consumer pulls. The early-stopping filter therefore never opens posts
// past the first stale one.
type sequence struct {
	page  browser.Page
	pacer *ratelimit.Pacer
	refs  []string
	pos   int
}

func (q *sequence) Next(ctx context.Context) (*PostSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.pos >= len(q.refs) {
		return nil, nil
	}

	ref := q.refs[q.pos]
	q.pos++

	sum := &PostSummary{ID: RefID(ref), Ref: ref}

	if err := q.page.Navigate(ctx, browser.PostURL(ref)); err != nil {
		sum.TimeErr = errors.Wrap(errors.KindPostUnreachable, err,
			"cannot open post %s to read its publish time", sum.ID)
		return sum, nil
	}
	if err := q.pacer.Pause(ctx); err != nil {
		return nil, err
	}

	attr, text := q.readTime(ctx)
	sum.PublishedText = text

	published, err := ParseTimestamp(attr, text, time.Now())
	if err != nil {
		sum.TimeErr = err
		return sum, nil
	}
	sum.PublishedAt = published

	return sum, nil
}

func (q *sequence) readTime(ctx context.Context) (attr, text string) {
	for _, sel := range timeSelectors {
		if v, ok, err := q.page.Attribute(ctx, sel, "datetime"); err == nil && ok {
			attr = v
		}
		if t, err := q.page.Text(ctx, sel); err == nil && t != "" {
			text = t
		}
		if attr != "" || text != "" {
			return attr, text
		}
	}
	return attr, text
}
