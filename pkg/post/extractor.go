package post

import (
	"context"
	"strings"

	"igmonitor/pkg/browser"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/timeline"
)

const (
	// maxSlides bounds carousel walking so a broken Next button cannot
	// loop forever
	maxSlides = 10
	// resolveAttempts bounds the retries for an image stuck on a
	// placeholder while the real asset loads
	resolveAttempts = 3
)

// Image is one resolved slide of a post, in display order. Index is 1-based
// and meaningful: it becomes part of the target file name. Err is set when
// the slide never resolved past a placeholder; only that slide is lost.
type Image struct {
	Index int
	URL   string
	Err   error
}

// Detail is the full content of a single post
type Detail struct {
	PostID  string
	Owner   string
	Images  []Image
	Caption string
}

// Extractor materializes a post's detail view and resolves its assets
type Extractor struct {
	page   browser.Page
	pacer  *ratelimit.Pacer
	logger logger.Logger
}

// NewExtractor creates an extractor bound to the shared page
func NewExtractor(page browser.Page, pacer *ratelimit.Pacer) *Extractor {
	return &Extractor{
		page:   page,
		pacer:  pacer,
		logger: logger.GetLogger(),
	}
}

// Extract opens the detail view behind ref and enumerates every image in
// slide order. A single-image post yields one entry; a carousel yields one
// per slide, no duplicates, no dropped slides. Caption resolution is
// best-effort and never fails the extraction. Returns post_unreachable when
// the detail view cannot be opened at all.
func (e *Extractor) Extract(ctx context.Context, ref string) (*Detail, error) {
	postID := timeline.RefID(ref)
	log := e.logger.WithField("post_id", postID)

	if err := e.page.Navigate(ctx, browser.PostURL(ref)); err != nil {
		return nil, errors.Wrap(errors.KindPostUnreachable, err, "cannot open post %s", postID)
	}
	if err := e.pacer.Pause(ctx); err != nil {
		return nil, err
	}
	if err := e.page.WaitVisible(ctx, articleSelector); err != nil {
		return nil, errors.Wrap(errors.KindPostUnreachable, err, "detail view for %s did not render", postID)
	}

	detail := &Detail{
		PostID: postID,
		Owner:  e.owner(ctx),
	}

	seen := make(map[string]bool)

	url, err := e.resolveCurrentImage(ctx)
	detail.Images = append(detail.Images, Image{Index: 1, URL: url, Err: err})
	if err == nil {
		seen[url] = true
	}

	for slide := 2; slide <= maxSlides; slide++ {
		if !e.clickNext(ctx) {
			break
		}
		if err := e.pacer.Pause(ctx); err != nil {
			return nil, err
		}

		url, err := e.resolveCurrentImage(ctx)
		if err == nil && seen[url] {
			// Repeated frame: the click may not have advanced yet. Keep
			// walking; maxSlides bounds the loop either way.
			continue
		}
		detail.Images = append(detail.Images, Image{Index: slide, URL: url, Err: err})
		if err == nil {
			seen[url] = true
		}
	}

	detail.Caption = e.caption(ctx)

	log.WithFields(map[string]interface{}{
		"images":      len(detail.Images),
		"has_caption": detail.Caption != "",
	}).Debug("Post extracted")

	return detail, nil
}

// resolveCurrentImage returns a directly fetchable URL for the displayed
// image, preferring the highest-resolution srcset candidate. Placeholder
// resolutions are retried a bounded number of times before giving up on
// that one image.
func (e *Extractor) resolveCurrentImage(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		if url := e.readImageURL(ctx); url != "" {
			return url, nil
		}
		if attempt < resolveAttempts {
			if err := e.pacer.Pause(ctx); err != nil {
				return "", err
			}
		}
	}
	return "", errors.New(errors.KindAssetUnresolved,
		"image did not resolve past a placeholder after %d attempts", resolveAttempts)
}

func (e *Extractor) readImageURL(ctx context.Context) string {
	for _, sel := range imageSelectors {
		if srcset, ok, err := e.page.Attribute(ctx, sel, "srcset"); err == nil && ok {
			if url := bestFromSrcset(srcset); isFetchable(url) {
				return url
			}
		}
		if src, ok, err := e.page.Attribute(ctx, sel, "src"); err == nil && ok && isFetchable(src) {
			return src
		}
	}
	return ""
}

// clickNext advances the carousel; false when no Next button is present
func (e *Extractor) clickNext(ctx context.Context) bool {
	for _, sel := range nextButtonSelectors {
		if _, ok, err := e.page.Attribute(ctx, sel, "aria-label"); err == nil && ok {
			if err := e.page.Click(ctx, sel); err == nil {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) owner(ctx context.Context) string {
	for _, sel := range ownerSelectors {
		if text, err := e.page.Text(ctx, sel); err == nil && text != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

func (e *Extractor) caption(ctx context.Context) string {
	for _, sel := range captionSelectors {
		if text, err := e.page.Text(ctx, sel); err == nil && text != "" {
			return text
		}
	}
	return ""
}

// bestFromSrcset picks the last srcset candidate, which the page lists in
// ascending resolution
func bestFromSrcset(srcset string) string {
	candidates := strings.Split(srcset, ",")
	if len(candidates) == 0 {
		return ""
	}
	last := strings.TrimSpace(candidates[len(candidates)-1])
	if i := strings.IndexByte(last, ' '); i > 0 {
		last = last[:i]
	}
	return last
}

// isFetchable rejects placeholders that cannot be downloaded directly
func isFetchable(url string) bool {
	return strings.HasPrefix(url, "http")
}
