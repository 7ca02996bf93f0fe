package browser

import (
	"context"
	"fmt"
	"strings"
)

// BaseURL is the site root all profile and post paths hang off
const BaseURL = "https://www.instagram.com"

// ProfileURL returns the timeline URL for a username
func ProfileURL(username string) string {
	return fmt.Sprintf("%s/%s/", BaseURL, username)
}

// PostURL resolves a detail reference (an href like "/p/abc123/") to a full URL
func PostURL(ref string) string {
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return BaseURL + ref
}

// Page is the DOM capability the scanner and extractor consume. A real
// implementation drives a shared browser tab; tests substitute a fake that
// replays fixture snapshots. All navigation against one Page is inherently
// sequential.
type Page interface {
	// Navigate loads url and waits for the page to settle
	Navigate(ctx context.Context, url string) error
	// Location returns the current page URL (after any redirects)
	Location(ctx context.Context) (string, error)
	// WaitVisible blocks until the selector matches a visible element
	WaitVisible(ctx context.Context, selector string) error
	// Links returns the href attributes of all anchors matching selector
	Links(ctx context.Context, selector string) ([]string, error)
	// Text returns the text content of the first match, "" if none
	Text(ctx context.Context, selector string) (string, error)
	// Attribute returns the named attribute of the first match and whether
	// a matching element with that attribute exists
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	// Click clicks the first element matching selector
	Click(ctx context.Context, selector string) error
	// ScrollBy scrolls the viewport down by the given pixel delta
	ScrollBy(ctx context.Context, pixels int) error
	// Screenshot captures the current viewport, for debug artifacts
	Screenshot(ctx context.Context) ([]byte, error)
}
