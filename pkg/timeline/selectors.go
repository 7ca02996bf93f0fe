package timeline

// The page structure changes without notice; selectors are tried in order
// from specific to generic and kept in one place so updates are a one-file
// edit.

// postLinkSelectors locate timeline tiles that link to a post detail view
var postLinkSelectors = []string{
	"main a[href^='/p/']",
	"article a[href^='/p/']",
	"a[href^='/p/']",
	"div[role='presentation'] a[href^='/p/']",
}

// pinnedLinkSelectors locate tiles carrying a pinned-post badge. Pinned
// posts sit at the top of the grid regardless of age and would defeat the
// reverse-chronological early stop, so the scanner drops them.
var pinnedLinkSelectors = []string{
	"a:has(svg[aria-label='Pinned'])",
	"a:has(svg[aria-label='Pinned post icon'])",
	"a:has(svg[aria-label='置顶帖图标'])",
	"a:has(svg[aria-label='已置顶'])",
}

// timeSelectors locate the publish-time element on a post detail view
var timeSelectors = []string{
	"article time",
	"main time",
	"time",
}

// loginMarkers in the current location mean the session is not authenticated
var loginMarkers = []string{
	"/accounts/login",
	"/challenge",
}
