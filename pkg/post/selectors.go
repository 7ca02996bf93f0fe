package post

// Detail-view selectors, ordered specific to generic. Kept in one place so
// page structure changes are a one-file edit.

// imageSelectors locate the currently displayed image of a post
var imageSelectors = []string{
	"article div[role='button'] img[srcset]",
	"article img[srcset]",
	"article img[src]",
	"main img[src]",
}

// nextButtonSelectors locate the carousel advance button; its presence is
// what distinguishes a carousel from a single-image post
var nextButtonSelectors = []string{
	"button[aria-label='Next']",
	"button[aria-label='下一张']",
	"button[aria-label*='Next']",
}

// captionSelectors locate the caption text block
var captionSelectors = []string{
	"article h1",
	"article ul li:first-child span",
	"article ul div span",
}

// ownerSelectors locate the post owner's handle on the detail view
var ownerSelectors = []string{
	"article header a",
	"article h2 a",
	"article ul h1 a",
}

// articleSelector is the detail-view container the extractor waits for
const articleSelector = "article"
