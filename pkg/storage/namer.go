package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[\\/*?:"<>|\s]`)

// SanitizeName strips characters that are unsafe in file names and caps the
// length so generated paths stay portable
func SanitizeName(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "")
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe
}

// TargetPath computes the deterministic file path for one image of a post:
//
//	<base>/<username>/<YYYY-MM-DD>/<userID>_<postID>_<index>_<HHMMSS>.jpg
//
// The same inputs always map to the same path, and distinct
// (username, postID, index) triples map to distinct paths.
func TargetPath(base, username, userID, postID string, index int, capturedAt time.Time) string {
	dir := dateDir(base, username, capturedAt)
	name := fmt.Sprintf("%s_%s_%d_%s.jpg",
		SanitizeName(userID),
		SanitizeName(postID),
		index,
		capturedAt.Format("150405"),
	)
	return filepath.Join(dir, name)
}

// CaptionPath computes the deterministic file path for a post's caption:
//
//	<base>/<username>/<YYYY-MM-DD>/<userID>_<postID>_caption_<epoch><ext>
func CaptionPath(base, username, userID, postID, ext string, capturedAt time.Time) string {
	if ext == "" {
		ext = ".txt"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	dir := dateDir(base, username, capturedAt)
	name := fmt.Sprintf("%s_%s_caption_%d%s",
		SanitizeName(userID),
		SanitizeName(postID),
		capturedAt.Unix(),
		ext,
	)
	return filepath.Join(dir, name)
}

func dateDir(base, username string, capturedAt time.Time) string {
	return filepath.Join(base, SanitizeName(username), capturedAt.Format("2006-01-02"))
}
