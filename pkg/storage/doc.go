// Package storage computes deterministic asset paths and writes files
// atomically.
//
// The path layout is stable across runs so that re-running the daily job is
// idempotent:
//
//	data/<username>/<YYYY-MM-DD>/<userID>_<postID>_<index>_<HHMMSS>.jpg
//	data/<username>/<YYYY-MM-DD>/<userID>_<postID>_caption_<epoch>.txt
//
// Writes go to a temporary file first and are renamed into place, so a
// cancelled or failed download never leaves a partial file at the target.
package storage
