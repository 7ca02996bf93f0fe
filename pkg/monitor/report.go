package monitor

import (
	"sync"
	"time"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

// UserReport aggregates what one scan produced for one profile
type UserReport struct {
	Username   string
	Scanned    int // summaries pulled from the timeline
	Fresh      int // posts inside the freshness window
	Skipped    int // summaries with no usable publish time
	Stale      int // summaries older than the window
	Downloaded int // images written this run
	AlreadyHad int // images found on disk from an earlier run
	Failed     int // images that ended in a terminal failure

	// FailuresByKind itemizes terminal failures for the run summary
	FailuresByKind map[errors.Kind]int
}

// RunResult is the outcome of one monitoring run across all profiles.
// Methods are safe for concurrent use; download results arrive from the
// pool's collector while scans are still in flight.
type RunResult struct {
	StartedAt time.Time
	Duration  time.Duration

	mu    sync.Mutex
	order []string
	users map[string]*UserReport
}

// NewRunResult creates an empty result stamped with the run start
func NewRunResult(startedAt time.Time) *RunResult {
	return &RunResult{
		StartedAt: startedAt,
		users:     make(map[string]*UserReport),
	}
}

// User returns the report for username, creating it on first use
func (r *RunResult) User(username string) *UserReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userLocked(username)
}

func (r *RunResult) userLocked(username string) *UserReport {
	rep, ok := r.users[username]
	if !ok {
		rep = &UserReport{
			Username:       username,
			FailuresByKind: make(map[errors.Kind]int),
		}
		r.users[username] = rep
		r.order = append(r.order, username)
	}
	return rep
}

// RecordScan stores the filter counters for one profile
func (r *RunResult) RecordScan(username string, scanned, fresh, skipped, stale int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.userLocked(username)
	rep.Scanned = scanned
	rep.Fresh = fresh
	rep.Skipped = skipped
	rep.Stale = stale
}

// RecordDownloaded counts one image written this run
func (r *RunResult) RecordDownloaded(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userLocked(username).Downloaded++
}

// RecordAlreadyHad counts one image found on disk from an earlier run
func (r *RunResult) RecordAlreadyHad(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userLocked(username).AlreadyHad++
}

// RecordFailure counts one terminal failure, itemized by kind
func (r *RunResult) RecordFailure(username string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.userLocked(username)
	rep.Failed++
	rep.FailuresByKind[errors.KindOf(err)]++
}

// Users returns the per-profile reports in the order they were scanned
func (r *RunResult) Users() []*UserReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*UserReport, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.users[name])
	}
	return out
}

// Totals sums the image outcomes across every profile
func (r *RunResult) Totals() (downloaded, alreadyHad, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.users {
		downloaded += rep.Downloaded
		alreadyHad += rep.AlreadyHad
		failed += rep.Failed
	}
	return downloaded, alreadyHad, failed
}

// LogRunSummary writes the end-of-run summary, one line per profile plus the
// run totals
func LogRunSummary(r *RunResult) {
	log := logger.GetLogger()

	for _, rep := range r.Users() {
		fields := map[string]interface{}{
			"username":    rep.Username,
			"scanned":     rep.Scanned,
			"fresh":       rep.Fresh,
			"skipped":     rep.Skipped,
			"downloaded":  rep.Downloaded,
			"already_had": rep.AlreadyHad,
			"failed":      rep.Failed,
		}
		for kind, n := range rep.FailuresByKind {
			fields["failed_"+string(kind)] = n
		}
		log.InfoWithFields("Profile summary", fields)
	}

	downloaded, alreadyHad, failed := r.Totals()
	log.InfoWithFields("Run finished", map[string]interface{}{
		"profiles":    len(r.Users()),
		"downloaded":  downloaded,
		"already_had": alreadyHad,
		"failed":      failed,
		"duration":    r.Duration,
	})
}
