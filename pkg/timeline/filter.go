package timeline

import (
	"context"
	"time"

	"igmonitor/pkg/errors"
)

// FilterStats counts what the filter consumed from the scanner
type FilterStats struct {
	Scanned int // summaries pulled from the source
	Skipped int // unparseable publish times, never fresh
	Stale   int // older than the window

	// Unreachable collects the errors of summaries whose detail view
	// failed to open during timestamp resolution. The caller reports
	// these as failures rather than skips.
	Unreachable []error
}

// Filter consumes summaries in the scanner's delivery order and returns the
// ones published within the window ending at now.
//
// In the default (non-strict) mode the filter stops pulling from the source
// at the first stale summary, relying on feeds being reverse-chronological;
// that is an optimization, not a correctness requirement. Strict mode drains
// the source and must be used when the ordering assumption is in doubt.
//
// A summary whose publish time could not be determined is never treated as
// fresh: unparseable times count as skipped, unreachable detail views are
// collected in the stats for the caller to report as failures.
func Filter(ctx context.Context, src Source, now time.Time, window time.Duration, strict bool) ([]PostSummary, FilterStats, error) {
	var fresh []PostSummary
	var stats FilterStats

	for {
		sum, err := src.Next(ctx)
		if err != nil {
			return fresh, stats, err
		}
		if sum == nil {
			return fresh, stats, nil
		}
		stats.Scanned++

		if sum.TimeErr != nil {
			if errors.KindOf(sum.TimeErr) == errors.KindPostUnreachable {
				stats.Unreachable = append(stats.Unreachable, sum.TimeErr)
			} else {
				stats.Skipped++
			}
			continue
		}

		if now.Sub(sum.PublishedAt) <= window {
			fresh = append(fresh, *sum)
			continue
		}

		stats.Stale++
		if !strict {
			return fresh, stats, nil
		}
	}
}
