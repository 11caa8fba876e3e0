// Package gather downloads historical market data into the bar store.
package gather

import (
	"context"
	"time"
)

// Gatherer is a one-shot data download job.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the download. It returns when the job is complete or
	// ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range contains no instant.
func (r DateRange) Empty() bool { return !r.End.After(r.Start) }

// Months splits r into consecutive ranges that end at calendar month
// boundaries in Start's location. The last range ends at r.End.
func (r DateRange) Months() []DateRange {
	var chunks []DateRange
	for start := r.Start; start.Before(r.End); {
		y, m, _ := start.Date()
		end := time.Date(y, m+1, 1, 0, 0, 0, 0, start.Location())
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, DateRange{Start: start, End: end})
		start = end
	}
	return chunks
}
