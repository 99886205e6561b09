// internal/window/window.go

// Package window maintains the bounded most-recent-N sample set used for
// error-rate estimation.
package window

import (
	"errors"
	"fmt"
	"math"

	"github.com/FairForge/poolwatch/internal/logparse"
)

// ErrorRateSnapshot is derived from the window contents at query time.
type ErrorRateSnapshot struct {
	ErrorCount  int     `json:"error_count"`
	TotalCount  int     `json:"total_count"`
	RatePercent float64 `json:"rate_percent"`
}

// Aggregator holds the last windowSize events and computes error rates on
// demand. It stores raw events rather than running counters so a snapshot
// always reflects exactly the current member set.
//
// Not safe for concurrent use: the watcher loop is the sole writer.
type Aggregator struct {
	events []logparse.LogEvent
	head   int
	count  int
}

// NewAggregator creates an aggregator over the given window size.
func NewAggregator(windowSize int) (*Aggregator, error) {
	if windowSize < 1 {
		return nil, errors.New("window: size must be >= 1")
	}
	return &Aggregator{events: make([]logparse.LogEvent, windowSize)}, nil
}

// Add appends an event, evicting the oldest when the window is full. O(1).
func (a *Aggregator) Add(ev logparse.LogEvent) {
	size := len(a.events)
	a.events[(a.head+a.count)%size] = ev
	if a.count < size {
		a.count++
		return
	}
	a.head = (a.head + 1) % size
}

// Len returns the current number of events in the window.
func (a *Aggregator) Len() int { return a.count }

// Size returns the configured window capacity.
func (a *Aggregator) Size() int { return len(a.events) }

// Snapshot computes the error rate over the current window contents.
// RatePercent is 0 when the window is empty. Before the window fills the
// rate is computed over fewer samples and should be treated as
// lower-confidence by callers.
func (a *Aggregator) Snapshot() ErrorRateSnapshot {
	snap := ErrorRateSnapshot{TotalCount: a.count}
	if a.count == 0 {
		return snap
	}
	for i := 0; i < a.count; i++ {
		if a.events[(a.head+i)%len(a.events)].IsError() {
			snap.ErrorCount++
		}
	}
	snap.RatePercent = roundRate(100 * float64(snap.ErrorCount) / float64(snap.TotalCount))
	return snap
}

func (s ErrorRateSnapshot) String() string {
	return fmt.Sprintf("%d/%d (%.2f%%)", s.ErrorCount, s.TotalCount, s.RatePercent)
}

// roundRate keeps two decimal places, matching what the alert payload shows.
func roundRate(v float64) float64 {
	return math.Round(v*100) / 100
}
