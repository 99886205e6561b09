// internal/logparse/event.go
package logparse

import "time"

// Pool identifies which backend pool served a request.
type Pool string

// Known pool labels. Anything else in the log maps to PoolUnknown.
const (
	PoolPrimary Pool = "primary"
	PoolBackup  Pool = "backup"
	PoolUnknown Pool = "unknown"
)

// ParsePool normalizes a raw pool label to the enum.
func ParsePool(label string) Pool {
	switch Pool(normalize(label)) {
	case PoolPrimary:
		return PoolPrimary
	case PoolBackup:
		return PoolBackup
	default:
		return PoolUnknown
	}
}

// LogEvent is one parsed access-log line. Immutable once constructed.
type LogEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Pool           Pool      `json:"pool"`
	Release        string    `json:"release"`
	Upstream       string    `json:"upstream"`
	Status         int       `json:"status"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	RequestTime    float64   `json:"request_time,omitempty"`
}

// IsError reports whether the request failed server-side. The upstream
// status counts too: the proxy can serve a cached 200 while the upstream
// returned 5xx.
func (e LogEvent) IsError() bool {
	return e.Status >= 500 || e.UpstreamStatus >= 500
}
