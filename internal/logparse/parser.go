// internal/logparse/parser.go

// Package logparse turns raw proxy access-log lines into structured events.
//
// The line grammar is a contract with the proxy's log_format: an nginx
// combined-style line followed by trailing key=value fields, e.g.
//
//	10.0.0.1 - - [02/Jan/2026:15:04:05 +0000] "GET /api HTTP/1.1" 503 512
//	pool=primary release=v1.2.3 upstream=10.0.1.7:8080 upstream_status=503
//	request_time=0.012
//
// Required fields: the HTTP status (the integer after the quoted request,
// or an explicit status= field), pool=, release= and upstream=. The
// upstream_status= and request_time= fields are optional.
package logparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a line that could not be decomposed into the required
// fields. It is recoverable: callers count it and move on.
type ParseError struct {
	Field string
	Line  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("logparse: missing or malformed field %q", e.Field)
}

// Is makes errors.Is(err, ErrMalformed) work for any *ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrMalformed }

// ErrMalformed is the sentinel matched by all parse failures.
var ErrMalformed = errors.New("logparse: malformed line")

var (
	poolRe           = regexp.MustCompile(`(?:^|\s)pool=(\S+)`)
	releaseRe        = regexp.MustCompile(`(?:^|\s)release=([\w\-.]+)`)
	upstreamRe       = regexp.MustCompile(`(?:^|\s)upstream=([\w\-.]+:\d+)`)
	statusFieldRe    = regexp.MustCompile(`(?:^|\s)status=(\d{3})`)
	upstreamStatusRe = regexp.MustCompile(`(?:^|\s)upstream_status=(\d{3})`)
	requestTimeRe    = regexp.MustCompile(`(?:^|\s)request_time=(\d+(?:\.\d+)?)`)
	requestQuoteRe   = regexp.MustCompile(`"[A-Z]+\s+[^"]*"\s+(\d{3})`)
)

// Parser builds LogEvents from raw lines. The zero value is not usable;
// construct with NewParser.
type Parser struct {
	now func() time.Time
}

// NewParser creates a parser. now may be nil, in which case time.Now is used;
// tests inject a fixed clock.
func NewParser(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now}
}

// Parse decomposes one log line. The line need not carry a trailing newline.
// A missing or malformed required field returns a *ParseError; an
// unrecognized pool label is not an error and maps to PoolUnknown.
func (p *Parser) Parse(line string) (LogEvent, error) {
	line = strings.TrimRight(line, "\r\n")

	status, ok := extractStatus(line)
	if !ok {
		return LogEvent{}, &ParseError{Field: "status", Line: line}
	}
	if status < 100 || status > 599 {
		return LogEvent{}, &ParseError{Field: "status", Line: line}
	}

	poolMatch := poolRe.FindStringSubmatch(line)
	if poolMatch == nil {
		return LogEvent{}, &ParseError{Field: "pool", Line: line}
	}

	releaseMatch := releaseRe.FindStringSubmatch(line)
	if releaseMatch == nil {
		return LogEvent{}, &ParseError{Field: "release", Line: line}
	}

	upstreamMatch := upstreamRe.FindStringSubmatch(line)
	if upstreamMatch == nil {
		return LogEvent{}, &ParseError{Field: "upstream", Line: line}
	}

	ev := LogEvent{
		Timestamp: p.now(),
		Pool:      ParsePool(poolMatch[1]),
		Release:   releaseMatch[1],
		Upstream:  upstreamMatch[1],
		Status:    status,
	}

	if m := upstreamStatusRe.FindStringSubmatch(line); m != nil {
		ev.UpstreamStatus, _ = strconv.Atoi(m[1])
	}
	if m := requestTimeRe.FindStringSubmatch(line); m != nil {
		ev.RequestTime, _ = strconv.ParseFloat(m[1], 64)
	}

	return ev, nil
}

// extractStatus prefers an explicit status= field and falls back to the
// integer following the quoted request.
func extractStatus(line string) (int, bool) {
	if m := statusFieldRe.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	if m := requestQuoteRe.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	return 0, false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
