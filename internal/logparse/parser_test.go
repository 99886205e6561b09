// internal/logparse/parser_test.go
package logparse

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func testParser() *Parser {
	return NewParser(func() time.Time { return fixedNow })
}

func TestParser_Parse(t *testing.T) {
	p := testParser()

	t.Run("parses full line", func(t *testing.T) {
		line := `10.0.0.1 - - [02/Jan/2026:15:04:05 +0000] "GET /api/orders HTTP/1.1" 503 512 ` +
			`pool=primary release=v1.2.3 upstream=10.0.1.7:8080 upstream_status=503 request_time=0.012`

		ev, err := p.Parse(line)
		require.NoError(t, err)
		assert.Equal(t, PoolPrimary, ev.Pool)
		assert.Equal(t, "v1.2.3", ev.Release)
		assert.Equal(t, "10.0.1.7:8080", ev.Upstream)
		assert.Equal(t, 503, ev.Status)
		assert.Equal(t, 503, ev.UpstreamStatus)
		assert.InDelta(t, 0.012, ev.RequestTime, 1e-9)
		assert.Equal(t, fixedNow, ev.Timestamp)
	})

	t.Run("accepts explicit status field", func(t *testing.T) {
		ev, err := p.Parse(`status=200 pool=backup release=v2 upstream=app-b:9090`)
		require.NoError(t, err)
		assert.Equal(t, 200, ev.Status)
		assert.Equal(t, PoolBackup, ev.Pool)
	})

	t.Run("optional fields default to zero", func(t *testing.T) {
		ev, err := p.Parse(`"GET / HTTP/1.1" 200 pool=primary release=r1 upstream=10.0.0.2:80`)
		require.NoError(t, err)
		assert.Zero(t, ev.UpstreamStatus)
		assert.Zero(t, ev.RequestTime)
		assert.False(t, ev.IsError())
	})

	t.Run("normalizes pool label case", func(t *testing.T) {
		ev, err := p.Parse(`status=200 pool=PRIMARY release=r1 upstream=10.0.0.2:80`)
		require.NoError(t, err)
		assert.Equal(t, PoolPrimary, ev.Pool)
	})

	t.Run("unrecognized pool maps to unknown without failing", func(t *testing.T) {
		ev, err := p.Parse(`status=502 pool=canary release=r1 upstream=10.0.0.2:80`)
		require.NoError(t, err)
		assert.Equal(t, PoolUnknown, ev.Pool)
		assert.True(t, ev.IsError())
	})

	t.Run("tolerates trailing newline", func(t *testing.T) {
		_, err := p.Parse("status=200 pool=primary release=r1 upstream=h:80\n")
		assert.NoError(t, err)
	})
}

func TestParser_Parse_failures(t *testing.T) {
	p := testParser()

	cases := []struct {
		name  string
		line  string
		field string
	}{
		{"empty line", "", "status"},
		{"missing status", `pool=primary release=r1 upstream=h:80`, "status"},
		{"missing pool", `status=200 release=r1 upstream=h:80`, "pool"},
		{"missing release", `status=200 pool=primary upstream=h:80`, "release"},
		{"missing upstream", `status=200 pool=primary release=r1`, "upstream"},
		{"upstream without port", `status=200 pool=primary release=r1 upstream=hostonly`, "upstream"},
		{"status out of range", `status=999 pool=primary release=r1 upstream=h:80`, "status"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Parse(tc.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.field, pe.Field)
		})
	}
}

func TestLogEvent_IsError(t *testing.T) {
	t.Run("upstream 5xx counts even with 200 edge status", func(t *testing.T) {
		ev := LogEvent{Status: 200, UpstreamStatus: 500}
		assert.True(t, ev.IsError())
	})

	t.Run("4xx is not an error", func(t *testing.T) {
		ev := LogEvent{Status: 404}
		assert.False(t, ev.IsError())
	})
}
