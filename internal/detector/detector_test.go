// internal/detector/detector_test.go
package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/poolwatch/internal/logparse"
)

func poolEvent(pool logparse.Pool, at time.Time) logparse.LogEvent {
	return logparse.LogEvent{
		Timestamp: at,
		Pool:      pool,
		Release:   "v1",
		Upstream:  "10.0.0.1:8080",
		Status:    200,
	}
}

func TestDetector_Observe(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	t.Run("first attributed pool seeds state without transition", func(t *testing.T) {
		d := NewDetector()

		tr, changed := d.Observe(poolEvent(logparse.PoolPrimary, base))
		assert.False(t, changed)
		assert.Nil(t, tr)
		assert.Equal(t, logparse.PoolPrimary, d.State().Pool)
	})

	t.Run("unknown never updates state", func(t *testing.T) {
		d := NewDetector()

		_, changed := d.Observe(poolEvent(logparse.PoolUnknown, base))
		assert.False(t, changed)
		assert.Equal(t, logparse.PoolUnknown, d.State().Pool)
	})

	t.Run("detects exactly one transition across noisy sequence", func(t *testing.T) {
		d := NewDetector()
		pools := []logparse.Pool{
			logparse.PoolPrimary,
			logparse.PoolPrimary,
			logparse.PoolBackup,
			logparse.PoolUnknown,
			logparse.PoolBackup,
		}

		var transitions []*Transition
		for i, p := range pools {
			tr, changed := d.Observe(poolEvent(p, base.Add(time.Duration(i)*time.Second)))
			if changed {
				transitions = append(transitions, tr)
			}
		}

		require.Len(t, transitions, 1)
		assert.Equal(t, logparse.PoolPrimary, transitions[0].From)
		assert.Equal(t, logparse.PoolBackup, transitions[0].To)
		assert.Equal(t, base.Add(2*time.Second), transitions[0].At)
	})

	t.Run("transition carries release and upstream of the triggering event", func(t *testing.T) {
		d := NewDetector()
		_, _ = d.Observe(poolEvent(logparse.PoolPrimary, base))

		ev := poolEvent(logparse.PoolBackup, base.Add(time.Minute))
		ev.Release = "v2.0.1"
		ev.Upstream = "10.0.2.9:8080"

		tr, changed := d.Observe(ev)
		require.True(t, changed)
		assert.Equal(t, "v2.0.1", tr.Release)
		assert.Equal(t, "10.0.2.9:8080", tr.Upstream)
	})

	t.Run("failback produces a second transition", func(t *testing.T) {
		d := NewDetector()
		_, _ = d.Observe(poolEvent(logparse.PoolPrimary, base))
		_, changed := d.Observe(poolEvent(logparse.PoolBackup, base.Add(time.Second)))
		require.True(t, changed)

		tr, changed := d.Observe(poolEvent(logparse.PoolPrimary, base.Add(2*time.Second)))
		require.True(t, changed)
		assert.Equal(t, logparse.PoolBackup, tr.From)
		assert.Equal(t, logparse.PoolPrimary, tr.To)
	})
}
