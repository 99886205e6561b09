// internal/history/history_test.go
package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FairForge/poolwatch/internal/policy"
)

func TestNewStore(t *testing.T) {
	t.Run("rejects empty DSN", func(t *testing.T) {
		_, err := NewStore("", nil)
		assert.Error(t, err)
	})
}

func TestStore_nilIsNoop(t *testing.T) {
	var s *Store

	assert.NoError(t, s.EnsureSchema(context.Background()))

	// Must not panic.
	s.RecordAlert(context.Background(), policy.AlertIntent{ID: "x", Kind: policy.KindFailover}, true)

	records, err := s.RecentAlerts(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, records)

	assert.NoError(t, s.Close())
}
