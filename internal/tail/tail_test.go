// internal/tail/tail_test.go
package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startTailer(t *testing.T, path string, fromStart bool) (*Tailer, context.CancelFunc, chan error) {
	t.Helper()

	tailer, err := NewTailer(&Config{
		Path:         path,
		PollInterval: 10 * time.Millisecond,
		FromStart:    fromStart,
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tailer.Run(ctx)
		close(done)
	}()

	// Let the tailer perform its initial open before the test writes,
	// so a write cannot land before the seek-to-end on a busy machine.
	time.Sleep(50 * time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("tailer did not stop")
		}
	})

	return tailer, cancel, done
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func expectLine(t *testing.T, tailer *Tailer, want string) {
	t.Helper()
	select {
	case got := <-tailer.Lines():
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for line %q", want)
	}
}

func expectNoLine(t *testing.T, tailer *Tailer) {
	t.Helper()
	select {
	case got := <-tailer.Lines():
		t.Fatalf("unexpected line %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("requires path", func(t *testing.T) {
		assert.Error(t, (&Config{}).Validate())
	})
}

func TestTailer_followsAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendLine(t, path, "preexisting")

	tailer, _, _ := startTailer(t, path, false)

	// Starts at end: the preexisting line is skipped.
	expectNoLine(t, tailer)

	appendLine(t, path, "first")
	expectLine(t, tailer, "first")

	appendLine(t, path, "second")
	expectLine(t, tailer, "second")
}

func TestTailer_fromStartReadsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendLine(t, path, "old line")

	tailer, _, _ := startTailer(t, path, true)
	expectLine(t, tailer, "old line")
}

func TestTailer_waitsForFileToAppear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")

	tailer, _, _ := startTailer(t, path, true)
	expectNoLine(t, tailer)

	appendLine(t, path, "born late")
	expectLine(t, tailer, "born late")
}

func TestTailer_survivesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendLine(t, path, "seed")

	tailer, _, _ := startTailer(t, path, false)
	appendLine(t, path, "before truncate")
	expectLine(t, tailer, "before truncate")

	require.NoError(t, os.Truncate(path, 0))
	// Give the tailer a poll tick to notice the shrink.
	time.Sleep(50 * time.Millisecond)

	appendLine(t, path, "after truncate")
	expectLine(t, tailer, "after truncate")
}

func TestTailer_survivesRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendLine(t, path, "seed")

	tailer, _, _ := startTailer(t, path, false)
	appendLine(t, path, "pre-rotate")
	expectLine(t, tailer, "pre-rotate")

	require.NoError(t, os.Rename(path, path+".1"))
	time.Sleep(50 * time.Millisecond)

	appendLine(t, path, "post-rotate")
	expectLine(t, tailer, "post-rotate")
}

func TestTailer_partialLinesBufferedUntilNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendLine(t, path, "seed")

	tailer, _, _ := startTailer(t, path, false)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("half")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	expectNoLine(t, tailer)

	appendLine(t, path, " done")
	expectLine(t, tailer, "half done")
}

func TestTailer_stopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendLine(t, path, "seed")

	_, cancel, done := startTailer(t, path, false)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tailer did not stop on cancel")
	}
}
