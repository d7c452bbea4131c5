package logring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(msg string) Entry {
	return Entry{Time: time.Now(), Level: LevelInfo, Stream: StreamStdout, Message: msg}
}

func TestRingEvictsOldest(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Append(entry(fmt.Sprintf("line-%d", i)))
	}
	got := r.Last(10)
	require.Len(t, got, 3)
	assert.Equal(t, "line-2", got[0].Message)
	assert.Equal(t, "line-4", got[2].Message)
}

func TestLastReturnsNewestN(t *testing.T) {
	r := New(10)
	for i := 0; i < 4; i++ {
		r.Append(entry(fmt.Sprintf("line-%d", i)))
	}
	got := r.Last(2)
	require.Len(t, got, 2)
	assert.Equal(t, "line-2", got[0].Message)
	assert.Equal(t, "line-3", got[1].Message)

	assert.Empty(t, r.Last(0))
	assert.Len(t, r.Last(100), 4)
}

func TestNonPositiveCapacityUsesDefault(t *testing.T) {
	r := New(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		r.Append(entry(fmt.Sprintf("line-%d", i)))
	}
	assert.Len(t, r.Last(DefaultCapacity+10), DefaultCapacity)
}

func TestSinceTracksCursor(t *testing.T) {
	r := New(5)
	r.Append(entry("a"))
	r.Append(entry("b"))

	got, seq := r.Since(0)
	require.Len(t, got, 2)
	assert.Equal(t, 2, seq)

	got, seq = r.Since(seq)
	assert.Empty(t, got)
	assert.Equal(t, 2, seq)

	r.Append(entry("c"))
	got, seq = r.Since(seq)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Message)
	assert.Equal(t, 3, seq)
}

func TestSinceSkipsEvicted(t *testing.T) {
	r := New(2)
	seq := r.Seq()
	for i := 0; i < 6; i++ {
		r.Append(entry(fmt.Sprintf("line-%d", i)))
	}
	got, next := r.Since(seq)
	require.Len(t, got, 2)
	assert.Equal(t, "line-4", got[0].Message)
	assert.Equal(t, "line-5", got[1].Message)
	assert.Equal(t, 6, next)
}

func TestTailSnapshotsBacklogAndCursor(t *testing.T) {
	r := New(5)
	r.Append(entry("a"))
	r.Append(entry("b"))
	r.Append(entry("c"))

	backlog, seq := r.Tail(2)
	require.Len(t, backlog, 2)
	assert.Equal(t, "b", backlog[0].Message)
	assert.Equal(t, "c", backlog[1].Message)

	// Everything appended after the snapshot is visible through the cursor.
	r.Append(entry("d"))
	got, next := r.Since(seq)
	require.Len(t, got, 1)
	assert.Equal(t, "d", got[0].Message)
	assert.Equal(t, 4, next)
}

func TestClassifyKeywords(t *testing.T) {
	cases := map[string]Level{
		"listening on :8080":             LevelInfo,
		"ERROR: connection refused":      LevelError,
		"request failed with status 502": LevelError,
		"FATAL: out of memory":           LevelError,
		"warning: config file not found": LevelWarn,
		"use of X is deprecated":         LevelWarn,
		"debug: cache miss for key":      LevelDebug,
		"plain line with no keywords":    LevelInfo,
		"mirrored to stderrfile":         LevelInfo, // keyword must sit on a word boundary
	}
	for line, want := range cases {
		assert.Equal(t, want, Classify(line), line)
	}
}

func TestClassifyStructuredLine(t *testing.T) {
	assert.Equal(t, LevelError, Classify(`{"level":"error","msg":"boom"}`))
	assert.Equal(t, LevelWarn, Classify(`{"level":"warning","msg":"careful"}`))
	assert.Equal(t, LevelDebug, Classify(`{"level":"trace","msg":"step"}`))
	assert.Equal(t, LevelInfo, Classify(`{"level":"notice","msg":"hi"}`))
	// malformed JSON falls back to keyword rules
	assert.Equal(t, LevelError, Classify(`{"level": error`))
	// JSON without a level field falls back too
	assert.Equal(t, LevelInfo, Classify(`{"msg":"hello"}`))
}
