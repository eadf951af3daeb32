package statestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWALAssignsIncreasingSequenceNumbers(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	e1, err := s.AppendWAL(WALEntry{RunID: "run-1", ItemID: "itm-1", Stage: StageRead})
	require.NoError(t, err)
	e2, err := s.AppendWAL(WALEntry{RunID: "run-1", ItemID: "itm-1", Stage: StageWrite})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
}

func TestAppendWALSequencesAreIndependentPerRun(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AppendWAL(WALEntry{RunID: "run-a"})
	require.NoError(t, err)
	b, err := s.AppendWAL(WALEntry{RunID: "run-b"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a.Seq)
	assert.Equal(t, uint64(1), b.Seq)
}

func TestSaveAndLoadCheckpointRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	cp := Checkpoint{RunID: "run-1", ItemID: "itm-1", PartID: "p0", Stage: StageCommitted, SrcCursor: "id>100", RowsDone: 500}
	require.NoError(t, s.SaveCheckpoint(cp))

	got, ok := s.LoadCheckpoint("run-1", "itm-1", "p0")
	require.True(t, ok)
	assert.Equal(t, StageCommitted, got.Stage)
	assert.Equal(t, "id>100", got.SrcCursor)
	assert.Equal(t, int64(500), got.RowsDone)
}

func TestLoadCheckpointMissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.LoadCheckpoint("run-x", "itm-x", "p0")
	assert.False(t, ok)
}

// Reopening the store must recover both the checkpoint map and the WAL
// sequence counters, so a resumed run picks up exactly where it left off
// and never reuses a sequence number (spec.md §8 idempotent-resume
// property).
func TestReopenRecoversCheckpointsAndWALSequence(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	_, err = s1.AppendWAL(WALEntry{RunID: "run-1", Stage: StageRead})
	require.NoError(t, err)
	_, err = s1.AppendWAL(WALEntry{RunID: "run-1", Stage: StageWrite})
	require.NoError(t, err)
	require.NoError(t, s1.SaveCheckpoint(Checkpoint{RunID: "run-1", ItemID: "itm-1", PartID: "p0", Stage: StageWrite, RowsDone: 100}))
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	cp, ok := s2.LoadCheckpoint("run-1", "itm-1", "p0")
	require.True(t, ok)
	assert.Equal(t, int64(100), cp.RowsDone)

	next, err := s2.AppendWAL(WALEntry{RunID: "run-1", Stage: StageCommitted})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next.Seq, "sequence numbering must continue after reopen, not reset")
}

func TestIterWALReplaysOnlyMatchingRunInAppendOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AppendWAL(WALEntry{RunID: "run-1", PartID: "p0", Stage: StageRead})
	require.NoError(t, err)
	_, err = s.AppendWAL(WALEntry{RunID: "run-2", PartID: "p0", Stage: StageRead})
	require.NoError(t, err)
	_, err = s.AppendWAL(WALEntry{RunID: "run-1", PartID: "p0", Stage: StageWrite})
	require.NoError(t, err)

	var seqs []uint64
	require.NoError(t, s.IterWAL("run-1", func(e WALEntry) error {
		seqs = append(seqs, e.Seq)
		assert.Equal(t, "run-1", e.RunID)
		return nil
	}))

	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestResumeCursorPrefersSrcCursorWhenCommitted(t *testing.T) {
	cp := Checkpoint{Stage: StageCommitted, SrcCursor: "src", PendingCursor: "pending"}
	assert.Equal(t, "src", cp.ResumeCursor(true))
	assert.Equal(t, "src", cp.ResumeCursor(false))
}

func TestResumeCursorUsesPendingWhenWALHasCommit(t *testing.T) {
	cp := Checkpoint{Stage: StageWrite, SrcCursor: "src", PendingCursor: "pending"}
	assert.Equal(t, "pending", cp.ResumeCursor(true))
}

func TestResumeCursorFallsBackToSrcWhenWALMissingCommit(t *testing.T) {
	cp := Checkpoint{Stage: StageWrite, SrcCursor: "src", PendingCursor: "pending"}
	assert.Equal(t, "src", cp.ResumeCursor(false))
}

func TestResumeCursorFallsBackToSrcWhenPendingEmpty(t *testing.T) {
	cp := Checkpoint{Stage: StageRead, SrcCursor: "src"}
	assert.Equal(t, "src", cp.ResumeCursor(true))
}

func TestHasBatchCommitFindsMatchingCommitEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AppendWAL(WALEntry{RunID: "run-1", ItemID: "itm-1", PartID: "p0", BatchID: 5, Stage: StageRead})
	require.NoError(t, err)

	ok, err := s.HasBatchCommit("run-1", "itm-1", "p0", 5)
	require.NoError(t, err)
	assert.False(t, ok, "no StageCommitted entry yet")

	_, err = s.AppendWAL(WALEntry{RunID: "run-1", ItemID: "itm-1", PartID: "p0", BatchID: 5, Stage: StageCommitted})
	require.NoError(t, err)

	ok, err = s.HasBatchCommit("run-1", "itm-1", "p0", 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenCreatesFilesUnderDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AppendWAL(WALEntry{RunID: "run-1"})
	require.NoError(t, err)
	require.NoError(t, s.SaveCheckpoint(Checkpoint{RunID: "run-1", ItemID: "itm-1", PartID: "p0"}))

	assert.FileExists(t, filepath.Join(dir, "wal.log"))
	assert.FileExists(t, filepath.Join(dir, "checkpoints.db"))
}
