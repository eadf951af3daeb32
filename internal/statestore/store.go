// Package statestore implements the durable checkpoint/WAL store from
// spec.md §4.2/§6: namespaced keys (`ck:{run}:{item}:{part}` for
// checkpoints, `wal:{run}:{seq}` for write-ahead entries), synchronous
// fsync-durable writes, and resume by replaying the WAL tail since the
// last committed checkpoint.
//
// No pure-Go embedded KV/B+tree library is available in this project's
// dependency pack (see DESIGN.md, Open Question: embedded KV store
// library), so the store is realized directly against a single
// append-only JSONL WAL file plus a gob-encoded checkpoint map file,
// guarded by the teacher's advisory-flock idiom
// (internal/lockfile, internal/storage/dolt/access_lock.go) and synced
// to disk on every write, the same durability contract the teacher's
// SQLite backend gets from WAL-mode commits.
package statestore

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stanstork/stratum/internal/lockfile"
)

// Stage is a checkpoint's position in the read -> write -> committed
// sequence (spec.md §4.2).
type Stage string

const (
	StageRunStart  Stage = "run_start"
	StageItemStart Stage = "item_start"
	StageRead      Stage = "read"
	StageWrite     Stage = "write"
	StageCommitted Stage = "committed"
)

// Checkpoint records resume state for one (run, item, part) triple.
// SrcCursor is the position of the last batch known committed;
// PendingCursor is set while a batch is in flight (stage read or write)
// and cleared back to "" once it commits. ResumeCursor implements the
// derivation table from spec.md §4.2.
type Checkpoint struct {
	RunID         string    `json:"run_id"`
	ItemID        string    `json:"item_id"`
	PartID        string    `json:"part_id"`
	Stage         Stage     `json:"stage"`
	SrcCursor     string    `json:"src_cursor"`     // serialized cursor.Cursor, last committed position
	PendingCursor string    `json:"pending_cursor"` // serialized cursor.Cursor, in-flight batch's next position
	BatchID       uint64    `json:"batch_id"`
	RowsDone      int64     `json:"rows_done"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ResumeCursor derives the cursor a producer should resume from, given
// this checkpoint and whether the WAL carries a BatchCommit (a
// StageCommitted entry) for cp.BatchID (spec.md §4.2's resume table):
//
//	stage      | WAL has commit for batch_id | resume cursor
//	committed  | —                           | SrcCursor
//	read/write | yes                         | PendingCursor (or SrcCursor if empty)
//	read/write | no                          | SrcCursor
//	(anything else / unknown)                | SrcCursor
func (cp Checkpoint) ResumeCursor(walHasCommit bool) string {
	if cp.Stage == StageCommitted {
		return cp.SrcCursor
	}
	if walHasCommit && cp.PendingCursor != "" {
		return cp.PendingCursor
	}
	return cp.SrcCursor
}

func checkpointKey(run, item, part string) string {
	return fmt.Sprintf("ck:%s:%s:%s", run, item, part)
}

// WALEntry is one append-only write-ahead log record.
type WALEntry struct {
	RunID     string    `json:"run_id"`
	Seq       uint64    `json:"seq"`
	ItemID    string    `json:"item_id"`
	PartID    string    `json:"part_id"`
	BatchID   uint64    `json:"batch_id"`
	Stage     Stage     `json:"stage"`
	Cursor    string    `json:"cursor"`
	RowsDone  int64     `json:"rows_done"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the durable state store: one WAL file and one checkpoints
// file under dir, both guarded by an advisory flock so that at most one
// process writes at a time (spec.md §5, single-writer-per-item).
type Store struct {
	mu          sync.Mutex
	dir         string
	walPath     string
	ckPath      string
	walFile     *os.File
	checkpoints map[string]Checkpoint
	seqByRun    map[string]uint64
}

const lockTimeout = 10 * time.Second

// Open opens (creating if necessary) the WAL and checkpoint files under
// dir and loads the existing checkpoint map and WAL sequence counters
// into memory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("statestore: create dir: %w", err)
	}
	s := &Store{
		dir:         dir,
		walPath:     filepath.Join(dir, "wal.log"),
		ckPath:      filepath.Join(dir, "checkpoints.db"),
		checkpoints: make(map[string]Checkpoint),
		seqByRun:    make(map[string]uint64),
	}

	walFile, err := os.OpenFile(s.walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("statestore: open wal: %w", err)
	}
	s.walFile = walFile

	if err := s.loadCheckpoints(); err != nil {
		_ = walFile.Close()
		return nil, err
	}
	if err := s.loadWALSequences(); err != nil {
		_ = walFile.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walFile.Close()
}

// loadCheckpoints reads the gob-encoded checkpoint map from ckPath, if it
// exists. A missing file means no checkpoints yet.
func (s *Store) loadCheckpoints() error {
	f, err := os.Open(s.ckPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("statestore: open checkpoints: %w", err)
	}
	defer f.Close()

	if err := acquireShared(f); err != nil {
		return fmt.Errorf("statestore: lock checkpoints for read: %w", err)
	}
	defer releaseLock(f)

	dec := gob.NewDecoder(f)
	var m map[string]Checkpoint
	if decErr := dec.Decode(&m); decErr != nil {
		return fmt.Errorf("statestore: decode checkpoints: %w", decErr)
	}
	s.checkpoints = m
	return nil
}

// loadWALSequences scans the WAL once at open time to recover the last
// sequence number written per run, so AppendWAL continues numbering
// correctly across process restarts.
func (s *Store) loadWALSequences() error {
	f, err := os.Open(s.walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("statestore: open wal for scan: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e WALEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("statestore: parse wal entry: %w", err)
		}
		if e.Seq > s.seqByRun[e.RunID] {
			s.seqByRun[e.RunID] = e.Seq
		}
	}
	return scanner.Err()
}

func acquireShared(f *os.File) error {
	return pollLock(f, lockfile.FlockSharedNonBlock)
}

func acquireExclusive(f *os.File) error {
	return pollLock(f, lockfile.FlockExclusiveNonBlock)
}

func pollLock(f *os.File, lockFn func(*os.File) error) error {
	deadline := time.Now().Add(lockTimeout)
	for {
		err := lockFn(f)
		if err == nil {
			return nil
		}
		if err != lockfile.ErrLockBusy {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("statestore: lock timeout: %w", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func releaseLock(f *os.File) {
	_ = lockfile.FlockUnlock(f)
}

// AppendWAL assigns the next sequence number for entry.RunID, writes the
// entry as one JSON line, and fsyncs before returning — the durability
// contract of spec.md §4.2/§5.
func (s *Store) AppendWAL(entry WALEntry) (WALEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := acquireExclusive(s.walFile); err != nil {
		return WALEntry{}, fmt.Errorf("statestore: lock wal: %w", err)
	}
	defer releaseLock(s.walFile)

	s.seqByRun[entry.RunID]++
	entry.Seq = s.seqByRun[entry.RunID]
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return WALEntry{}, fmt.Errorf("statestore: marshal wal entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.walFile.Write(data); err != nil {
		return WALEntry{}, fmt.Errorf("statestore: write wal entry: %w", err)
	}
	if err := s.walFile.Sync(); err != nil {
		return WALEntry{}, fmt.Errorf("statestore: fsync wal: %w", err)
	}
	return entry, nil
}

// IterWAL replays every WAL entry for runID in append order, calling fn
// for each. Used at resume time to find the last durable position for
// every (item, part) in the run.
func (s *Store) IterWAL(runID string, fn func(WALEntry) error) error {
	f, err := os.Open(s.walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("statestore: open wal for iteration: %w", err)
	}
	defer f.Close()

	if err := acquireShared(f); err != nil {
		return fmt.Errorf("statestore: lock wal for read: %w", err)
	}
	defer releaseLock(f)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e WALEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("statestore: parse wal entry: %w", err)
		}
		if e.RunID != runID {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// HasBatchCommit reports whether the WAL for runID carries a
// StageCommitted entry for (itemID, partID, batchID) — the "WAL has
// BatchCommit for that batch_id" condition in the resume table.
func (s *Store) HasBatchCommit(runID, itemID, partID string, batchID uint64) (bool, error) {
	found := false
	err := s.IterWAL(runID, func(e WALEntry) error {
		if e.ItemID == itemID && e.PartID == partID && e.BatchID == batchID && e.Stage == StageCommitted {
			found = true
		}
		return nil
	})
	return found, err
}

// SaveCheckpoint writes or replaces the checkpoint for
// (cp.RunID, cp.ItemID, cp.PartID) and fsyncs the checkpoints file.
func (s *Store) SaveCheckpoint(cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.UpdatedAt = time.Now()
	s.checkpoints[checkpointKey(cp.RunID, cp.ItemID, cp.PartID)] = cp
	return s.flushCheckpoints()
}

// LoadCheckpoint returns the checkpoint for (run, item, part), if any.
func (s *Store) LoadCheckpoint(run, item, part string) (Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[checkpointKey(run, item, part)]
	return cp, ok
}

// flushCheckpoints rewrites the entire checkpoints file under an
// exclusive lock. Callers hold s.mu.
func (s *Store) flushCheckpoints() error {
	tmpPath := s.ckPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("statestore: open checkpoints tmp: %w", err)
	}

	if err := acquireExclusive(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("statestore: lock checkpoints tmp: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(s.checkpoints); err != nil {
		_ = f.Close()
		return fmt.Errorf("statestore: encode checkpoints: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("statestore: fsync checkpoints: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("statestore: close checkpoints tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.ckPath); err != nil {
		return fmt.Errorf("statestore: rename checkpoints: %w", err)
	}
	return nil
}
