// Package wal implements the per-shard append-only write-ahead log
// (spec §4.L5): one file per shard, one UTF-8 JSON-array line per record,
// serialized by a mutex held per shard id. Deletes are not recorded here
// (spec §9 Q5); they become durable only via the next snapshot.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/jsonkv/internal/log"
)

// FileName returns the WAL file name for a shard id.
func FileName(dataDir string, shardID uint32) string {
	return filepath.Join(dataDir, fmt.Sprintf("shard_%d.wal", shardID))
}

// Writer appends records to one shard's WAL file. A Writer's Append calls
// are serialized by mu; distinct shards use distinct Writers and proceed
// in parallel (spec §5).
type Writer struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the WAL file for append.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	return &Writer{path: path, file: f}, nil
}

// Append writes one [key, value] record as a single line. No fsync is
// issued: durability here means "ordered against process crash", not
// against an OS crash (spec §9 Q4).
func (w *Writer) Append(key string, value json.RawMessage) error {
	line, err := json.Marshal([2]any{key, value})
	if err != nil {
		return fmt.Errorf("encode wal record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("write wal %s: %w", w.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Truncate resets the WAL file to empty, used after a full re-snapshot so
// the log doesn't grow unbounded across delete-triggered snapshots.
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal %s: %w", w.path, err)
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek wal %s: %w", w.path, err)
	}
	return nil
}

// Record is one decoded WAL line.
type Record struct {
	Key   string
	Value json.RawMessage
}

// Replay reads every well-formed record from the WAL file at path in
// order. A missing file yields no records and no error. A line that fails
// to parse as a [key, value] pair is logged and skipped, never fatal
// (spec §4.L7, §7.3).
func Replay(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	defer f.Close()

	logger := log.WithComponent("wal")
	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var tuple [2]json.RawMessage
		if err := json.Unmarshal(line, &tuple); err != nil {
			logger.Warn().Err(err).Str("file", path).Int("line", lineNo).Msg("skipping corrupt wal line")
			continue
		}
		var key string
		if err := json.Unmarshal(tuple[0], &key); err != nil {
			logger.Warn().Err(err).Str("file", path).Int("line", lineNo).Msg("skipping wal line with non-string key")
			continue
		}
		records = append(records, Record{Key: key, Value: tuple[1]})
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("wal read truncated early")
	}
	return records, nil
}
