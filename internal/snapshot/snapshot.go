// Package snapshot implements the compressed full-shard snapshot codec
// (spec §4.L6): an LZ4-frame-compressed JSON object mapping key to value,
// one file per shard, written atomically from the caller's perspective via
// write-to-temp-then-rename.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/cuemby/jsonkv/internal/log"
)

// compressionLevel is fixed at 4, matching spec §4.L6.
const compressionLevel = lz4.Level4

// FileName returns the snapshot file name for a shard id.
func FileName(dataDir string, shardID uint32) string {
	return filepath.Join(dataDir, fmt.Sprintf("shard_%d.bin.lz4", shardID))
}

// Write compresses entries as JSON and writes it to path, via a temp file
// in the same directory renamed into place so a crash mid-write never
// leaves a half-written file at the canonical path.
func Write(path string, entries map[string]json.RawMessage) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(compressionLevel)); err != nil {
		return fmt.Errorf("configure lz4 writer: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close lz4 writer: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp snapshot into place: %w", err)
	}
	return nil
}

// Read decompresses and decodes the snapshot at path. A missing file
// yields an empty map and no error. A corrupt or truncated file is
// treated as an empty shard with a logged warning, never fatal
// (spec §4.L6, §7.3).
func Read(path string) (map[string]json.RawMessage, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	logger := log.WithComponent("snapshot")

	zr := lz4.NewReader(f)
	raw, err := io.ReadAll(zr)
	if err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("unreadable snapshot, treating shard as empty")
		return map[string]json.RawMessage{}, nil
	}

	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("corrupt snapshot payload, treating shard as empty")
		return map[string]json.RawMessage{}, nil
	}
	return entries, nil
}
