// Package blackboard implements an append-only JSONL store of
// BlackboardEntry records, one file per engine/benchmark pair. The reader
// is grounded directly on beads' internal/jsonl/reader.go scan-and-decode
// loop, generalized from types.Issue to types.BlackboardEntry; the
// writer generalizes beads' O_APPEND-plus-flock convention
// (internal/lockfile/lock_unix.go's unix.Flock wrapped around the write)
// to this schema, so concurrent writers across processes never interleave
// partial writes within one record.
package blackboard

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Path returns the conventional blackboard file path for an engine and
// benchmark pair.
func Path(root, engine, benchmark string) string {
	return filepath.Join(root, "blackboard", fmt.Sprintf("%s_%s.jsonl", engine, benchmark))
}

// Append writes entry as a single JSON line, opening the file in
// append-only mode and holding an exclusive flock for the duration of the
// write so concurrent writers, including across processes, never
// interleave partial writes within one record.
func Append(path string, entry types.BlackboardEntry) error {
	if entry.Version.SchemaVersion == "" {
		entry.Version.SchemaVersion = types.SchemaVersion
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return types.NewError(types.ErrBlackboardWrite, "blackboard.Append", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.NewError(types.ErrBlackboardWrite, "blackboard.Append", err)
	}

	// #nosec G304 - path built from trusted root+engine+benchmark
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return types.NewError(types.ErrBlackboardWrite, "blackboard.Append", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return types.NewError(types.ErrBlackboardWrite, "blackboard.Append", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	if _, err := f.Write(line); err != nil {
		return types.NewError(types.ErrBlackboardWrite, "blackboard.Append", err)
	}
	return nil
}

// ReadFile reads every entry from the JSONL file at path. A missing file
// is treated as zero entries (no attempts recorded yet), not an error.
func ReadFile(path string) ([]types.BlackboardEntry, error) {
	// #nosec G304 - path built from trusted root+engine+benchmark
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("blackboard.ReadFile: %w", err)
	}
	defer f.Close()
	return decodeAll(f)
}

// ReadData reads every entry from in-memory JSONL data.
func ReadData(data []byte) ([]types.BlackboardEntry, error) {
	return decodeAll(bytes.NewReader(data))
}

func decodeAll(r interface{ Read([]byte) (int, error) }) ([]types.BlackboardEntry, error) {
	var entries []types.BlackboardEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var entry types.BlackboardEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("blackboard: parse entry at line %d: %w", lineNum, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("blackboard: scan: %w", err)
	}
	return entries, nil
}

// Supersede marks old's version.superseded_by as new's id and appends a
// fresh record for both, since entries are append-only.
func Supersede(path string, old types.BlackboardEntry, replacement types.BlackboardEntry) error {
	old.Version.SupersededBy = replacement.ID
	if err := Append(path, old); err != nil {
		return err
	}
	return Append(path, replacement)
}

// Latest returns, per query_id, the most recently appended entry that has
// not itself been superseded, reconstructing current state from the
// append-only log.
func Latest(entries []types.BlackboardEntry) map[string]types.BlackboardEntry {
	byID := map[string]types.BlackboardEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}

	latest := map[string]types.BlackboardEntry{}
	for _, e := range entries {
		if isSuperseded(e, byID) {
			continue
		}
		latest[e.Base.QueryID] = e
	}
	return latest
}

func isSuperseded(e types.BlackboardEntry, byID map[string]types.BlackboardEntry) bool {
	return e.Version.SupersededBy != "" || byID[e.ID].Version.SupersededBy != ""
}
