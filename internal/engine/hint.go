package engine

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kvsystems/slackbase/pkg/fs"
)

// hintPath and friends are the sidecar file naming scheme.
func hintPath(dbPath string) string { return dbPath + ".hint" }
func walPath(dbPath string) string  { return dbPath + ".wal" }

// saveHint persists idx as CSV lines "key,offset,len", one per live key,
// via an atomic rename so a reader never observes a partial hint.
func saveHint(aw *fs.AtomicWriter, path string, idx *offsetIndex) error {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	for key, e := range idx.entries {
		record := []string{key, strconv.FormatInt(e.offset, 10), strconv.FormatInt(e.length, 10)}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("%w: encode hint row: %v", ErrIO, err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flush hint csv: %v", ErrIO, err)
	}

	if err := aw.WriteWithDefaults(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("%w: write hint: %v", ErrIO, err)
	}

	return nil
}

// loadHint parses a previously saved hint file into an offsetIndex.
func loadHint(fsys fs.FS, path string) (*offsetIndex, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read hint: %v", ErrIO, err)
	}

	idx := newOffsetIndex()

	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = 3

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: parse hint row: %v", ErrInvalidRecord, err)
		}

		offset, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parse hint offset: %v", ErrInvalidRecord, err)
		}

		length, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parse hint len: %v", ErrInvalidRecord, err)
		}

		idx.set(row[0], extent{offset: offset, length: length})
	}

	return idx, nil
}

// hintIsFresh reports whether the hint at hintP is at least as new as the
// log at logP: a hint is only trusted on open if its mtime is at or after
// the log's mtime. A missing hint is never fresh.
func hintIsFresh(fsys fs.FS, logP, hintP string) (bool, error) {
	hintExists, err := fsys.Exists(hintP)
	if err != nil {
		return false, fmt.Errorf("%w: stat hint: %v", ErrIO, err)
	}

	if !hintExists {
		return false, nil
	}

	logInfo, err := fsys.Stat(logP)
	if err != nil {
		return false, fmt.Errorf("%w: stat log: %v", ErrIO, err)
	}

	hintInfo, err := fsys.Stat(hintP)
	if err != nil {
		return false, fmt.Errorf("%w: stat hint: %v", ErrIO, err)
	}

	return !hintInfo.ModTime().Before(logInfo.ModTime()), nil
}

// now returns the current Unix time in seconds. Extracted so tests can
// observe ErrSystemTime paths are unreachable in practice but callers that
// need a fallible clock read (e.g. future platform ports) have one seam.
func now() (int64, error) {
	return time.Now().Unix(), nil
}
