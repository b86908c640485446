package engine

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/kvsystems/slackbase/pkg/fs"
)

func ftruncate(fd int, size int64) error {
	return syscall.Ftruncate(fd, size)
}

// ErrWALReplay reports a failure while replaying the write-ahead log on
// open. Callers should use errors.Is(err, ErrWALReplay).
var ErrWALReplay = errors.New("engine: wal replay")

const (
	walTokenBegin = "BEGIN"
	walTokenEnd   = "END"
)

// wal is the append-only journal of intended mutations, bracketed by
// BEGIN/END for batches. Individual (non-batch) writes are also logged,
// without brackets, so recovery can tell batched ops from solitary ones.
type wal struct {
	fsys fs.FS
	file fs.File
	path string
	buf  *bufio.Writer
}

// openWAL opens (creating if absent) the WAL file at path for appending.
func openWAL(fsys fs.FS, path string) (*wal, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open wal: %v", ErrIO, err)
	}

	if _, err := f.Seek(0, 2); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: seek wal end: %v", ErrIO, err)
	}

	return &wal{fsys: fsys, file: f, path: path, buf: bufio.NewWriter(f)}, nil
}

// append buffers line+"\n" without forcing it to disk; call flush for a
// durability barrier.
func (w *wal) append(line string) error {
	if _, err := w.buf.WriteString(line); err != nil {
		return fmt.Errorf("%w: append wal: %v", ErrIO, err)
	}

	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: append wal: %v", ErrIO, err)
	}

	return nil
}

// flush forces buffered WAL writes to disk, an explicit durability barrier
// distinct from the OS's own buffering.
func (w *wal) flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("%w: flush wal buffer: %v", ErrIO, err)
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync wal: %v", ErrIO, err)
	}

	return nil
}

// clear truncates the WAL to zero length. Only called by compact.
func (w *wal) clear() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("%w: flush before clear: %v", ErrIO, err)
	}

	fd := int(w.file.Fd())
	if err := ftruncate(fd, 0); err != nil {
		return fmt.Errorf("%w: truncate wal: %v", ErrIO, err)
	}

	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("%w: seek wal after truncate: %v", ErrIO, err)
	}

	w.buf = bufio.NewWriter(w.file)

	return nil
}

// close releases the WAL's open file handle.
func (w *wal) close() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close wal: %v", ErrIO, err)
	}

	return nil
}

// batchGroup is a run of mutation lines enclosed by a matched BEGIN/END
// pair, as replayed from the WAL.
type batchGroup struct {
	records []record
}

// replayWAL reads every line of the WAL and returns the mutation records
// from matched BEGIN/END batches, in order. Lines outside any BEGIN/END
// pair are ignored: they record individual writes already reflected in the
// log. A dangling BEGIN without END is discarded.
func replayWAL(fsys fs.FS, path string) ([]batchGroup, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read wal: %v", ErrIO, err)
	}

	var (
		groups  []batchGroup
		inBatch bool
		current []record
	)

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch line {
		case walTokenBegin:
			inBatch = true
			current = nil

		case walTokenEnd:
			if inBatch {
				groups = append(groups, batchGroup{records: current})
			}

			inBatch = false
			current = nil

		default:
			if !inBatch || line == "" {
				continue
			}

			rec, err := decodeRecord(line)
			if err != nil {
				// A malformed line inside a batch means the batch never
				// reached a clean END; treat as a dangling batch.
				inBatch = false
				current = nil
				continue
			}

			current = append(current, rec)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan wal: %v", ErrWALReplay, err)
	}

	return groups, nil
}
