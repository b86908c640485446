package engine

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kvsystems/slackbase/pkg/fs"
)

// logFile is the append-only data log. Appends return the (offset,len) of
// the line just written; reads map the file and return the trimmed slice
// at a given extent.
//
// offset is measured from the start of the file at append time; len is the
// full byte count of the line including its terminating LF.
type logFile struct {
	fsys fs.FS
	file fs.File
	path string
	size int64
}

// openLogFile opens (creating if absent) the data log at path and seeks
// to its current end for subsequent appends.
func openLogFile(fsys fs.FS, path string) (*logFile, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open log: %v", ErrIO, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat log: %v", ErrIO, err)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: seek log end: %v", ErrIO, err)
	}

	return &logFile{fsys: fsys, file: f, path: path, size: info.Size()}, nil
}

// append writes line+"\n" at the current end of the log and returns the
// (offset,len) of the new record.
func (l *logFile) append(line string) (offset int64, length int64, err error) {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	n, err := l.file.Write(buf)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: append log: %v", ErrIO, err)
	}

	offset = l.size
	length = int64(n)
	l.size += length

	return offset, length, nil
}

// flush forces the log's contents to durable storage.
func (l *logFile) flush() error {
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync log: %v", ErrIO, err)
	}

	return nil
}

// readSlice returns the trimmed line at the given (offset,len) extent,
// reading it through a fresh memory mapping established for this read
// alone rather than one held open across calls.
func (l *logFile) readSlice(offset, length int64) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: non-positive record length %d", ErrInvalidRecord, length)
	}

	fd := int(l.file.Fd())

	mapLen := offset + length
	if mapLen > l.size {
		mapLen = l.size
	}

	if mapLen <= 0 {
		return "", fmt.Errorf("%w: record extent (%d,%d) exceeds log size %d", ErrInvalidRecord, offset, length, l.size)
	}

	mapped, err := unix.Mmap(fd, 0, int(mapLen), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return "", fmt.Errorf("%w: mmap log: %v", ErrIO, err)
	}
	defer func() { _ = unix.Munmap(mapped) }()

	end := offset + length
	if end > int64(len(mapped)) {
		return "", fmt.Errorf("%w: record extent (%d,%d) out of bounds", ErrInvalidRecord, offset, length)
	}

	line := make([]byte, length)
	copy(line, mapped[offset:end])

	return trimLF(line), nil
}

func trimLF(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}

	return string(b)
}

// close releases the log's open file handle.
func (l *logFile) close() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("%w: close log: %v", ErrIO, err)
	}

	return nil
}

// rewrite atomically replaces the log's contents with lines: write to
// "<log>.compact", fsync, rename over the original, then reopen for
// further appends.
func (l *logFile) rewrite(lines []string) error {
	tmpPath := l.path + ".compact"

	tmp, err := l.fsys.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create compact file: %v", ErrIO, err)
	}

	for _, line := range lines {
		if _, err := tmp.Write([]byte(line + "\n")); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("%w: write compact file: %v", ErrIO, err)
		}
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync compact file: %v", ErrIO, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close compact file: %v", ErrIO, err)
	}

	if err := l.fsys.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("%w: rename compact file: %v", ErrIO, err)
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("%w: close old log handle: %v", ErrIO, err)
	}

	reopened, err := openLogFile(l.fsys, l.path)
	if err != nil {
		return err
	}

	l.file = reopened.file
	l.size = reopened.size

	return nil
}
