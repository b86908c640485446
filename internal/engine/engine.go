// Package engine implements the Bitcask-style storage engine: an
// append-only log, a write-ahead log with bracketed batches, an in-memory
// offset index backed by a hint-file sidecar, a bounded LRU read cache,
// and a secondary index over JSON-object values.
package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kvsystems/slackbase/pkg/fs"
)

// Serializer is the boundary to the external serialization collaborator:
// serialize renders a logical value to storage bytes, deserialize recovers
// it. Concrete variants live in package serialize.
type Serializer interface {
	Serialize(value string) ([]byte, error)
	Deserialize(data []byte) (string, error)
	Clone() Serializer
}

// lockTimeout bounds how long Open waits to acquire the engine's exclusive
// lock before giving up.
const lockTimeout = 10 * time.Second

// Stats reports operation counters and on-disk file sizes.
type Stats struct {
	Reads     uint64
	Writes    uint64
	Hits      uint64
	Misses    uint64
	KeyCount  int
	LogBytes  int64
	WALBytes  int64
	HintBytes int64
}

// TotalBytes is the sum of the log, WAL, and hint file sizes.
func (s Stats) TotalBytes() int64 {
	return s.LogBytes + s.WALBytes + s.HintBytes
}

// Engine is the storage engine's public handle. All methods assume
// exclusive access for their duration; external callers sharing an Engine
// across goroutines must serialize their own calls.
type Engine struct {
	fsys       fs.FS
	locker     *fs.Locker
	atomic     *fs.AtomicWriter
	lock       *fs.Lock
	dbPath     string
	serializer Serializer

	log  *logFile
	wal  *wal
	idx  *offsetIndex
	sec  *secondaryIndex
	lru  *lruCache
	stat Stats

	closed bool
}

// Option configures Open.
type Option func(*options)

type options struct {
	serializer  Serializer
	lruCapacity int
	lockTimeout time.Duration
}

// WithSerializer overrides the default (plain) serializer.
func WithSerializer(s Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithLRUCapacity overrides the default LRU cache capacity (1024).
func WithLRUCapacity(n int) Option {
	return func(o *options) { o.lruCapacity = n }
}

// WithLockTimeout overrides the default 10-second wait for the engine's
// exclusive lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

// passthroughSerializer is used when no Serializer is supplied; it stores
// values verbatim as UTF-8 bytes, duplicating serialize.Plain so that
// package engine does not import package serialize.
type passthroughSerializer struct{}

func (passthroughSerializer) Serialize(value string) ([]byte, error)  { return []byte(value), nil }
func (passthroughSerializer) Deserialize(data []byte) (string, error) { return string(data), nil }
func (passthroughSerializer) Clone() Serializer                       { return passthroughSerializer{} }

// Open opens (creating if absent) the engine rooted at dbPath: acquire the
// exclusive lock, load or rebuild the offset index, then replay closed WAL
// batches.
func Open(dbPath string, opts ...Option) (*Engine, error) {
	cfg := options{
		serializer:  passthroughSerializer{},
		lruCapacity: defaultLRUCapacity,
		lockTimeout: lockTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	fsys := fs.NewReal()
	locker := fs.NewLocker(fsys)
	atomicWriter := fs.NewAtomicWriter(fsys)

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db directory: %v", ErrIO, err)
		}
	}

	lock, err := locker.LockWithTimeout(dbPath+".lock", cfg.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire engine lock: %v", ErrIO, err)
	}

	e, err := openLocked(fsys, locker, atomicWriter, lock, dbPath, cfg)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}

	return e, nil
}

func openLocked(fsys fs.FS, locker *fs.Locker, atomicWriter *fs.AtomicWriter, lock *fs.Lock, dbPath string, cfg options) (*Engine, error) {
	log, err := openLogFile(fsys, dbPath)
	if err != nil {
		return nil, err
	}

	idx, err := loadOrRebuildIndex(fsys, atomicWriter, log, dbPath)
	if err != nil {
		_ = log.close()
		return nil, err
	}

	sec, err := loadSecondaryIndex(fsys, secondaryIndexPath(dbPath))
	if err != nil {
		_ = log.close()
		return nil, err
	}

	w, err := openWAL(fsys, walPath(dbPath))
	if err != nil {
		_ = log.close()
		return nil, err
	}

	e := &Engine{
		fsys:       fsys,
		locker:     locker,
		atomic:     atomicWriter,
		lock:       lock,
		dbPath:     dbPath,
		serializer: cfg.serializer,
		log:        log,
		wal:        w,
		idx:        idx,
		sec:        sec,
		lru:        newLRUCache(cfg.lruCapacity),
	}

	if err := e.replayWAL(); err != nil {
		_ = w.close()
		_ = log.close()
		return nil, err
	}

	return e, nil
}

func loadOrRebuildIndex(fsys fs.FS, atomicWriter *fs.AtomicWriter, log *logFile, dbPath string) (*offsetIndex, error) {
	fresh, err := hintIsFresh(fsys, dbPath, hintPath(dbPath))
	if err != nil {
		return nil, err
	}

	if fresh {
		idx, err := loadHint(fsys, hintPath(dbPath))
		if err == nil {
			return idx, nil
		}
		// Fall through to rebuild on a corrupt hint.
	}

	raw, err := fsys.ReadFile(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read log for index rebuild: %v", ErrIO, err)
	}

	nowSecs, err := now()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemTime, err)
	}

	idx, err := buildOffsetIndex(raw, nowSecs)
	if err != nil {
		return nil, err
	}

	if err := saveHint(atomicWriter, hintPath(dbPath), idx); err != nil {
		return nil, err
	}

	return idx, nil
}

// replayWAL applies every closed BEGIN/END batch found in the WAL through
// the same doPut/doDelete path used by public operations.
func (e *Engine) replayWAL() error {
	groups, err := replayWAL(e.fsys, walPath(e.dbPath))
	if err != nil {
		return err
	}

	for _, group := range groups {
		for _, rec := range group.records {
			switch rec.op {
			case opPut:
				if err := e.doPut(rec.key, rec.value, rec.expiry); err != nil {
					return fmt.Errorf("%w: replay put %q: %v", ErrWALReplay, rec.key, err)
				}
			case opDelete:
				if err := e.doDelete(rec.key); err != nil {
					return fmt.Errorf("%w: replay delete %q: %v", ErrWALReplay, rec.key, err)
				}
			}
		}
	}

	return nil
}

// Close releases the engine's file handles and its exclusive lock.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}

	e.closed = true

	var errs []error

	if err := e.wal.close(); err != nil {
		errs = append(errs, err)
	}

	if err := e.log.close(); err != nil {
		errs = append(errs, err)
	}

	if err := e.lock.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Put stores value under key with no expiry.
func (e *Engine) Put(key, value string) error {
	return e.PutEx(key, value, 0)
}

// PutEx stores value under key with the given time-to-live. ttl <= 0 means
// no expiry.
func (e *Engine) PutEx(key, value string, ttl time.Duration) error {
	if e.closed {
		return ErrClosed
	}

	serialized, err := e.serializer.Serialize(value)
	if err != nil {
		return fmt.Errorf("%w: serialize value: %v", ErrCodec, err)
	}

	var expiry int64

	if ttl > 0 {
		nowSecs, err := now()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSystemTime, err)
		}

		expiry = nowSecs + int64(ttl/time.Second)
	}

	return e.doPut(key, serialized, expiry)
}

// doPut performs the put steps independent of how the serialized bytes and
// expiry were derived (used by Put/PutEx, Batch's replay-through step, and
// WAL recovery).
func (e *Engine) doPut(key string, serialized []byte, expiry int64) error {
	current, found, err := e.readRaw(key)
	if err != nil {
		return err
	}

	if found {
		e.sec.remove(key, current)
	}

	e.sec.add(key, serialized)

	line := encodePut(key, serialized, expiry)

	if err := e.wal.append(line); err != nil {
		return err
	}

	if err := e.wal.flush(); err != nil {
		return err
	}

	offset, length, err := e.log.append(line)
	if err != nil {
		return err
	}

	e.idx.set(key, extent{offset: offset, length: length})

	if err := saveHint(e.atomic, hintPath(e.dbPath), e.idx); err != nil {
		return err
	}

	if err := e.sec.save(e.atomic, secondaryIndexPath(e.dbPath)); err != nil {
		return err
	}

	deserialized, err := e.serializer.Deserialize(serialized)
	if err != nil {
		return fmt.Errorf("%w: deserialize value for cache: %v", ErrCodec, err)
	}

	if expiry == 0 {
		e.lru.put(key, deserialized)
	} else {
		// A value with a TTL is not cached here, so a later Get reads the
		// record and sees its expiry.
		e.lru.delete(key)
	}

	e.stat.Writes++

	return nil
}

// Get returns the current value for key, or ("", false) if it does not
// exist, is expired, or any failure occurs — get never errors.
func (e *Engine) Get(key string) (string, bool) {
	e.stat.Reads++

	if value, ok := e.lru.get(key); ok {
		e.stat.Hits++
		return value, true
	}

	raw, found, err := e.readRaw(key)
	if err != nil || !found {
		e.stat.Misses++
		return "", false
	}

	value, err := e.serializer.Deserialize(raw)
	if err != nil {
		e.stat.Misses++
		return "", false
	}

	// A record with a TTL is not cached, so a later Get re-reads it and sees
	// its expiry.
	if ext, ok := e.idx.get(key); ok {
		if line, err := e.log.readSlice(ext.offset, ext.length); err == nil {
			if rec, err := decodeRecord(line); err == nil && !rec.hasExpiry() {
				e.lru.put(key, value)
			}
		}
	}

	return value, true
}

// readRaw looks up key in the offset index and returns its stored
// (post-base64-decode, pre-deserialize) bytes, treating an expired record
// as not found.
func (e *Engine) readRaw(key string) ([]byte, bool, error) {
	ext, ok := e.idx.get(key)
	if !ok {
		return nil, false, nil
	}

	line, err := e.log.readSlice(ext.offset, ext.length)
	if err != nil {
		return nil, false, err
	}

	rec, err := decodeRecord(line)
	if err != nil {
		return nil, false, err
	}

	if rec.op != opPut {
		return nil, false, nil
	}

	nowSecs, err := now()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSystemTime, err)
	}

	if rec.expired(nowSecs) {
		return nil, false, nil
	}

	return rec.value, true, nil
}

// Delete removes key, if present.
func (e *Engine) Delete(key string) error {
	if e.closed {
		return ErrClosed
	}

	return e.doDelete(key)
}

func (e *Engine) doDelete(key string) error {
	current, found, err := e.readRaw(key)
	if err != nil {
		return err
	}

	if found {
		e.sec.remove(key, current)
	}

	line := encodeDelete(key)

	if err := e.wal.append(line); err != nil {
		return err
	}

	if err := e.wal.flush(); err != nil {
		return err
	}

	if _, _, err := e.log.append(line); err != nil {
		return err
	}

	e.idx.delete(key)
	e.lru.delete(key)

	if err := saveHint(e.atomic, hintPath(e.dbPath), e.idx); err != nil {
		return err
	}

	if err := e.sec.save(e.atomic, secondaryIndexPath(e.dbPath)); err != nil {
		return err
	}

	e.stat.Writes++

	return nil
}

// Op is one mutation within a Batch call.
type Op struct {
	Delete bool
	Key    string
	Value  string
	TTL    time.Duration
}

// PutOp builds a put Op.
func PutOp(key, value string) Op { return Op{Key: key, Value: value} }

// PutExOp builds a put Op with a TTL.
func PutExOp(key, value string, ttl time.Duration) Op { return Op{Key: key, Value: value, TTL: ttl} }

// DeleteOp builds a delete Op.
func DeleteOp(key string) Op { return Op{Delete: true, Key: key} }

// Batch applies ops atomically: the WAL records a BEGIN/END bracket around
// the whole group before any op is individually committed, so a crash
// either replays the whole group on next Open or none of it.
func (e *Engine) Batch(ops []Op) error {
	if e.closed {
		return ErrClosed
	}

	if err := e.wal.flush(); err != nil {
		return err
	}

	if err := e.wal.append(walTokenBegin); err != nil {
		return err
	}

	encoded := make([]struct {
		serialized []byte
		expiry     int64
	}, len(ops))

	for i, op := range ops {
		if op.Delete {
			if err := e.wal.append(encodeDelete(op.Key)); err != nil {
				return err
			}

			continue
		}

		serialized, err := e.serializer.Serialize(op.Value)
		if err != nil {
			return fmt.Errorf("%w: serialize batch value: %v", ErrCodec, err)
		}

		var expiry int64

		if op.TTL > 0 {
			nowSecs, err := now()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSystemTime, err)
			}

			expiry = nowSecs + int64(op.TTL/time.Second)
		}

		encoded[i].serialized = serialized
		encoded[i].expiry = expiry

		if err := e.wal.append(encodePut(op.Key, serialized, expiry)); err != nil {
			return err
		}
	}

	if err := e.wal.append(walTokenEnd); err != nil {
		return err
	}

	if err := e.wal.flush(); err != nil {
		return err
	}

	for i, op := range ops {
		if op.Delete {
			if err := e.doDelete(op.Key); err != nil {
				return err
			}

			continue
		}

		if err := e.doPut(op.Key, encoded[i].serialized, encoded[i].expiry); err != nil {
			return err
		}
	}

	return nil
}

// Compact rewrites the log, keeping only the latest live (non-expired,
// non-deleted) record per key, then rebuilds the index, hint, and
// secondary index, and clears the WAL.
func (e *Engine) Compact() error {
	if e.closed {
		return ErrClosed
	}

	if err := e.wal.flush(); err != nil {
		return err
	}

	raw, err := e.fsys.ReadFile(e.dbPath)
	if err != nil {
		return fmt.Errorf("%w: read log for compaction: %v", ErrIO, err)
	}

	nowSecs, err := now()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSystemTime, err)
	}

	keep, liveValues, err := compactedLines(raw, nowSecs)
	if err != nil {
		return err
	}

	if err := e.log.rewrite(keep); err != nil {
		return err
	}

	rewritten, err := e.fsys.ReadFile(e.dbPath)
	if err != nil {
		return fmt.Errorf("%w: read compacted log: %v", ErrIO, err)
	}

	newIdx, err := buildOffsetIndex(rewritten, nowSecs)
	if err != nil {
		return err
	}

	e.idx = newIdx
	e.sec = rebuildSecondaryIndex(liveValues)
	e.lru = newLRUCache(e.lru.capacity)

	if err := saveHint(e.atomic, hintPath(e.dbPath), e.idx); err != nil {
		return err
	}

	if err := e.sec.save(e.atomic, secondaryIndexPath(e.dbPath)); err != nil {
		return err
	}

	if err := e.wal.clear(); err != nil {
		return err
	}

	return nil
}

// compactedLines scans raw in order and returns the lines to keep (the
// latest put line of each live key, in the order those lines appear in raw)
// plus the live key->raw-value mapping used to rebuild the secondary index.
func compactedLines(raw []byte, nowSecs int64) ([]string, map[string][]byte, error) {
	idx, err := buildOffsetIndex(raw, nowSecs)
	if err != nil {
		return nil, nil, err
	}

	type survivor struct {
		key    string
		offset int64
		length int64
	}

	survivors := make([]survivor, 0, idx.len())

	for key, ext := range idx.entries {
		survivors = append(survivors, survivor{key: key, offset: ext.offset, length: ext.length})
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].offset < survivors[j].offset })

	lines := make([]string, 0, len(survivors))
	liveValues := make(map[string][]byte, len(survivors))

	for _, s := range survivors {
		end := s.offset + s.length
		if end > int64(len(raw)) {
			return nil, nil, fmt.Errorf("%w: record extent out of bounds during compaction", ErrInvalidRecord)
		}

		line := trimLF(raw[s.offset:end])

		rec, err := decodeRecord(line)
		if err != nil {
			return nil, nil, err
		}

		lines = append(lines, line)
		liveValues[s.key] = rec.value
	}

	return lines, liveValues, nil
}

// Snapshot copies the log and its WAL/hint sidecars (if present) to path
// and its corresponding sidecar paths, fsyncing each.
func (e *Engine) Snapshot(path string) error {
	if e.closed {
		return ErrClosed
	}

	if err := e.wal.flush(); err != nil {
		return err
	}

	if err := saveHint(e.atomic, hintPath(e.dbPath), e.idx); err != nil {
		return err
	}

	if err := copyFileFsync(e.fsys, e.dbPath, path); err != nil {
		return err
	}

	for _, suffix := range []string{".wal", ".hint"} {
		src := e.dbPath + suffix
		dst := path + suffix

		exists, err := e.fsys.Exists(src)
		if err != nil {
			return fmt.Errorf("%w: stat %s: %v", ErrIO, src, err)
		}

		if !exists {
			continue
		}

		if err := copyFileFsync(e.fsys, src, dst); err != nil {
			return err
		}
	}

	return nil
}

// Restore replaces the log (and its .wal/.hint sidecars, if present) with
// path's contents, then reopens the engine in place.
func (e *Engine) Restore(path string) error {
	if e.closed {
		return ErrClosed
	}

	if err := copyFileFsync(e.fsys, path, e.dbPath); err != nil {
		return err
	}

	for _, suffix := range []string{".wal", ".hint"} {
		src := path + suffix
		dst := e.dbPath + suffix

		exists, err := e.fsys.Exists(src)
		if err != nil {
			return fmt.Errorf("%w: stat %s: %v", ErrIO, src, err)
		}

		if !exists {
			continue
		}

		if err := copyFileFsync(e.fsys, src, dst); err != nil {
			return err
		}
	}

	if err := e.wal.close(); err != nil {
		return err
	}

	if err := e.log.close(); err != nil {
		return err
	}

	fresh := options{serializer: e.serializer, lruCapacity: e.lru.capacity}

	reopened, err := openLocked(e.fsys, e.locker, e.atomic, e.lock, e.dbPath, fresh)
	if err != nil {
		return err
	}

	*e = *reopened

	return nil
}

func copyFileFsync(fsys fs.FS, src, dst string) error {
	exists, err := fsys.Exists(src)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrIO, src, err)
	}

	if !exists {
		return fmt.Errorf("%w: source %s does not exist", ErrIO, src)
	}

	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrIO, src, err)
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: copy %s to %s: %v", ErrIO, src, dst, err)
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrIO, dst, err)
	}

	return out.Close()
}

// Entry is one result row from Scan: Value is absent if the key's current
// record has expired.
type Entry struct {
	Key   string
	Value string
	Found bool
}

// Scan returns a sorted (by raw key bytes) sequence of entries whose key
// matches the optional prefix and, if start/end are both non-empty,
// satisfies start <= key <= end.
func (e *Engine) Scan(prefix string, start, end string) []Entry {
	keys := e.idx.keys()
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))

	for _, k := range keys {
		if prefix != "" && !hasPrefix(k, prefix) {
			continue
		}

		if start != "" && end != "" && (k < start || k > end) {
			continue
		}

		value, found := e.Get(k)
		out = append(out, Entry{Key: k, Value: value, Found: found})
	}

	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Stats returns the engine's operation counters and file sizes.
func (e *Engine) Stats() (Stats, error) {
	s := e.stat
	s.KeyCount = e.idx.len()

	logInfo, err := e.fsys.Stat(e.dbPath)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stat log: %v", ErrIO, err)
	}

	s.LogBytes = logInfo.Size()

	if walInfo, err := e.fsys.Stat(walPath(e.dbPath)); err == nil {
		s.WALBytes = walInfo.Size()
	}

	if hintInfo, err := e.fsys.Stat(hintPath(e.dbPath)); err == nil {
		s.HintBytes = hintInfo.Size()
	}

	return s, nil
}

// Find returns the keys whose current JSON-object value binds field to
// value.
func (e *Engine) Find(field, value string) []string {
	return e.sec.find(field, value)
}
