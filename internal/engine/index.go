package engine

import (
	"bufio"
	"fmt"
	"strings"
)

// extent is the byte extent of a record within the log: offset is the
// position of its first byte, len is the full line length including LF.
type extent struct {
	offset int64
	length int64
}

// offsetIndex is the in-memory map K -> extent of the latest put record
// per key. A del or an already-expired put removes the key as the log is
// scanned; a put whose TTL passes after it was indexed stays indexed (reads
// treat it as absent) until a later write or compaction drops it.
type offsetIndex struct {
	entries map[string]extent
}

func newOffsetIndex() *offsetIndex {
	return &offsetIndex{entries: make(map[string]extent)}
}

func (idx *offsetIndex) get(key string) (extent, bool) {
	e, ok := idx.entries[key]
	return e, ok
}

func (idx *offsetIndex) set(key string, e extent) {
	idx.entries[key] = e
}

func (idx *offsetIndex) delete(key string) {
	delete(idx.entries, key)
}

func (idx *offsetIndex) len() int {
	return len(idx.entries)
}

// keys returns the indexed keys, unordered.
func (idx *offsetIndex) keys() []string {
	keys := make([]string, 0, len(idx.entries))
	for k := range idx.entries {
		keys = append(keys, k)
	}

	return keys
}

// buildOffsetIndex performs a single forward scan of raw, applying records
// in file order: put overwrites the prior extent for its key, del removes
// it, and an expired put (as of now) removes it too.
func buildOffsetIndex(raw []byte, now int64) (*offsetIndex, error) {
	idx := newOffsetIndex()

	var offset int64

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for scanner.Scan() {
		line := scanner.Text()
		length := int64(len(line)) + 1 // + LF

		rec, err := decodeRecord(line)
		if err != nil {
			// An invalid line is skipped on scan; offset bookkeeping still
			// advances so later, well-formed records stay aligned.
			offset += length
			continue
		}

		switch rec.op {
		case opPut:
			if rec.expired(now) {
				idx.delete(rec.key)
			} else {
				idx.set(rec.key, extent{offset: offset, length: length})
			}
		case opDelete:
			idx.delete(rec.key)
		}

		offset += length
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan log: %v", ErrIO, err)
	}

	return idx, nil
}
