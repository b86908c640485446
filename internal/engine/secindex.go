package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kvsystems/slackbase/pkg/fs"
)

// secondaryIndexPath is the sidecar naming scheme for the secondary index.
func secondaryIndexPath(dbPath string) string { return dbPath + ".secindex" }

// secondaryIndex is the inverted mapping field -> value -> set<key>,
// derived from the top-level fields of JSON-object values. Non-object
// values contribute nothing.
type secondaryIndex struct {
	data map[string]map[string]map[string]struct{}
}

func newSecondaryIndex() *secondaryIndex {
	return &secondaryIndex{data: make(map[string]map[string]map[string]struct{})}
}

// fieldValues parses value as a JSON object and returns field ->
// stringified-value for each top-level field. A JSON string contributes
// its raw text; any other JSON value contributes its JSON-serialized form.
// Returns nil if value does not parse as a JSON object.
func fieldValues(value []byte) map[string]string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil {
		return nil
	}

	out := make(map[string]string, len(obj))

	for field, raw := range obj {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[field] = s
			continue
		}

		out[field] = string(bytes.TrimSpace(raw))
	}

	return out
}

// remove drops every (field, stringified-value) pair for key derived from
// the given previously-stored value.
func (si *secondaryIndex) remove(key string, value []byte) {
	fields := fieldValues(value)
	if fields == nil {
		return
	}

	for field, val := range fields {
		values, ok := si.data[field]
		if !ok {
			continue
		}

		keys, ok := values[val]
		if !ok {
			continue
		}

		delete(keys, key)

		if len(keys) == 0 {
			delete(values, val)
		}

		if len(values) == 0 {
			delete(si.data, field)
		}
	}
}

// add records every (field, stringified-value) pair for key derived from
// the newly-stored value.
func (si *secondaryIndex) add(key string, value []byte) {
	fields := fieldValues(value)
	if fields == nil {
		return
	}

	for field, val := range fields {
		values, ok := si.data[field]
		if !ok {
			values = make(map[string]map[string]struct{})
			si.data[field] = values
		}

		keys, ok := values[val]
		if !ok {
			keys = make(map[string]struct{})
			values[val] = keys
		}

		keys[key] = struct{}{}
	}
}

// find returns the set of keys currently bound to (field, value), unordered
// on input but returned sorted for deterministic output.
func (si *secondaryIndex) find(field, value string) []string {
	values, ok := si.data[field]
	if !ok {
		return nil
	}

	keys, ok := values[value]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// persistableSecondaryIndex is the on-disk shape of the secondary index:
// field -> value -> sorted key list, JSON-serialized to "<db>.secindex".
type persistableSecondaryIndex map[string]map[string][]string

func (si *secondaryIndex) toPersistable() persistableSecondaryIndex {
	out := make(persistableSecondaryIndex, len(si.data))

	for field, values := range si.data {
		out[field] = make(map[string][]string, len(values))

		for val, keys := range values {
			list := make([]string, 0, len(keys))
			for k := range keys {
				list = append(list, k)
			}

			sort.Strings(list)
			out[field][val] = list
		}
	}

	return out
}

// save persists the secondary index as JSON via an atomic rename.
func (si *secondaryIndex) save(aw *fs.AtomicWriter, path string) error {
	data, err := json.Marshal(si.toPersistable())
	if err != nil {
		return fmt.Errorf("%w: marshal secondary index: %v", ErrCodec, err)
	}

	if err := aw.WriteWithDefaults(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: write secondary index: %v", ErrIO, err)
	}

	return nil
}

// loadSecondaryIndex reads a previously persisted secondary index. A
// missing file yields an empty index, since it is always rebuildable from
// the log.
func loadSecondaryIndex(fsys fs.FS, path string) (*secondaryIndex, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat secondary index: %v", ErrIO, err)
	}

	if !exists {
		return newSecondaryIndex(), nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read secondary index: %v", ErrIO, err)
	}

	var persisted persistableSecondaryIndex
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("%w: parse secondary index: %v", ErrCodec, err)
	}

	si := newSecondaryIndex()

	for field, values := range persisted {
		si.data[field] = make(map[string]map[string]struct{}, len(values))

		for val, keys := range values {
			set := make(map[string]struct{}, len(keys))
			for _, k := range keys {
				set[k] = struct{}{}
			}

			si.data[field][val] = set
		}
	}

	return si, nil
}

// rebuildSecondaryIndex recomputes the secondary index from scratch given
// the current live key -> value mapping (used after compact).
func rebuildSecondaryIndex(liveValues map[string][]byte) *secondaryIndex {
	si := newSecondaryIndex()

	for key, value := range liveValues {
		si.add(key, value)
	}

	return si
}
