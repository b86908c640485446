package engine

import (
	"encoding/json"
	"fmt"
)

// Composite operations layer hash/list/set semantics atop Put/Get via
// read-modify-write. They inherit Put's durability and indexing
// properties and share its lack of cross-writer exclusion: concurrent
// composite mutations on the same key can race, by design.

// JSONSetField reads key, starts from {} if it is empty or not a JSON
// object, parses value as JSON if possible (storing it as a JSON string
// otherwise), sets field, and writes the result back.
func (e *Engine) JSONSetField(key, field, value string) error {
	obj, err := e.readObject(key)
	if err != nil {
		return err
	}

	obj[field] = rawJSONOrString(value)

	return e.putObject(key, obj)
}

// JSONGetField returns the JSON-serialized form of field within key's
// current JSON-object value, or ("", false) if key is missing, not an
// object, or lacks the field.
func (e *Engine) JSONGetField(key, field string) (string, bool) {
	obj, ok := e.getObject(key)
	if !ok {
		return "", false
	}

	raw, ok := obj[field]
	if !ok {
		return "", false
	}

	return string(raw), true
}

// HashSet, HashGet, HashDel, and HashGetAll are the same field-mapping
// operations as JSONSetField/JSONGetField, named for the hash-flavored CLI
// surface: the same underlying object, addressed through hash_* verbs.

// HashSet sets field to value within key's hash.
func (e *Engine) HashSet(key, field, value string) error {
	return e.JSONSetField(key, field, value)
}

// HashGet returns field's value within key's hash.
func (e *Engine) HashGet(key, field string) (string, bool) {
	return e.JSONGetField(key, field)
}

// HashDel removes field from key's hash.
func (e *Engine) HashDel(key, field string) error {
	obj, err := e.readObject(key)
	if err != nil {
		return err
	}

	delete(obj, field)

	return e.putObject(key, obj)
}

// HashGetAll returns every field -> JSON-serialized value pair in key's hash.
func (e *Engine) HashGetAll(key string) map[string]string {
	obj, ok := e.getObject(key)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(obj))
	for field, raw := range obj {
		out[field] = string(raw)
	}

	return out
}

// readObject returns key's current value as a field map, or a fresh empty
// map if key is absent or its value does not parse as a JSON object.
func (e *Engine) readObject(key string) (map[string]json.RawMessage, error) {
	obj, ok := e.getObject(key)
	if !ok {
		return make(map[string]json.RawMessage), nil
	}

	return obj, nil
}

func (e *Engine) getObject(key string) (map[string]json.RawMessage, bool) {
	current, ok := e.Get(key)
	if !ok {
		return nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(current), &obj); err != nil {
		return nil, false
	}

	return obj, true
}

func (e *Engine) putObject(key string, obj map[string]json.RawMessage) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("%w: marshal object for %q: %v", ErrCodec, key, err)
	}

	return e.Put(key, string(data))
}

// rawJSONOrString returns value as a json.RawMessage: if value itself
// parses as JSON, it is stored verbatim; otherwise it is quoted as a JSON
// string.
func rawJSONOrString(value string) json.RawMessage {
	if json.Valid([]byte(value)) {
		return json.RawMessage(value)
	}

	quoted, _ := json.Marshal(value)

	return json.RawMessage(quoted)
}

// readArray returns key's current value as a JSON array of strings, or an
// empty slice if key is absent or its value does not parse as such.
func (e *Engine) readArray(key string) []string {
	current, ok := e.Get(key)
	if !ok {
		return nil
	}

	var arr []string
	if err := json.Unmarshal([]byte(current), &arr); err != nil {
		return nil
	}

	return arr
}

func (e *Engine) putArray(key string, arr []string) error {
	if arr == nil {
		arr = []string{}
	}

	data, err := json.Marshal(arr)
	if err != nil {
		return fmt.Errorf("%w: marshal array for %q: %v", ErrCodec, key, err)
	}

	return e.Put(key, string(data))
}

// ListLPush prepends value to key's list.
func (e *Engine) ListLPush(key, value string) error {
	arr := e.readArray(key)
	arr = append([]string{value}, arr...)

	return e.putArray(key, arr)
}

// ListRPush appends value to key's list.
func (e *Engine) ListRPush(key, value string) error {
	arr := e.readArray(key)
	arr = append(arr, value)

	return e.putArray(key, arr)
}

// ListLPop removes and returns the head of key's list, or ("", false) if
// the list is empty.
func (e *Engine) ListLPop(key string) (string, bool, error) {
	arr := e.readArray(key)
	if len(arr) == 0 {
		return "", false, nil
	}

	head := arr[0]

	return head, true, e.putArray(key, arr[1:])
}

// ListRPop removes and returns the tail of key's list, or ("", false) if
// the list is empty.
func (e *Engine) ListRPop(key string) (string, bool, error) {
	arr := e.readArray(key)
	if len(arr) == 0 {
		return "", false, nil
	}

	last := len(arr) - 1
	tail := arr[last]

	return tail, true, e.putArray(key, arr[:last])
}

// ListLen returns the length of key's list.
func (e *Engine) ListLen(key string) int {
	return len(e.readArray(key))
}

// ListRange returns the elements of key's list from s to e inclusive.
// Negative indices are interpreted from the tail; the result is clamped to
// [0, len) and is empty if the resulting range is empty.
func (e *Engine) ListRange(key string, s, endIdx int) []string {
	arr := e.readArray(key)
	n := len(arr)

	s = clampListIndex(s, n)
	endIdx = clampListIndex(endIdx, n)

	if s > endIdx || n == 0 {
		return []string{}
	}

	if s >= n {
		return []string{}
	}

	if endIdx >= n {
		endIdx = n - 1
	}

	out := make([]string, endIdx-s+1)
	copy(out, arr[s:endIdx+1])

	return out
}

func clampListIndex(i, n int) int {
	if i < 0 {
		i += n
	}

	if i < 0 {
		i = 0
	}

	return i
}

// SetAdd appends value to key's set (a JSON array used as a set) only if
// it is not already present.
func (e *Engine) SetAdd(key, value string) error {
	arr := e.readArray(key)

	for _, v := range arr {
		if v == value {
			return nil
		}
	}

	arr = append(arr, value)

	return e.putArray(key, arr)
}

// SetShow returns the current members of key's set.
func (e *Engine) SetShow(key string) []string {
	arr := e.readArray(key)
	if arr == nil {
		return []string{}
	}

	return arr
}
