package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Capabilities is the narrow object the sandbox invokes instead of a raw
// pointer into engine internals, so the engine keeps enforcing its
// single-writer discipline externally rather than handing it to the
// sandbox.
//
// An adapter in the caller's package (e.g. cmd/slackbase) binds this to a
// live *engine.Engine; script itself has no dependency on package engine.
type Capabilities interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	// Snapshot returns the (key,value) pairs live as of invocation start,
	// exposed to the script as the DB table.
	Snapshot() map[string]string
}

// SandboxError wraps a scripting-subsystem failure with a sub-kind
// (syntax, runtime, memory, callback).
type SandboxError struct {
	Kind string // "syntax", "runtime", "memory", "callback"
	Err  error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("script: %s error: %v", e.Kind, e.Err)
}

func (e *SandboxError) Unwrap() error { return e.Err }

func sandboxErr(kind string, err error) error {
	return &SandboxError{Kind: kind, Err: err}
}

// errCallback is raised by the SET/DEL Lua bindings (via L.RaiseError)
// when the underlying capability call fails, and surfaces back to Run as a
// "callback" sandbox error.
var errCallback = errors.New("callback failed")

// Run compiles and executes src (the raw contents of a registered script)
// with the given keys, args, and capability object, and returns its
// result rendered as JSON text.
func Run(src string, keys, args []string, caps Capabilities) (string, error) {
	L := lua.NewState()
	defer L.Close()

	registerCallbacks(L, caps)
	setStringArray(L, "KEYS", keys)
	setStringArray(L, "ARGS", args)
	setSnapshot(L, "DB", caps.Snapshot())

	if err := L.DoString(src); err != nil {
		if _, ok := err.(*lua.ApiError); ok {
			return "", sandboxErr(classifyLuaError(err), err)
		}

		return "", sandboxErr("runtime", err)
	}

	if L.GetTop() == 0 {
		return "null", nil
	}

	result := L.Get(-1)
	L.Pop(1)

	data, err := luaValueToJSON(result)
	if err != nil {
		return "", sandboxErr("runtime", err)
	}

	return data, nil
}

func classifyLuaError(err error) string {
	apiErr, ok := err.(*lua.ApiError)
	if !ok {
		return "runtime"
	}

	switch apiErr.Type {
	case lua.ApiErrorSyntax:
		return "syntax"
	default:
		if strings.Contains(apiErr.Error(), errCallback.Error()) {
			return "callback"
		}

		return "runtime"
	}
}

func registerCallbacks(L *lua.LState, caps Capabilities) {
	L.SetGlobal("GET", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)

		value, ok := caps.Get(key)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}

		L.Push(lua.LString(value))

		return 1
	}))

	L.SetGlobal("SET", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		value := L.CheckString(2)

		if err := caps.Set(key, value); err != nil {
			L.RaiseError("%s: %v", errCallback, err)
		}

		return 0
	}))

	L.SetGlobal("DEL", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)

		if err := caps.Delete(key); err != nil {
			L.RaiseError("%s: %v", errCallback, err)
		}

		return 0
	}))
}

func setStringArray(L *lua.LState, name string, values []string) {
	t := L.NewTable()
	for _, v := range values {
		t.Append(lua.LString(v))
	}

	L.SetGlobal(name, t)
}

func setSnapshot(L *lua.LState, name string, snapshot map[string]string) {
	t := L.NewTable()

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		t.RawSetString(k, lua.LString(snapshot[k]))
	}

	L.SetGlobal(name, t)
}

// luaValueToJSON renders a Lua value as JSON text: a table whose keys are
// a contiguous 1..N integer run prints as a JSON array; any other table
// prints as a JSON object; scalars print directly.
func luaValueToJSON(v lua.LValue) (string, error) {
	converted, err := luaToJSONValue(v)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(converted)
	if err != nil {
		return "", fmt.Errorf("encode lua result: %w", err)
	}

	return string(data), nil
}

func luaToJSONValue(v lua.LValue) (any, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		return luaTableToJSONValue(val)
	default:
		return nil, fmt.Errorf("unsupported lua result type %T", v)
	}
}

func luaTableToJSONValue(t *lua.LTable) (any, error) {
	maxN := t.Len()

	isArray := maxN > 0

	if isArray {
		seen := 0
		total := 0

		t.ForEach(func(k, _ lua.LValue) {
			total++

			if n, ok := k.(lua.LNumber); ok {
				if int(n) >= 1 && int(n) <= maxN && float64(int(n)) == float64(n) {
					seen++
				}
			}
		})

		if seen != maxN || total != maxN {
			isArray = false
		}
	}

	if isArray {
		arr := make([]any, maxN)

		for i := 1; i <= maxN; i++ {
			elem, err := luaToJSONValue(t.RawGetInt(i))
			if err != nil {
				return nil, err
			}

			arr[i-1] = elem
		}

		return arr, nil
	}

	obj := make(map[string]any)

	var forEachErr error

	t.ForEach(func(k, v lua.LValue) {
		if forEachErr != nil {
			return
		}

		var key string

		switch kk := k.(type) {
		case lua.LString:
			key = string(kk)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kk), 'g', -1, 64)
		default:
			key = fmt.Sprintf("%v", k)
		}

		elem, err := luaToJSONValue(v)
		if err != nil {
			forEachErr = err
			return
		}

		obj[key] = elem
	})

	if forEachErr != nil {
		return nil, forEachErr
	}

	return obj, nil
}
