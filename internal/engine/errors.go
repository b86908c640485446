package engine

import "errors"

// Error taxonomy. These are kinds, not exhaustive type hierarchies;
// callers should use errors.Is against the sentinel, not type assertions.

// ErrIO reports a filesystem or OS-level read/write failure.
// Callers should use errors.Is(err, ErrIO).
var ErrIO = errors.New("engine: io error")

// ErrCodec reports that a value could not be serialized or deserialized.
// Callers should use errors.Is(err, ErrCodec).
var ErrCodec = errors.New("engine: codec error")

// ErrInvalidRecord reports a log line that failed record-codec validation.
// Callers should use errors.Is(err, ErrInvalidRecord).
var ErrInvalidRecord = errors.New("engine: invalid record")

// ErrNotFound reports that a named lookup (e.g. a script by name or sha1)
// failed.
// Callers should use errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("engine: not found")

// ErrSystemTime reports a clock read failure.
// Callers should use errors.Is(err, ErrSystemTime).
var ErrSystemTime = errors.New("engine: system time error")

// ErrClosed reports an operation attempted on a closed engine.
// Callers should use errors.Is(err, ErrClosed).
var ErrClosed = errors.New("engine: closed")
