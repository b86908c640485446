// Package script implements the embedded scripting sandbox: named,
// sha1-addressed scripts run against a narrow capability object rather
// than a raw pointer into engine internals.
package script

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/kvsystems/slackbase/pkg/fs"
)

// ErrNotFound reports that a script lookup by sha1 or name failed.
// Callers should use errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("script: not found")

// ErrNameTaken reports that Register was asked to bind a name already bound
// to a different script.
var ErrNameTaken = errors.New("script: name already in use")

// Meta is one script's persisted metadata, held in a "<db>.scripts" JSON
// array alongside the database.
type Meta struct {
	SHA1        string `json:"sha1"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Manager owns the name -> sha1 map and script metadata: load, register,
// list, resolve by sha1 or name, rename, remove.
//
// Script source is stored out of band from the metadata file, one file per
// sha1 under a sibling "<db>.scriptsrc" directory.
type Manager struct {
	fsys      fs.FS
	atomic    *fs.AtomicWriter
	metaPath  string
	sourceDir string

	scripts map[string]Meta   // sha1 -> meta
	names   map[string]string // name -> sha1
}

func metaPath(dbPath string) string  { return dbPath + ".scripts" }
func sourceDir(dbPath string) string { return dbPath + ".scriptsrc" }

// Open loads a Manager's metadata for the database at dbPath, creating an
// empty one if no metadata file exists yet.
func Open(fsys fs.FS, atomicWriter *fs.AtomicWriter, dbPath string) (*Manager, error) {
	m := &Manager{
		fsys:      fsys,
		atomic:    atomicWriter,
		metaPath:  metaPath(dbPath),
		sourceDir: sourceDir(dbPath),
		scripts:   make(map[string]Meta),
		names:     make(map[string]string),
	}

	if err := fsys.MkdirAll(m.sourceDir, 0o755); err != nil {
		return nil, fmt.Errorf("script: create source directory: %w", err)
	}

	exists, err := fsys.Exists(m.metaPath)
	if err != nil {
		return nil, fmt.Errorf("script: stat metadata: %w", err)
	}

	if !exists {
		return m, nil
	}

	data, err := fsys.ReadFile(m.metaPath)
	if err != nil {
		return nil, fmt.Errorf("script: read metadata: %w", err)
	}

	var entries []Meta
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("script: parse metadata: %w", err)
	}

	for _, meta := range entries {
		m.scripts[meta.SHA1] = meta
		if meta.Name != "" {
			m.names[meta.Name] = meta.SHA1
		}
	}

	return m, nil
}

// Register stores src under its sha1, optionally bound to name with desc,
// and persists the updated metadata.
func (m *Manager) Register(src, name, desc string) (string, error) {
	sum := sha1.Sum([]byte(src))
	id := hex.EncodeToString(sum[:])

	if name != "" {
		if existing, ok := m.names[name]; ok && existing != id {
			return "", fmt.Errorf("%w: %q is bound to %s", ErrNameTaken, name, existing)
		}
	}

	// Script source is written with atomic.WriteFile rather than the
	// heavier fs.AtomicWriter used for metadata: a lost-update here just
	// means a re-run of eval/load, not a corrupt index, so the plain
	// rename-on-write guarantee is enough.
	if err := atomic.WriteFile(m.sourcePath(id), strings.NewReader(src)); err != nil {
		return "", fmt.Errorf("script: write source: %w", err)
	}

	// atomic.WriteFile doesn't set permissions for new files.
	if err := os.Chmod(m.sourcePath(id), 0o644); err != nil {
		return "", fmt.Errorf("script: chmod source: %w", err)
	}

	m.scripts[id] = Meta{SHA1: id, Name: name, Description: desc}
	if name != "" {
		m.names[name] = id
	}

	if err := m.save(); err != nil {
		return "", err
	}

	return id, nil
}

// Resolve returns the sha1 for a script addressed by name or sha1.
func (m *Manager) Resolve(shaOrName string) (string, error) {
	if _, ok := m.scripts[shaOrName]; ok {
		return shaOrName, nil
	}

	if id, ok := m.names[shaOrName]; ok {
		return id, nil
	}

	return "", fmt.Errorf("%w: %q", ErrNotFound, shaOrName)
}

// Source returns the source text for a script addressed by sha1 or name.
func (m *Manager) Source(shaOrName string) (string, error) {
	id, err := m.Resolve(shaOrName)
	if err != nil {
		return "", err
	}

	data, err := m.fsys.ReadFile(m.sourcePath(id))
	if err != nil {
		return "", fmt.Errorf("script: read source %s: %w", id, err)
	}

	return string(data), nil
}

// List returns every registered script's metadata, sorted by sha1.
func (m *Manager) List() []Meta {
	out := make([]Meta, 0, len(m.scripts))
	for _, meta := range m.scripts {
		out = append(out, meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SHA1 < out[j].SHA1 })

	return out
}

// Rename rebinds name to the script addressed by shaOrName, replacing any
// previous binding of that name.
func (m *Manager) Rename(shaOrName, newName string) error {
	id, err := m.Resolve(shaOrName)
	if err != nil {
		return err
	}

	meta := m.scripts[id]

	if meta.Name != "" {
		delete(m.names, meta.Name)
	}

	meta.Name = newName
	m.scripts[id] = meta
	m.names[newName] = id

	return m.save()
}

// Remove deletes the script addressed by shaOrName, along with its source
// file and any name binding.
func (m *Manager) Remove(shaOrName string) error {
	id, err := m.Resolve(shaOrName)
	if err != nil {
		return err
	}

	meta := m.scripts[id]
	if meta.Name != "" {
		delete(m.names, meta.Name)
	}

	delete(m.scripts, id)

	if err := m.fsys.Remove(m.sourcePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("script: remove source %s: %w", id, err)
	}

	return m.save()
}

func (m *Manager) sourcePath(id string) string {
	return m.sourceDir + "/" + id + ".lua"
}

func (m *Manager) save() error {
	out := make([]Meta, 0, len(m.scripts))
	for _, meta := range m.scripts {
		out = append(out, meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SHA1 < out[j].SHA1 })

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("script: marshal metadata: %w", err)
	}

	if err := m.atomic.WriteWithDefaults(m.metaPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("script: write metadata: %w", err)
	}

	return nil
}
