package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/kvsystems/slackbase/internal/engine"
	"github.com/kvsystems/slackbase/internal/script"
	"github.com/kvsystems/slackbase/pkg/fs"
)

// repl is the interactive command loop for a single open database.
type repl struct {
	eng     *engine.Engine
	scripts *script.Manager
	dbPath  string
	liner   *liner.State
}

func newREPL(eng *engine.Engine, dbPath string) *repl {
	realFS := fs.NewReal()

	mgr, err := script.Open(realFS, fs.NewAtomicWriter(realFS), dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: scripts unavailable: %v\n", err)
	}

	return &repl{eng: eng, scripts: mgr, dbPath: dbPath}
}

// historyFile returns the path to the REPL's persistent history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".slackbase_history")
}

var replCommands = []string{
	"put", "putex", "get", "del", "compact", "snapshot", "restore", "find",
	"batch", "scan", "stats", "eval", "evalsha",
	"script", "json", "hash", "list", "set",
	"exit", "quit", "q",
}

func (r *repl) completer(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range replCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

// Run starts the REPL loop, reading commands until exit/quit/EOF.
func (r *repl) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("slackbase - db=%s\n", r.dbPath)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("slackbase> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("Bye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		args := strings.Fields(line)

		if r.dispatch(args) {
			break
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

// dispatch runs one command line and reports whether the REPL should exit.
func (r *repl) dispatch(args []string) bool {
	cmd := args[0]
	tail := args[1:]

	switch cmd {
	case "exit", "quit", "q":
		return true

	case "help", "?":
		r.printHelp()

	case "put":
		r.cmdPut(tail)
	case "putex":
		r.cmdPutEx(tail)
	case "get":
		r.cmdGet(tail)
	case "del":
		r.cmdDel(tail)
	case "compact":
		r.cmdCompact(tail)
	case "snapshot":
		r.cmdSnapshot(tail)
	case "restore":
		r.cmdRestore(tail)
	case "find":
		r.cmdFind(tail)
	case "batch":
		r.cmdBatch(tail)
	case "scan":
		r.cmdScan(tail)
	case "stats":
		r.cmdStats(tail)
	case "eval":
		r.cmdEval(tail)
	case "evalsha":
		r.cmdEvalSHA(tail)
	case "script":
		r.cmdScript(tail)
	case "json":
		r.cmdJSON(tail)
	case "hash":
		r.cmdHash(tail)
	case "list":
		r.cmdList(tail)
	case "set":
		r.cmdSet(tail)
	default:
		r.printUsage()
	}

	return false
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <key> <value>                     Store a value")
	fmt.Println("  putex <key> <value> <ttl_secs>         Store a value with expiry")
	fmt.Println("  get <key>                              Retrieve a value")
	fmt.Println("  del <key>                              Delete a value")
	fmt.Println("  compact                                Rewrite the log, dropping dead records")
	fmt.Println("  snapshot <file>                        Copy the database to file")
	fmt.Println("  restore <file>                         Replace the database with a snapshot")
	fmt.Println("  find <field> <value>                   Keys whose JSON value has field=value")
	fmt.Println("  batch (put k v | del k)...              Apply multiple ops atomically")
	fmt.Println("  scan [prefix] | scan <start> <end>     List matching keys")
	fmt.Println("  stats                                  Show engine counters")
	fmt.Println("  eval <lua>                              Cache a script and print its SHA1")
	fmt.Println("  evalsha <sha> [keys] -- [args]         Run a cached script")
	fmt.Println("  script load|begin|list|run|rename|remove")
	fmt.Println("  json set|get <key> <field> [value]")
	fmt.Println("  hash set|get|del|getall <key> <field> [value]")
	fmt.Println("  list push|lpush|rpush|lpop|rpop|range|len|show <key> ...")
	fmt.Println("  set add|show <key> [value]")
	fmt.Println("  exit / quit / q                        Exit")
}

func (r *repl) printUsage() {
	fmt.Println("Usage: put <key> <value> | putex <key> <value> <ttl_secs> | " +
		"get <key> | del <key> | compact | snapshot <file> | restore <file> | " +
		"batch ... | scan [prefix] | scan <start> <end> | " +
		"stats | eval <lua_src> | evalsha <sha> [keys] -- [args] | exit")
}
