package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kvsystems/slackbase/internal/engine"
	"github.com/kvsystems/slackbase/internal/script"
)

func (r *repl) cmdPut(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: put <key> <value>")
		return
	}

	if err := r.eng.Put(args[0], args[1]); err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Println("OK")
}

func (r *repl) cmdPutEx(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: putex <key> <value> <ttl_secs>")
		return
	}

	secs, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		fmt.Println("Invalid TTL (must be a number of seconds)")
		return
	}

	if err := r.eng.PutEx(args[0], args[1], time.Duration(secs)*time.Second); err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Printf("OK (expires in %d seconds)\n", secs)
}

func (r *repl) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <key>")
		return
	}

	value, ok := r.eng.Get(args[0])
	if !ok {
		fmt.Println("(nil)")
		return
	}

	fmt.Println(value)
}

func (r *repl) cmdDel(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <key>")
		return
	}

	if err := r.eng.Delete(args[0]); err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Println("OK")
}

func (r *repl) cmdCompact(args []string) {
	if len(args) != 0 {
		fmt.Println("usage: compact")
		return
	}

	if err := r.eng.Compact(); err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Println("Compaction complete. Old records removed.")
}

func (r *repl) cmdSnapshot(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: snapshot <file>")
		return
	}

	if err := r.eng.Snapshot(args[0]); err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Printf("Snapshot saved to %s\n", args[0])
}

func (r *repl) cmdRestore(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: restore <file>")
		return
	}

	if err := r.eng.Restore(args[0]); err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Printf("Database restored from %s\n", args[0])
}

func (r *repl) cmdFind(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: find <field> <value>")
		return
	}

	keys := r.eng.Find(args[0], args[1])
	if len(keys) == 0 {
		fmt.Printf("No keys found with %s = %s\n", args[0], args[1])
		return
	}

	fmt.Printf("Keys with %s = %s:\n", args[0], args[1])

	for _, k := range keys {
		fmt.Printf("- %s\n", k)
	}
}

func (r *repl) cmdBatch(args []string) {
	var ops []engine.Op

	i := 0
	for i < len(args) {
		switch args[i] {
		case "put":
			if i+2 >= len(args) {
				fmt.Println("No value for put")
				return
			}

			ops = append(ops, engine.PutOp(args[i+1], args[i+2]))
			i += 3

		case "del":
			if i+1 >= len(args) {
				fmt.Println("No key for del")
				return
			}

			ops = append(ops, engine.DeleteOp(args[i+1]))
			i += 2

		default:
			fmt.Printf("Unknown batch op: %s\n", args[i])
			i++
		}
	}

	if err := r.eng.Batch(ops); err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Println("Batch OK")
}

func (r *repl) cmdScan(args []string) {
	var prefix, start, end string

	switch len(args) {
	case 0:
	case 1:
		prefix = args[0]
	case 2:
		start, end = args[0], args[1]
	default:
		fmt.Println("usage: scan [prefix] | scan <start> <end>")
		return
	}

	for _, entry := range r.eng.Scan(prefix, start, end) {
		if entry.Found {
			fmt.Printf("%s => %s\n", entry.Key, entry.Value)
		} else {
			fmt.Printf("%s => (expired or deleted)\n", entry.Key)
		}
	}
}

func (r *repl) cmdStats(args []string) {
	if len(args) != 0 {
		fmt.Println("usage: stats")
		return
	}

	stats, err := r.eng.Stats()
	if err != nil {
		fmt.Printf("ERR: %v\n", err)
		return
	}

	fmt.Printf("reads=%d writes=%d hits=%d misses=%d keys=%d log_bytes=%d wal_bytes=%d hint_bytes=%d\n",
		stats.Reads, stats.Writes, stats.Hits, stats.Misses, stats.KeyCount,
		stats.LogBytes, stats.WALBytes, stats.HintBytes)
}

func (r *repl) cmdEval(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: eval <lua_src>")
		return
	}

	if r.scripts == nil {
		fmt.Println("scripts unavailable")
		return
	}

	src := strings.Join(args, " ")

	sha, err := r.scripts.Register(src, "", "")
	if err != nil {
		fmt.Printf("Error compiling script: %v\n", err)
		return
	}

	fmt.Printf("Script cached, SHA1=%s\n", sha)
}

func splitKeysArgs(tail []string) (keys, scriptArgs []string) {
	for i, tok := range tail {
		if tok == "--" {
			return tail[:i], tail[i+1:]
		}
	}

	return tail, nil
}

func (r *repl) cmdEvalSHA(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: evalsha <sha> [keys] -- [args]")
		return
	}

	if r.scripts == nil {
		fmt.Println("scripts unavailable")
		return
	}

	r.runScript(args[0], args[1:])
}

func (r *repl) runScript(shaOrName string, tail []string) {
	src, err := r.scripts.Source(shaOrName)
	if err != nil {
		fmt.Printf("Error running script: %v\n", err)
		return
	}

	keys, scriptArgs := splitKeysArgs(tail)

	result, err := script.Run(src, keys, scriptArgs, engineCapabilities{eng: r.eng})
	if err != nil {
		fmt.Printf("Error running script: %v\n", err)
		return
	}

	fmt.Println(result)
}

func (r *repl) cmdScript(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: script load|begin|list|run|rename|remove ...")
		return
	}

	if r.scripts == nil {
		fmt.Println("scripts unavailable")
		return
	}

	sub, tail := args[0], args[1:]

	switch sub {
	case "load":
		r.cmdScriptLoad(tail)
	case "begin":
		r.cmdScriptBegin(tail)
	case "list":
		r.cmdScriptList(tail)
	case "run":
		r.cmdScriptRun(tail)
	case "rename":
		r.cmdScriptRename(tail)
	case "remove":
		r.cmdScriptRemove(tail)
	default:
		fmt.Printf("Unknown script command: %s\n", sub)
	}
}

func (r *repl) cmdScriptLoad(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: script load <filename> <name> [desc...]")
		return
	}

	filename, name, desc := args[0], args[1], strings.Join(args[2:], " ")

	data, err := realFSReadFile(filename)
	if err != nil {
		fmt.Printf("Error compiling script: %v\n", err)
		return
	}

	sha, err := r.scripts.Register(string(data), name, desc)
	if err != nil {
		fmt.Printf("Error compiling script: %v\n", err)
		return
	}

	fmt.Printf("Script '%s' cached, SHA1=%s\n", name, sha)
}

func (r *repl) cmdScriptBegin(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: script begin <name> [desc...]")
		return
	}

	name, desc := args[0], strings.Join(args[1:], " ")

	fmt.Println("Enter script source, terminated by a line containing only '.':")

	src, err := readUntilDot(r.liner)
	if err != nil {
		fmt.Printf("Error reading script: %v\n", err)
		return
	}

	sha, err := r.scripts.Register(src, name, desc)
	if err != nil {
		fmt.Printf("Error compiling script: %v\n", err)
		return
	}

	fmt.Printf("Script '%s' cached, SHA1=%s\n", name, sha)
}

func (r *repl) cmdScriptList(args []string) {
	if len(args) != 0 {
		fmt.Println("usage: script list")
		return
	}

	printScriptTable(r.scripts.List())
}

func (r *repl) cmdScriptRun(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: script run <sha_or_name> [keys] -- [args]")
		return
	}

	r.runScript(args[0], args[1:])
}

func (r *repl) cmdScriptRename(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: script rename <old_name> <new_name>")
		return
	}

	if err := r.scripts.Rename(args[0], args[1]); err != nil {
		fmt.Printf("Script name '%s' not found\n", args[0])
		return
	}

	fmt.Printf("Script '%s' renamed to '%s'\n", args[0], args[1])
}

func (r *repl) cmdScriptRemove(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: script remove <sha_or_name>")
		return
	}

	if err := r.scripts.Remove(args[0]); err != nil {
		fmt.Printf("Script '%s' not found.\n", args[0])
		return
	}

	fmt.Printf("Script '%s' removed.\n", args[0])
}

func (r *repl) cmdJSON(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: json set|get <key> <field> [value]")
		return
	}

	switch args[0] {
	case "set":
		if len(args) != 4 {
			fmt.Println("usage: json set <key> <field> <value>")
			return
		}

		if err := r.eng.JSONSetField(args[1], args[2], args[3]); err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		fmt.Println("OK")

	case "get":
		if len(args) != 3 {
			fmt.Println("usage: json get <key> <field>")
			return
		}

		value, ok := r.eng.JSONGetField(args[1], args[2])
		if !ok {
			fmt.Println("(nil)")
			return
		}

		fmt.Println(value)

	default:
		fmt.Printf("Unknown json command: %s\n", args[0])
	}
}

func (r *repl) cmdHash(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: hash set|get|del|getall <key> <field> [value]")
		return
	}

	switch args[0] {
	case "set":
		if len(args) != 4 {
			fmt.Println("usage: hash set <key> <field> <value>")
			return
		}

		if err := r.eng.HashSet(args[1], args[2], args[3]); err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		fmt.Printf("OK (set '%s:%s')\n", args[1], args[2])

	case "get":
		if len(args) != 3 {
			fmt.Println("usage: hash get <key> <field>")
			return
		}

		value, ok := r.eng.HashGet(args[1], args[2])
		if !ok {
			fmt.Println("(nil)")
			return
		}

		fmt.Println(value)

	case "del":
		if len(args) != 3 {
			fmt.Println("usage: hash del <key> <field>")
			return
		}

		if err := r.eng.HashDel(args[1], args[2]); err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		fmt.Printf("OK (deleted '%s:%s')\n", args[1], args[2])

	case "getall":
		if len(args) != 2 {
			fmt.Println("usage: hash getall <key>")
			return
		}

		fields := r.eng.HashGetAll(args[1])
		if fields == nil {
			fmt.Println("(nil)")
			return
		}

		for k, v := range fields {
			fmt.Printf("%s: %s\n", k, v)
		}

	default:
		fmt.Printf("Unknown hash command: %s\n", args[0])
	}
}

func (r *repl) cmdList(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: list push|lpush|rpush|lpop|rpop|range|len|show <key> ...")
		return
	}

	sub, key, rest := args[0], args[1], args[2:]

	switch sub {
	case "push", "rpush":
		if len(rest) != 1 {
			fmt.Println("usage: list push <key> <value>")
			return
		}

		if err := r.eng.ListRPush(key, rest[0]); err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		fmt.Printf("OK (%s '%s' to list '%s')\n", sub, rest[0], key)

	case "lpush":
		if len(rest) != 1 {
			fmt.Println("usage: list lpush <key> <value>")
			return
		}

		if err := r.eng.ListLPush(key, rest[0]); err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		fmt.Printf("OK (lpush '%s' to '%s')\n", rest[0], key)

	case "lpop":
		value, ok, err := r.eng.ListLPop(key)
		if err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		if !ok {
			fmt.Println("(nil)")
			return
		}

		fmt.Println(value)

	case "rpop":
		value, ok, err := r.eng.ListRPop(key)
		if err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		if !ok {
			fmt.Println("(nil)")
			return
		}

		fmt.Println(value)

	case "range":
		if len(rest) != 2 {
			fmt.Println("usage: list range <key> <start> <end>")
			return
		}

		s, _ := strconv.Atoi(rest[0])
		e, _ := strconv.Atoi(rest[1])

		items := r.eng.ListRange(key, s, e)
		if len(items) == 0 {
			fmt.Println("(nil)")
			return
		}

		for _, item := range items {
			fmt.Println(item)
		}

	case "len":
		fmt.Println(r.eng.ListLen(key))

	case "show":
		value, ok := r.eng.Get(key)
		if !ok {
			fmt.Println("(nil)")
			return
		}

		fmt.Println(value)

	default:
		fmt.Printf("Unknown list command: %s\n", sub)
	}
}

func (r *repl) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: set add|show <key> [value]")
		return
	}

	sub, key, rest := args[0], args[1], args[2:]

	switch sub {
	case "add":
		if len(rest) != 1 {
			fmt.Println("usage: set add <key> <value>")
			return
		}

		if err := r.eng.SetAdd(key, rest[0]); err != nil {
			fmt.Printf("ERR: %v\n", err)
			return
		}

		fmt.Printf("OK (added '%s' to set '%s')\n", rest[0], key)

	case "show":
		value, ok := r.eng.Get(key)
		if !ok {
			fmt.Println("(nil)")
			return
		}

		fmt.Println(value)

	default:
		fmt.Printf("Unknown set command: %s\n", sub)
	}
}
