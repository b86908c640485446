// slackbase is the interactive command-line front end for the storage
// engine.
//
// Usage:
//
//	slackbase [--db <path>] [--serializer plain|json] [--config <path>]
//
// If --serializer is not given, the serializer comes from the config files,
// defaulting to plain.
package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kvsystems/slackbase/internal/config"
	"github.com/kvsystems/slackbase/internal/engine"
	"github.com/kvsystems/slackbase/internal/serialize"
)

func main() {
	if err := run(os.Args[1:], os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, env []string) error {
	fs := flag.NewFlagSet("slackbase", flag.ContinueOnError)

	dbPath := fs.String("db", "", "path to the database log file")
	serializerName := fs.String("serializer", "", "value serializer: plain or json")
	configPath := fs.String("config", "", "explicit config file path")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: slackbase [--db <path>] [--serializer plain|json] [--config <path>]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	overrides := config.Overrides{
		DBPath:        *dbPath,
		HasDBPath:     fs.Changed("db"),
		Serializer:    *serializerName,
		HasSerializer: fs.Changed("serializer"),
	}

	cfg, _, err := config.Load(workDir, *configPath, overrides, env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !overrides.HasSerializer && cfg.Serializer == "" {
		cfg.Serializer, err = promptSerializer()
		if err != nil {
			return err
		}
	}

	serializer, err := resolveSerializer(cfg.Serializer)
	if err != nil {
		return err
	}

	eng, err := engine.Open(cfg.DBPath,
		engine.WithSerializer(serializer),
		engine.WithLRUCapacity(cfg.LRUCapacity),
		engine.WithLockTimeout(time.Duration(cfg.LockTimeout)*time.Second),
	)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer eng.Close()

	repl := newREPL(eng, cfg.DBPath)

	return repl.Run()
}

func resolveSerializer(name string) (engine.Serializer, error) {
	switch name {
	case "", "plain":
		return engineSerializer{serialize.NewPlain()}, nil
	case "json":
		return engineSerializer{serialize.NewJSON()}, nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (want plain or json)", name)
	}
}

// engineSerializer lets a serialize.Serializer stand in for an
// engine.Serializer; the two interfaces differ only in Clone's result type.
type engineSerializer struct{ s serialize.Serializer }

func (a engineSerializer) Serialize(value string) ([]byte, error)  { return a.s.Serialize(value) }
func (a engineSerializer) Deserialize(data []byte) (string, error) { return a.s.Deserialize(data) }
func (a engineSerializer) Clone() engine.Serializer                { return engineSerializer{a.s.Clone()} }
