package main

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/kvsystems/slackbase/internal/script"
)

func realFSReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// readUntilDot reads lines from the REPL's prompt until one contains only
// ".", joining them with newlines, for the interactive script-entry flow.
func readUntilDot(l *liner.State) (string, error) {
	var lines []string

	for {
		line, err := l.Prompt("... ")
		if err != nil {
			return "", err
		}

		if line == "." {
			break
		}

		lines = append(lines, line)
	}

	src := ""
	for i, line := range lines {
		if i > 0 {
			src += "\n"
		}

		src += line
	}

	return src, nil
}

func printScriptTable(scripts []script.Meta) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"SHA1", "Name", "Description"})

	for _, meta := range scripts {
		table.Append([]string{meta.SHA1, meta.Name, meta.Description})
	}

	table.Render()
}
