package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// promptSerializer asks on stdin for "plain" or "json", retrying on any
// other input, matching the startup prompt of the command line this REPL
// descends from.
func promptSerializer() (string, error) {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("Choose serialization format [plain/json]:")
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read serializer choice: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "plain":
			return "plain", nil
		case "json":
			return "json", nil
		default:
			fmt.Printf("Invalid input %q. Please enter 'plain' or 'json'.\n", strings.TrimSpace(line))
		}
	}
}
