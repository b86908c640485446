package main

import "github.com/kvsystems/slackbase/internal/engine"

// engineCapabilities adapts a live *engine.Engine to script.Capabilities,
// so the sandbox never sees the engine itself.
type engineCapabilities struct {
	eng *engine.Engine
}

func (c engineCapabilities) Get(key string) (string, bool) {
	return c.eng.Get(key)
}

func (c engineCapabilities) Set(key, value string) error {
	return c.eng.Put(key, value)
}

func (c engineCapabilities) Delete(key string) error {
	return c.eng.Delete(key)
}

func (c engineCapabilities) Snapshot() map[string]string {
	entries := c.eng.Scan("", "", "")

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Found {
			out[e.Key] = e.Value
		}
	}

	return out
}
