package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rpcclient/internal/cache"
)

// batchCall is one entry of a batch file
type batchCall struct {
	Method   string      `json:"method" yaml:"method"`
	Params   interface{} `json:"params" yaml:"params"`
	Cache    bool        `json:"cache" yaml:"cache"`
	CacheTTL *int        `json:"cacheTtl" yaml:"cacheTtl"` // minutes
}

// loadBatchFile reads a list of calls from a YAML or JSON file
func loadBatchFile(path string) ([]batchCall, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var calls []batchCall
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &calls)
	default:
		err = json.Unmarshal(data, &calls)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}

	if len(calls) == 0 {
		return nil, fmt.Errorf("batch file lists no calls")
	}
	for i, call := range calls {
		if call.Method == "" {
			return nil, fmt.Errorf("call[%d]: method is required", i)
		}
	}
	return calls, nil
}

type headerFlag struct {
	name  string
	value string
}

// parseHeaders splits Name=Value flags, keeping their order
func parseHeaders(raw []string) ([]headerFlag, error) {
	out := make([]headerFlag, 0, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected Name=Value", h)
		}
		out = append(out, headerFlag{name: name, value: strings.TrimSpace(value)})
	}
	return out, nil
}

// cacheDuration converts a minutes flag into a cache TTL
func cacheDuration(minutes int) time.Duration {
	if minutes < 0 {
		return cache.DefaultTTL
	}
	return time.Duration(minutes) * time.Minute
}
