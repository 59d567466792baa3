package descriptor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devblac/indexkit/internal/config"
)

// Load resolves a contract's configured ABI into a Set. Relative paths resolve against dir.
// Unreadable files fail; individual malformed entries become warnings.
func Load(src config.InterfaceSource, opaque bool, dir string) (Set, error) {
	if opaque {
		return OpaqueSet(), nil
	}

	if src.Path != "" {
		path := src.Path
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Set{}, fmt.Errorf("read abi %s: %w", src.Path, err)
		}
		entries, warnings, err := ParseJSON(data)
		if err != nil {
			return Set{}, fmt.Errorf("%s: %w", src.Path, err)
		}
		return Set{Entries: entries, Warnings: warnings}, nil
	}

	var set Set
	for i, item := range src.Items {
		var (
			entry Entry
			ok    bool
			err   error
			text  = item.Signature
		)
		if item.Signature != "" {
			entry, ok, err = ParseSignature(item.Signature)
		} else {
			text = string(item.JSON)
			entry, ok, err = ParseJSONEntry(item.JSON)
		}
		if err != nil {
			set.Warnings = append(set.Warnings, Warning{Index: i, Text: text, Err: err})
			continue
		}
		if ok {
			set.Entries = append(set.Entries, entry)
		}
	}
	return set, nil
}
