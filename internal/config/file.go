package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile reads a TOML topology file.
func LoadFile(path string) (*Topology, error) {
	var doc Document
	meta, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return New(doc)
}

// Parse decodes a TOML topology held in memory.
func Parse(data string) (*Topology, error) {
	var doc Document
	meta, err := toml.Decode(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}
	return New(doc)
}

func rejectUndecoded(meta toml.MetaData) error {
	keys := meta.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return fmt.Errorf("%w: unknown keys %s", ErrInvalidTopology, strings.Join(names, ", "))
}
