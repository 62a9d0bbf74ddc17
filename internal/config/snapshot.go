package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Snapshots use core deterministic encoding so the same topology always
// produces identical bytes.
var (
	snapEnc cbor.EncMode
	snapDec cbor.DecMode
)

func init() {
	var err error
	snapEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("config: CBOR encoder initialization failed: " + err.Error())
	}
	snapDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("config: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalSnapshot encodes the declarative form of p.
func MarshalSnapshot(p Provider) ([]byte, error) {
	return snapEnc.Marshal(p.Document())
}

// UnmarshalSnapshot decodes and validates a snapshot.
func UnmarshalSnapshot(data []byte) (*Topology, error) {
	var doc Document
	if err := snapDec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: decode snapshot: %w", err)
	}
	return New(doc)
}

// SaveSnapshot writes p to path atomically.
func SaveSnapshot(path string, p Provider) error {
	data, err := MarshalSnapshot(p)
	if err != nil {
		return fmt.Errorf("config: encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("config: save snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: save snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("config: save snapshot: %w", err)
	}
	return nil
}

func LoadSnapshot(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}
