package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Loader builds immutable registry snapshots from a directory of agent
// definition files. One JSON file per agent.
type Loader struct {
	dir string
}

// NewLoader creates a loader for a definitions directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads every *.json file in the directory into a fresh Registry and
// validates the handoff graph. The returned registry is a complete snapshot;
// callers must not mutate it afterwards.
func (l *Loader) Load() (*Registry, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents directory: %w", err)
	}

	registry := NewRegistry()
	loaded := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		def, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load agent file %s: %w", entry.Name(), err)
		}

		if err := registry.Register(def); err != nil {
			return nil, fmt.Errorf("failed to register agent from %s: %w", entry.Name(), err)
		}
		loaded++
	}

	if err := registry.ValidateHandoffs(); err != nil {
		return nil, err
	}

	log.Info().Str("dir", l.dir).Int("agents", loaded).Msg("Agent definitions loaded")

	return registry, nil
}

// loadFile parses a single definition file.
func (l *Loader) loadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// Default the id to the file name when omitted
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if def.Name == "" {
		def.Name = def.ID
	}

	return def, nil
}
