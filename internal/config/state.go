package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const StateFileName = "state.yaml"

// State is runtime state kept between restarts, separate from user settings.
type State struct {
	AlertPermission     bool      `yaml:"alert_permission"`
	PermissionUpdatedAt time.Time `yaml:"permission_updated_at,omitempty"`
	LastBackgroundRun   time.Time `yaml:"last_background_run,omitempty"`
}

// stateMu serializes read-modify-write cycles on state files.
var stateMu sync.Mutex

func StatePath(dir string) string {
	return filepath.Join(dir, StateFileName)
}

// LoadState reads the state file in dir. A missing file yields zero state.
func LoadState(ctx context.Context, dir string) (State, error) {
	var state State
	path := StatePath(dir)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("read state file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state file %q: %w", path, err)
	}

	return state, nil
}

func SaveState(ctx context.Context, dir string, state State) error {
	stateMu.Lock()
	defer stateMu.Unlock()
	return saveState(dir, state)
}

func saveState(dir string, state State) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure state dir %q: %w", dir, err)
	}

	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeAtomic(StatePath(dir), data, 0o600)
}

// UpdateState applies fn to the stored state and writes the result.
func UpdateState(ctx context.Context, dir string, fn func(*State)) (State, error) {
	stateMu.Lock()
	defer stateMu.Unlock()

	state, err := LoadState(ctx, dir)
	if err != nil {
		return state, err
	}
	fn(&state)
	if err := saveState(dir, state); err != nil {
		return state, err
	}
	return state, nil
}
