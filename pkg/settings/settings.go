// Package settings persists the operator's filter settings and keeps an
// immutable snapshot of them current.
//
// The file is a small JSON object:
//
//	{"underage": true, "zoo": false, "pedo": false, "customFilters": "word\nother"}
//
// Writes go through a temp file and a rename so a concurrent reader never
// sees a partial document.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	errs "followsweep/pkg/errors"
	"followsweep/pkg/filter"
)

// Settings is the on-disk document.
type Settings struct {
	Underage      bool   `json:"underage"`
	Zoo           bool   `json:"zoo"`
	Pedo          bool   `json:"pedo"`
	CustomFilters string `json:"customFilters"`
}

// Filter converts the document into a filter configuration.
func (s Settings) Filter() filter.Config {
	return filter.Config{
		Underage: s.Underage,
		Zoo:      s.Zoo,
		Pedo:     s.Pedo,
		Custom:   filter.ParsePatterns(s.CustomFilters),
	}
}

// Load reads path. A missing file yields zero settings.
func Load(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, errs.Wrapf(errs.ErrorTypeInvalidInput, "settings.load", err, "parse %s", path)
	}
	return s, nil
}

// Save writes s to path atomically.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// Store holds the current settings for one file.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// Open loads path into a new Store.
func Open(path string) (*Store, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, current: s}, nil
}

// Path returns the settings file location.
func (st *Store) Path() string { return st.path }

// Current returns the settings as last loaded or saved.
func (st *Store) Current() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Snapshot returns the current filter configuration. Callers keep the value
// for a whole pass; later edits do not affect it.
func (st *Store) Snapshot() filter.Config {
	return st.Current().Filter()
}

// Update saves s and makes it current.
func (st *Store) Update(s Settings) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := Save(st.path, s); err != nil {
		return err
	}
	st.current = s
	return nil
}

// Reload rereads the file. The current settings are kept when the file does
// not parse.
func (st *Store) Reload() (Settings, error) {
	s, err := Load(st.path)
	if err != nil {
		return st.Current(), err
	}
	st.mu.Lock()
	st.current = s
	st.mu.Unlock()
	return s, nil
}
