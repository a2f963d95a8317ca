package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkleaf/notesync/pkg/types"
)

// DefaultFileName is the config file's name under the app's config
// directory.
const DefaultFileName = "sync.yaml"

// Sync is the persisted "sync" config record, per spec.md's §6
// configuration table.
type Sync struct {
	Enabled             bool                  `yaml:"enabled"`
	ServerURL           string                `yaml:"server_url"`
	LocalDBName         string                `yaml:"local_db_name"`
	DeviceID            string                `yaml:"device_id,omitempty"`
	WorkspaceLinks      []types.WorkspaceLink `yaml:"workspace_links"`
	CurrentWorkspaceID  string                `yaml:"current_workspace_id"`
	LastSyncTime        time.Time             `yaml:"last_sync_time,omitempty"`
	IgnorePatterns      []string              `yaml:"ignore_patterns"`
	IgnoredPaths        []string              `yaml:"ignored_paths"`
	OnboardingCompleted bool                  `yaml:"onboarding_completed"`
}

// Default returns the config a fresh install starts from: the default
// LocalDBName and no ignore patterns or ignored paths.
func Default() Sync {
	return Sync{
		LocalDBName:    "notesync.db",
		IgnorePatterns: nil,
		IgnoredPaths:   nil,
	}
}

// Store loads and persists the Sync config at a fixed path, serializing
// concurrent access the way pkg/storage serializes its bolt transactions.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store backed by the config file at dir/fileName. If
// fileName is empty, DefaultFileName is used.
func NewStore(dir, fileName string) *Store {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return &Store{path: filepath.Join(dir, fileName)}
}

// Load reads the config file, returning Default() if it doesn't exist
// yet.
func (s *Store) Load() (Sync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Sync{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Sync
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Sync{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to the config file, creating its parent directory if
// needed.
func (s *Store) Save(cfg Sync) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Path returns the config file's resolved path.
func (s *Store) Path() string {
	return s.path
}
