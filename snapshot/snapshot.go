// Package snapshot writes configurations and simulation results to a
// directory as JSON files and reads them back.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/engine"
)

// Version is the current snapshot format version.
const Version = "1.0"

// Kind distinguishes configuration snapshots from result snapshots.
type Kind string

const (
	KindConfig  Kind = "config"
	KindResults Kind = "results"
)

var (
	// ErrInvalidName is returned for filenames that would escape the directory.
	ErrInvalidName = errors.New("invalid snapshot name")
	// ErrNotFound is returned when a snapshot file does not exist.
	ErrNotFound = errors.New("snapshot not found")
)

// Snapshot is the on-disk document.
type Snapshot struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name,omitempty"`
	GameType  string    `json:"game_type,omitempty"`
	ConfigID  string    `json:"config_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`

	Config  *config.Config  `json:"config,omitempty"`
	Results *engine.Results `json:"results,omitempty"`
}

// Entry describes a snapshot file without its payload.
type Entry struct {
	Filename string    `json:"filename"`
	Kind     Kind      `json:"kind"`
	Name     string    `json:"name"`
	GameType string    `json:"game_type"`
	Created  time.Time `json:"created"`
}

// Dir is a directory of snapshots.
type Dir struct {
	path string
	now  func() time.Time
}

// NewDir returns a Dir rooted at path. The directory is created on first save.
func NewDir(path string) *Dir {
	return &Dir{path: path, now: time.Now}
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// SaveConfig writes cfg. An empty filename generates config_<timestamp>_<id>.json.
func (d *Dir) SaveConfig(cfg *config.Config, filename string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("no configuration to save")
	}
	snap := d.newSnapshot(KindConfig, cfg)
	if filename == "" {
		filename = fmt.Sprintf("config_%s_%s.json", snap.Timestamp.Format("20060102_150405"), snap.ID[:8])
	}
	return filename, d.write(filename, snap)
}

// SaveResults writes res together with the configuration that produced it.
// An empty filename generates [config_<configID>_]results_<timestamp>_<id>.json.
func (d *Dir) SaveResults(cfg *config.Config, res *engine.Results, configID, filename string) (string, error) {
	if res == nil {
		return "", fmt.Errorf("no results to save")
	}
	snap := d.newSnapshot(KindResults, cfg)
	snap.Results = res
	snap.ConfigID = configID
	if res.GameType != "" {
		snap.GameType = string(res.GameType)
	}
	if filename == "" {
		prefix := ""
		if configID != "" {
			prefix = "config_" + configID + "_"
		}
		filename = fmt.Sprintf("%sresults_%s_%s.json", prefix, snap.Timestamp.Format("20060102_150405"), snap.ID[:8])
	}
	return filename, d.write(filename, snap)
}

// Load reads a snapshot by filename.
func (d *Dir) Load(filename string) (*Snapshot, error) {
	path, err := d.resolve(filename)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// List returns every snapshot in the directory, newest first. A missing
// directory is empty.
func (d *Dir) List() ([]Entry, error) {
	files, err := os.ReadDir(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		snap, err := Load(filepath.Join(d.path, f.Name()))
		if err != nil {
			// Not one of ours.
			continue
		}
		name := snap.Name
		if name == "" {
			name = "Unnamed"
		}
		entries = append(entries, Entry{
			Filename: f.Name(),
			Kind:     snap.Kind,
			Name:     name,
			GameType: snap.GameType,
			Created:  snap.Timestamp,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Created.Equal(entries[j].Created) {
			return entries[i].Created.After(entries[j].Created)
		}
		return entries[i].Filename < entries[j].Filename
	})
	return entries, nil
}

func (d *Dir) newSnapshot(kind Kind, cfg *config.Config) *Snapshot {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: d.now().UTC(),
		Version:   Version,
		Config:    cfg,
	}
	if cfg != nil {
		snap.Name = cfg.Name
		snap.GameType = cfg.TypeName()
	}
	return snap
}

func (d *Dir) resolve(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	return filepath.Join(d.path, filename), nil
}

func (d *Dir) write(filename string, snap *Snapshot) error {
	path, err := d.resolve(filename)
	if err != nil {
		return err
	}
	return Save(path, snap)
}

// Save writes snap to path atomically, creating parent directories.
func Save(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write to temp file first, then rename (atomic)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snap.Kind != KindConfig && snap.Kind != KindResults {
		return nil, fmt.Errorf("failed to unmarshal snapshot: unknown kind %q", snap.Kind)
	}
	return &snap, nil
}
