package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Index lifecycle states persisted in state.json.
const (
	StateNotStarted = "not_started"
	StateInProgress = "in_progress"
	StateReady      = "ready"
	StateFailed     = "failed"
)

// Config is the durable per-project configuration.
type Config struct {
	RootPath    string   `json:"root_path"`
	Language    string   `json:"language"`
	IgnoreDirs  []string `json:"ignore_dirs,omitempty"`
	MaxInFlight int      `json:"max_in_flight,omitempty"`
	ServerPath  string   `json:"server_path,omitempty"`
}

// State is the durable index status for one project. It survives restarts so
// a new server process can report the last sweep without re-running it.
type State struct {
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Total      int       `json:"total"`
	LastSweep  time.Time `json:"last_sweep,omitempty"`
	Files      int       `json:"files"`
	Symbols    int       `json:"symbols"`
	References int       `json:"references"`
	Error      string    `json:"error,omitempty"`
}

// Workspace is one project's slice of the refmap home directory: its config,
// index state, graph artifact, and query database all live here, keyed by the
// project root so repeated opens land on the same directory.
type Workspace struct {
	rootPath string
	dir      string
}

// Open locates (creating if needed) the workspace for a project root.
func Open(rootPath string) (*Workspace, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}
	dir, err := WorkspaceDir(abs)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return &Workspace{rootPath: abs, dir: dir}, nil
}

// Root returns the absolute project root.
func (w *Workspace) Root() string { return w.rootPath }

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// GraphPath returns where the JSON graph artifact lives.
func (w *Workspace) GraphPath() string { return filepath.Join(w.dir, "graph.json") }

// DBPath returns where the query database lives.
func (w *Workspace) DBPath() string { return filepath.Join(w.dir, "refs.db") }

// SaveConfig persists the project configuration.
func (w *Workspace) SaveConfig(cfg *Config) error {
	return writeJSON(filepath.Join(w.dir, "config.json"), cfg)
}

// LoadConfig reads the project configuration. A workspace that was never
// configured returns fs.ErrNotExist.
func (w *Workspace) LoadConfig() (*Config, error) {
	var cfg Config
	if err := readJSON(filepath.Join(w.dir, "config.json"), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveState persists the index state.
func (w *Workspace) SaveState(st *State) error {
	return writeJSON(filepath.Join(w.dir, "state.json"), st)
}

// LoadState reads the index state. A workspace with no recorded state
// reports StateNotStarted rather than an error.
func (w *Workspace) LoadState() (*State, error) {
	var st State
	err := readJSON(filepath.Join(w.dir, "state.json"), &st)
	if errors.Is(err, fs.ErrNotExist) {
		return &State{Status: StateNotStarted}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ProgressWriter returns a sweep progress callback that persists progress to
// state.json, throttled to one write per interval. The first and final
// updates always land.
func (w *Workspace) ProgressWriter(interval time.Duration) func(done, total int) {
	var mu sync.Mutex
	var last time.Time
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if done != 0 && done != total && now.Sub(last) < interval {
			return
		}
		last = now

		st, err := w.LoadState()
		if err != nil {
			st = &State{}
		}
		st.Status = StateInProgress
		st.Progress = done
		st.Total = total
		if err := w.SaveState(st); err != nil {
			log.Printf("Warning: failed to persist sweep progress: %v", err)
		}
	}
}

// Projects lists the configuration of every registered project. Workspaces
// with unreadable configs are skipped with a warning.
func Projects() ([]*Config, error) {
	dir, err := ProjectsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	var configs []*Config
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var cfg Config
		if err := readJSON(filepath.Join(dir, entry.Name(), "config.json"), &cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("Warning: failed to read config for %s: %v", entry.Name(), err)
			}
			continue
		}
		configs = append(configs, &cfg)
	}
	return configs, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
