package bank

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry tracks the folders the user has pointed at bank files.
// The folder list survives restarts as a small JSON settings file.
type Registry struct {
	mu           sync.Mutex
	folders      []string
	settingsPath string
}

func NewRegistry(settingsPath string) *Registry {
	r := &Registry{settingsPath: settingsPath}
	if data, err := os.ReadFile(settingsPath); err == nil {
		var paths []string
		if json.Unmarshal(data, &paths) == nil {
			r.folders = paths
		}
	}
	return r
}

func (r *Registry) Folders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.folders...)
}

func (r *Registry) AddFolder(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.folders {
		if f == abs {
			return nil
		}
	}
	r.folders = append(r.folders, abs)
	return r.saveLocked()
}

func (r *Registry) RemoveFolder(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.folders[:0]
	for _, f := range r.folders {
		if f != abs {
			kept = append(kept, f)
		}
	}
	r.folders = kept
	return r.saveLocked()
}

// Scan lists every *.db file under the watched folders, title = file stem.
func (r *Registry) Scan() []Info {
	var banks []Info
	for _, folder := range r.Folders() {
		entries, err := os.ReadDir(folder)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
				continue
			}
			banks = append(banks, Info{
				Path:  filepath.Join(folder, e.Name()),
				Title: strings.TrimSuffix(e.Name(), ".db"),
			})
		}
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i].Path < banks[j].Path })
	return banks
}

func (r *Registry) saveLocked() error {
	if r.settingsPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.folders, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.settingsPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.settingsPath, data, 0o644)
}
