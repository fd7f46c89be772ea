package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RepoConfig is one entry of the repos.json registry.
type RepoConfig struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	PostCheckout    string `json:"post_checkout"`
	BuildCommand    string `json:"build_command"`
	SingleTUCommand string `json:"single_tu_command"`
	Timestamp       string `json:"timestamp"`
}

// RepoRegistry persists repository configurations as a JSON array in the
// workspace. Mutations rewrite the whole file; the registry is small.
type RepoRegistry struct {
	mu   sync.Mutex
	path string
}

// NewRepoRegistry creates a registry backed by <workspace>/repos.json.
func NewRepoRegistry(workspace string) *RepoRegistry {
	return &RepoRegistry{path: filepath.Join(workspace, "repos.json")}
}

// List returns all configured repositories. A missing file is an empty list.
func (r *RepoRegistry) List() ([]RepoConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *RepoRegistry) load() ([]RepoConfig, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RepoConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read repos.json: %w", err)
	}
	var configs []RepoConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse repos.json: %w", err)
	}
	return configs, nil
}

func (r *RepoRegistry) save(configs []RepoConfig) error {
	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0644)
}

// Add appends a repository configuration.
func (r *RepoRegistry) Add(cfg RepoConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	configs, err := r.load()
	if err != nil {
		return err
	}
	configs = append(configs, cfg)
	return r.save(configs)
}

// Remove deletes the configuration with the given id. Returns false when no
// entry matched.
func (r *RepoRegistry) Remove(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	configs, err := r.load()
	if err != nil {
		return false, err
	}
	kept := configs[:0]
	removed := false
	for _, c := range configs {
		if c.ID == id {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		return false, nil
	}
	return true, r.save(kept)
}

// FindByURL returns the configuration for a repository URL, if present.
func (r *RepoRegistry) FindByURL(url string) (*RepoConfig, error) {
	configs, err := r.List()
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].URL == url {
			return &configs[i], nil
		}
	}
	return nil, nil
}
