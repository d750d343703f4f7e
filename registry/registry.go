// Package registry tracks pulled models in a flat identifier -> record
// table persisted as JSON in the data directory.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/exp/maps"
)

// ErrModelNotFound marks lookups of identifiers the registry has no record
// for; surfaced to API callers as a 404.
var ErrModelNotFound = errors.New("model not found")

// Model is one registry record. A model is addressed by its alias when one
// was given at pull time, otherwise by its repository name.
type Model struct {
	Name         string `json:"name"`
	Repo         string `json:"repo"`
	Alias        string `json:"alias,omitempty"`
	Path         string `json:"path"`
	DownloadedAt string `json:"downloaded_at"`
}

type Registry struct {
	path   string
	models map[string]Model
}

// Load reads the registry table at path. A missing file yields an empty
// registry; pull creates it on first save.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, models: make(map[string]Model)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	} else if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &r.models); err != nil {
		return nil, fmt.Errorf("malformed registry %s: %w", path, err)
	}

	return r, nil
}

func (r *Registry) Save() error {
	data, err := json.MarshalIndent(r.models, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(r.path, data, 0o644)
}

// Add registers a model under its alias, or its name when no alias is set.
func (r *Registry) Add(m Model) {
	key := m.Alias
	if key == "" {
		key = m.Name
	}
	r.models[key] = m
}

func (r *Registry) Get(name string) (Model, error) {
	m, ok := r.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return m, nil
}

// List returns all records sorted by key.
func (r *Registry) List() []Model {
	keys := maps.Keys(r.models)
	slices.Sort(keys)

	models := make([]Model, 0, len(keys))
	for _, k := range keys {
		models = append(models, r.models[k])
	}
	return models
}
