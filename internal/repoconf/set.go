// Package repoconf manages per-repository extraction configuration for a
// build source: the selection set, apply-to-all defaults, and staged per-repo
// edits.
package repoconf

import (
	"fmt"
	"sort"

	"github.com/buildguard/buildguard-cli/internal/api"
)

// Field names a list-valued config field that apply-to-all can overwrite.
type Field int

const (
	FieldTestFrameworks Field = iota
	FieldSourceLanguages
	FieldFeatureIDs
)

// Set holds repo configs keyed by repo full name. A config is created when a
// repo is selected and deleted when it is deselected.
type Set struct {
	configs map[string]*api.RepoConfig
}

// NewSet creates an empty config set.
func NewSet() *Set {
	return &Set{configs: make(map[string]*api.RepoConfig)}
}

// Selected reports whether a repo is in the set.
func (s *Set) Selected(repo string) bool {
	_, ok := s.configs[repo]
	return ok
}

// Toggle selects or deselects a repo. Selecting creates a fresh default
// config; deselecting discards the repo's config entirely.
func (s *Set) Toggle(repo string) {
	if s.Selected(repo) {
		delete(s.configs, repo)
		return
	}
	s.configs[repo] = &api.RepoConfig{
		CIProvider: api.CIProviderGitHubActions,
	}
}

// Get returns a copy of one repo's config.
func (s *Set) Get(repo string) (api.RepoConfig, bool) {
	cfg, ok := s.configs[repo]
	if !ok {
		return api.RepoConfig{}, false
	}
	return cloneConfig(*cfg), true
}

// Repos returns the selected repo names in sorted order.
func (s *Set) Repos() []string {
	repos := make([]string, 0, len(s.configs))
	for r := range s.configs {
		repos = append(repos, r)
	}
	sort.Strings(repos)
	return repos
}

// Len returns the number of selected repos.
func (s *Set) Len() int {
	return len(s.configs)
}

// ApplyToAll writes a snapshot of values into every repo's config,
// overwriting that field in each. Each repo gets its own copy so later
// per-repo edits don't alias.
func (s *Set) ApplyToAll(field Field, values []string) {
	for _, cfg := range s.configs {
		snapshot := append([]string(nil), values...)
		switch field {
		case FieldTestFrameworks:
			cfg.TestFrameworks = snapshot
		case FieldSourceLanguages:
			cfg.SourceLanguages = snapshot
		case FieldFeatureIDs:
			cfg.FeatureIDs = snapshot
		}
	}
}

// Export returns the configs keyed by repo for the repo-configs update call.
func (s *Set) Export() map[string]api.RepoConfig {
	out := make(map[string]api.RepoConfig, len(s.configs))
	for repo, cfg := range s.configs {
		out[repo] = cloneConfig(*cfg)
	}
	return out
}

// Languages returns the union of source languages across all selected repos,
// sorted. Used to filter framework options in the apply-to-all view.
func (s *Set) Languages() []string {
	seen := make(map[string]struct{})
	for _, cfg := range s.configs {
		for _, l := range cfg.SourceLanguages {
			seen[l] = struct{}{}
		}
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Draft is a working copy of one repo's config. Mutations stay in the draft
// until Save commits them back to the set; abandoning the draft discards
// them without touching shared state.
type Draft struct {
	set  *Set
	repo string

	// Config is the staged working copy, freely mutable.
	Config api.RepoConfig
}

// Edit stages a draft for one selected repo.
func (s *Set) Edit(repo string) (*Draft, error) {
	cfg, ok := s.configs[repo]
	if !ok {
		return nil, fmt.Errorf("repo not selected: %s", repo)
	}
	return &Draft{set: s, repo: repo, Config: cloneConfig(*cfg)}, nil
}

// Save commits the working copy into the shared set. Fails if the repo was
// deselected while the draft was open.
func (d *Draft) Save() error {
	if !d.set.Selected(d.repo) {
		return fmt.Errorf("repo no longer selected: %s", d.repo)
	}
	committed := cloneConfig(d.Config)
	d.set.configs[d.repo] = &committed
	return nil
}

func cloneConfig(cfg api.RepoConfig) api.RepoConfig {
	cfg.TestFrameworks = append([]string(nil), cfg.TestFrameworks...)
	cfg.SourceLanguages = append([]string(nil), cfg.SourceLanguages...)
	cfg.FeatureIDs = append([]string(nil), cfg.FeatureIDs...)
	if cfg.MaxBuilds != nil {
		v := *cfg.MaxBuilds
		cfg.MaxBuilds = &v
	}
	if cfg.IngestStartDate != nil {
		v := *cfg.IngestStartDate
		cfg.IngestStartDate = &v
	}
	if cfg.IngestEndDate != nil {
		v := *cfg.IngestEndDate
		cfg.IngestEndDate = &v
	}
	return cfg
}
