package dag

import (
	"sort"

	"github.com/buildguard/buildguard-cli/internal/api"
)

// Selection is a set of feature ids. Set semantics: toggling twice restores
// the original contents, and IDs() is order-independent of insertion.
type Selection struct {
	ids map[string]struct{}
}

// NewSelection creates a selection seeded with ids.
func NewSelection(ids ...string) *Selection {
	s := &Selection{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s *Selection) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Toggle flips membership of a feature id.
func (s *Selection) Toggle(id string) {
	if s.Has(id) {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
}

// Add inserts a feature id.
func (s *Selection) Add(id string) {
	s.ids[id] = struct{}{}
}

// Remove deletes a feature id.
func (s *Selection) Remove(id string) {
	delete(s.ids, id)
}

// ToggleName flips membership via a feature name. Unknown names (catalog not
// yet loaded, or a node label that maps to nothing) are a no-op.
func (s *Selection) ToggleName(c *Catalog, name string) {
	id, ok := c.ID(name)
	if !ok {
		return
	}
	s.Toggle(id)
}

// ApplyTemplate unions the template's feature ids into the selection.
// Applying the same template twice is idempotent.
func (s *Selection) ApplyTemplate(t api.FeatureTemplate) {
	for _, id := range t.FeatureIDs {
		s.ids[id] = struct{}{}
	}
}

// Len returns the selection size.
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []string {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Names returns display names for the selection, falling back to raw ids for
// anything the catalog can't resolve.
func (s *Selection) Names(c *Catalog) []string {
	names := make([]string, 0, len(s.ids))
	for _, id := range s.IDs() {
		names = append(names, c.Name(id))
	}
	return names
}

// ActiveNodes returns the ids of DAG nodes required by the selection: every
// node whose feature list contains a selected feature's name. Empty when the
// DAG is not loaded or the selection is empty.
func ActiveNodes(d *api.FeatureDAG, c *Catalog, s *Selection) map[string]struct{} {
	active := make(map[string]struct{})
	if d == nil || s == nil || s.Len() == 0 {
		return active
	}

	selected := make(map[string]struct{}, s.Len())
	for id := range s.ids {
		selected[c.Name(id)] = struct{}{}
	}

	for _, node := range d.Nodes {
		for _, name := range node.Features {
			if _, ok := selected[name]; ok {
				active[node.ID] = struct{}{}
				break
			}
		}
	}
	return active
}

// ExecutionPlan filters the DAG's precomputed levels down to those containing
// at least one active node, preserving ascending level order. Within a kept
// level, only the active nodes are listed.
func ExecutionPlan(d *api.FeatureDAG, active map[string]struct{}) []api.ExecutionLevel {
	if d == nil || len(active) == 0 {
		return nil
	}

	levels := make([]api.ExecutionLevel, len(d.ExecutionLevels))
	copy(levels, d.ExecutionLevels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	var plan []api.ExecutionLevel
	for _, level := range levels {
		var nodes []string
		for _, id := range level.Nodes {
			if _, ok := active[id]; ok {
				nodes = append(nodes, id)
			}
		}
		if len(nodes) > 0 {
			plan = append(plan, api.ExecutionLevel{Level: level.Level, Nodes: nodes})
		}
	}
	return plan
}
