// Package dag holds the client-side view of the feature catalog and DAG:
// id↔name translation, feature selection, and derivation of the active nodes
// and execution plan for a selection. Execution levels are trusted as
// precomputed by the backend; no topological sorting happens here.
package dag

import "github.com/buildguard/buildguard-cli/internal/api"

// Catalog is the id↔name table derived from the feature list. Selections are
// stored as backend ids; any name-based interaction translates through the
// catalog.
type Catalog struct {
	byID     map[string]api.Feature
	idByName map[string]string
}

// NewCatalog builds the lookup tables from a fetched feature list.
func NewCatalog(features []api.Feature) *Catalog {
	c := &Catalog{
		byID:     make(map[string]api.Feature, len(features)),
		idByName: make(map[string]string, len(features)),
	}
	for _, f := range features {
		c.byID[f.ID] = f
		c.idByName[f.Name] = f.ID
	}
	return c
}

// Name resolves a feature id to its display name. Ids that don't resolve
// (catalog not yet loaded, or stale selection) render as the raw id.
func (c *Catalog) Name(id string) string {
	if c == nil {
		return id
	}
	if f, ok := c.byID[id]; ok {
		return f.Name
	}
	return id
}

// ID resolves a feature name to its backend id.
func (c *Catalog) ID(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	id, ok := c.idByName[name]
	return id, ok
}

// Known reports whether id resolves in the catalog.
func (c *Catalog) Known(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.byID[id]
	return ok
}

// Len returns the number of catalog features.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byID)
}
