package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// =============================================================================
// FEATURE CATALOG TYPES
// =============================================================================

// Feature is an independently selectable extracted attribute. Each feature
// belongs to exactly one DAG node.
type Feature struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Active      bool    `json:"active"`
	Node        string  `json:"node"`
}

// DAGNode is a named unit of feature computation.
type DAGNode struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Features []string `json:"features"`
}

// ExecutionLevel is a rank in the backend's precomputed topological ordering.
// Nodes at the same level have no dependency on each other.
type ExecutionLevel struct {
	Level int      `json:"level"`
	Nodes []string `json:"nodes"`
}

// FeatureDAG is the full DAG topology with precomputed execution levels.
type FeatureDAG struct {
	Nodes           []DAGNode        `json:"nodes"`
	ExecutionLevels []ExecutionLevel `json:"execution_levels"`
	TotalFeatures   int              `json:"total_features"`
}

// FeatureTemplate is a named preset of feature ids.
type FeatureTemplate struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	FeatureIDs []string `json:"feature_ids"`
}

// ConfigRequirements lists the config fields a feature id set needs.
type ConfigRequirements struct {
	RequiredFields []string `json:"required_fields"`
	OptionalFields []string `json:"optional_fields"`
}

// FrameworkOptions is the test-framework suggestion payload. The backend
// returns either a flat list or a record grouped by language; the shape is
// resolved here once so callers never re-discriminate.
type FrameworkOptions struct {
	Kind   OptionsKind
	Flat   []string
	Groups map[string][]string
}

// OptionsKind discriminates FrameworkOptions.
type OptionsKind int

const (
	OptionsFlat OptionsKind = iota
	OptionsGrouped
)

// UnmarshalJSON accepts either a JSON array (flat) or object (grouped).
func (o *FrameworkOptions) UnmarshalJSON(data []byte) error {
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		o.Kind = OptionsFlat
		o.Flat = flat
		o.Groups = nil
		return nil
	}

	var groups map[string][]string
	if err := json.Unmarshal(data, &groups); err != nil {
		return fmt.Errorf("framework options: expected array or object: %w", err)
	}
	o.Kind = OptionsGrouped
	o.Flat = nil
	o.Groups = groups
	return nil
}

// =============================================================================
// FEATURE CATALOG OPERATIONS
// =============================================================================

// ListFeaturesOptions configures feature listing.
type ListFeaturesOptions struct {
	ActiveOnly *bool
}

// ListFeatures returns the feature catalog.
func (c *Client) ListFeatures(ctx context.Context, opts ListFeaturesOptions) ([]Feature, error) {
	q := url.Values{}
	if opts.ActiveOnly != nil {
		q.Set("active", fmt.Sprintf("%t", *opts.ActiveOnly))
	}

	var result struct {
		Features []Feature `json:"features"`
	}
	if err := c.get(ctx, "/features", q, &result); err != nil {
		return nil, err
	}
	return result.Features, nil
}

// GetFeatureDAG fetches the DAG topology and execution levels.
func (c *Client) GetFeatureDAG(ctx context.Context) (*FeatureDAG, error) {
	var result FeatureDAG
	if err := c.get(ctx, "/features/dag", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConfigRequirements returns the config fields required by a feature set.
func (c *Client) GetConfigRequirements(ctx context.Context, featureIDs []string) (*ConfigRequirements, error) {
	body := map[string]any{"feature_ids": featureIDs}

	var result ConfigRequirements
	if err := c.post(ctx, "/features/requirements", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListLanguages returns the supported source languages.
func (c *Client) ListLanguages(ctx context.Context) ([]string, error) {
	var result struct {
		Languages []string `json:"languages"`
	}
	if err := c.get(ctx, "/languages", nil, &result); err != nil {
		return nil, err
	}
	return result.Languages, nil
}

// ListTestFrameworks returns framework suggestions, optionally per language.
// The payload shape varies (flat vs grouped by language); see FrameworkOptions.
func (c *Client) ListTestFrameworks(ctx context.Context, language *string) (*FrameworkOptions, error) {
	q := url.Values{}
	if language != nil {
		q.Set("language", *language)
	}

	var result struct {
		Frameworks FrameworkOptions `json:"frameworks"`
	}
	if err := c.get(ctx, "/test-frameworks", q, &result); err != nil {
		return nil, err
	}
	return &result.Frameworks, nil
}

// ListFeatureTemplates returns the named feature-id presets.
func (c *Client) ListFeatureTemplates(ctx context.Context) ([]FeatureTemplate, error) {
	var result struct {
		Templates []FeatureTemplate `json:"templates"`
	}
	if err := c.get(ctx, "/feature-templates", nil, &result); err != nil {
		return nil, err
	}
	return result.Templates, nil
}
