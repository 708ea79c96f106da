package api

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"
)

// =============================================================================
// BUILD SOURCE TYPES
// =============================================================================

// Wizard setup steps persisted on a build source. The server owns these
// fields; other writers may advance them concurrently.
const (
	SetupStepUpload    = 1
	SetupStepConfigure = 2
	SetupStepValidate  = 3
)

// BuildSource is an uploaded CSV build source and its setup progress.
type BuildSource struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Status       string             `json:"status"`
	SetupStep    int                `json:"setup_step"`
	Columns      []string           `json:"columns"`
	MappedFields map[string]*string `json:"mapped_fields"`
	TotalRows    int                `json:"total_rows"`
	CreatedAt    time.Time          `json:"created_at"`
}

// CI providers accepted in repo configs.
const (
	CIProviderGitHubActions = "github_actions"
	CIProviderCircleCI      = "circleci"
	CIProviderJenkins       = "jenkins"
	CIProviderTravis        = "travis"
)

// RepoConfig holds per-repository extraction settings for a build source.
// FeatureIDs are backend feature identifiers, never human names.
type RepoConfig struct {
	TestFrameworks  []string `json:"test_frameworks"`
	SourceLanguages []string `json:"source_languages"`
	CIProvider      string   `json:"ci_provider"`
	FeatureIDs      []string `json:"feature_ids"`
	MaxBuilds       *int     `json:"max_builds,omitempty"`
	IngestStartDate *string  `json:"ingest_start_date,omitempty"`
	IngestEndDate   *string  `json:"ingest_end_date,omitempty"`
}

// ValidationStats is a polled snapshot of a validation job. Each poll
// overwrites the previous snapshot; no history is kept client-side.
type ValidationStats struct {
	Status        string  `json:"status"`
	Progress      int     `json:"progress"`
	TotalRepos    int     `json:"total_repos"`
	ValidRepos    int     `json:"valid_repos"`
	InvalidRepos  int     `json:"invalid_repos"`
	SkippedBuilds int     `json:"skipped_builds"`
	Error         *string `json:"error,omitempty"`
}

// RepoBuildStats summarizes build ingestion for one repo of a build source.
type RepoBuildStats struct {
	RepoFullName string `json:"repo_full_name"`
	TotalBuilds  int    `json:"total_builds"`
	ValidBuilds  int    `json:"valid_builds"`
	FailedBuilds int    `json:"failed_builds"`
	Status       string `json:"status"`
}

// =============================================================================
// BUILD SOURCE OPERATIONS
// =============================================================================

// UploadBuildSource uploads a CSV file and creates a build source.
// The backend parses the header row and returns the detected columns.
func (c *Client) UploadBuildSource(ctx context.Context, name, fileName string, file io.Reader) (*BuildSource, error) {
	fields := map[string]string{"name": name}

	var result struct {
		BuildSource BuildSource `json:"build_source"`
	}
	if err := c.upload(ctx, "/build-sources", "file", fileName, file, fields, &result); err != nil {
		return nil, err
	}
	return &result.BuildSource, nil
}

// GetBuildSource retrieves a build source by id.
func (c *Client) GetBuildSource(ctx context.Context, id string) (*BuildSource, error) {
	var result struct {
		BuildSource BuildSource `json:"build_source"`
	}
	if err := c.get(ctx, "/build-sources/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result.BuildSource, nil
}

// DeleteBuildSource removes a build source and its uploaded data.
func (c *Client) DeleteBuildSource(ctx context.Context, id string) error {
	return c.delete(ctx, "/build-sources/"+url.PathEscape(id))
}

// UpdateColumnMapping persists the CSV column mapping. Fields map backend
// field name to CSV column; unmapped optional fields are sent as explicit
// nulls so the server clears stale mappings.
func (c *Client) UpdateColumnMapping(ctx context.Context, id string, mappedFields map[string]*string) (*BuildSource, error) {
	body := map[string]any{"mapped_fields": mappedFields}

	var result struct {
		BuildSource BuildSource `json:"build_source"`
	}
	if err := c.patch(ctx, fmt.Sprintf("/build-sources/%s/mapping", url.PathEscape(id)), body, &result); err != nil {
		return nil, err
	}
	return &result.BuildSource, nil
}

// UpdateRepoConfigs replaces the per-repo extraction configs, keyed by repo
// full name.
func (c *Client) UpdateRepoConfigs(ctx context.Context, id string, configs map[string]RepoConfig) (*BuildSource, error) {
	body := map[string]any{"repo_configs": configs}

	var result struct {
		BuildSource BuildSource `json:"build_source"`
	}
	if err := c.patch(ctx, fmt.Sprintf("/build-sources/%s/repo-configs", url.PathEscape(id)), body, &result); err != nil {
		return nil, err
	}
	return &result.BuildSource, nil
}

// ValidationStatus fetches the current validation snapshot.
func (c *Client) ValidationStatus(ctx context.Context, id string) (*ValidationStats, error) {
	var result ValidationStats
	if err := c.get(ctx, fmt.Sprintf("/build-sources/%s/validation", url.PathEscape(id)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartValidation kicks off the backend validation job.
func (c *Client) StartValidation(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/build-sources/%s/validation/start", url.PathEscape(id)), nil, nil)
}

// CancelValidation requests cancellation. Best effort: the backend job may
// still run to completion.
func (c *Client) CancelValidation(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/build-sources/%s/validation/cancel", url.PathEscape(id)), nil, nil)
}

// RetryValidation restarts a failed validation job.
func (c *Client) RetryValidation(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/build-sources/%s/validation/retry", url.PathEscape(id)), nil, nil)
}

// ListRepoBuildStats returns per-repo ingestion stats for a build source.
func (c *Client) ListRepoBuildStats(ctx context.Context, id string, opts PageOptions) ([]RepoBuildStats, *Pagination, error) {
	var result struct {
		Stats      []RepoBuildStats `json:"stats"`
		Pagination Pagination       `json:"pagination"`
	}
	if err := c.get(ctx, fmt.Sprintf("/build-sources/%s/repo-stats", url.PathEscape(id)), opts.query(), &result); err != nil {
		return nil, nil, err
	}
	return result.Stats, &result.Pagination, nil
}
