package api

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"
)

// =============================================================================
// TRAINING SCENARIO TYPES
// =============================================================================

// Scenario is a training scenario with its dataset splits.
type Scenario struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Splits    []Split   `json:"splits"`
	CreatedAt time.Time `json:"created_at"`
}

// Split is one generated dataset split (train/validation/test).
type Split struct {
	Name       string   `json:"name"`
	Ratio      float64  `json:"ratio"`
	BuildCount int      `json:"build_count"`
	Formats    []string `json:"formats"`
}

// Split file formats offered for download.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// ScenarioBuild is one ingested build of a scenario.
type ScenarioBuild struct {
	ID        string    `json:"id"`
	RepoName  string    `json:"repo_name"`
	CommitSHA string    `json:"commit_sha"`
	Outcome   string    `json:"outcome"`
	Duration  float64   `json:"duration_seconds"`
	CreatedAt time.Time `json:"created_at"`
}

// Security scan tools.
const (
	ScanToolSonarQube = "sonarqube"
	ScanToolTrivy     = "trivy"
)

// Scan is a commit security scan (SonarQube or Trivy).
type Scan struct {
	ID          string     `json:"id"`
	CommitSHA   string     `json:"commit_sha"`
	Tool        string     `json:"tool"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	IssuesFound int        `json:"issues_found"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ScanProgress is the polled snapshot of an individual scan.
type ScanProgress struct {
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	Error    *string `json:"error,omitempty"`
}

// =============================================================================
// TRAINING SCENARIO OPERATIONS
// =============================================================================

// GetScenario retrieves a scenario with its splits.
func (c *Client) GetScenario(ctx context.Context, id string) (*Scenario, error) {
	var result struct {
		Scenario Scenario `json:"scenario"`
	}
	if err := c.get(ctx, "/scenarios/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result.Scenario, nil
}

// GenerateSplits triggers dataset split generation for a scenario.
func (c *Client) GenerateSplits(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/scenarios/%s/splits", url.PathEscape(id)), nil, nil)
}

// ScenarioStatus fetches the scenario's split-generation snapshot.
func (c *Client) ScenarioStatus(ctx context.Context, id string) (*ScanProgress, error) {
	var result ScanProgress
	if err := c.get(ctx, fmt.Sprintf("/scenarios/%s/status", url.PathEscape(id)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadSplit streams a split file in the given format to w and returns the
// number of bytes written.
func (c *Client) DownloadSplit(ctx context.Context, id, split, format string, w io.Writer) (int64, error) {
	q := url.Values{}
	q.Set("format", format)
	path := fmt.Sprintf("/scenarios/%s/splits/%s/download", url.PathEscape(id), url.PathEscape(split))
	return c.download(ctx, path, q, w)
}

// ListScenarioBuilds returns ingested builds for a scenario.
func (c *Client) ListScenarioBuilds(ctx context.Context, id string, opts PageOptions) ([]ScenarioBuild, *Pagination, error) {
	var result struct {
		Builds     []ScenarioBuild `json:"builds"`
		Pagination Pagination      `json:"pagination"`
	}
	if err := c.get(ctx, fmt.Sprintf("/scenarios/%s/builds", url.PathEscape(id)), opts.query(), &result); err != nil {
		return nil, nil, err
	}
	return result.Builds, &result.Pagination, nil
}

// ListScansOptions configures scan listing.
type ListScansOptions struct {
	Tool *string
	PageOptions
}

// ListScans returns commit security scans for a scenario, optionally filtered
// by tool.
func (c *Client) ListScans(ctx context.Context, id string, opts ListScansOptions) ([]Scan, *Pagination, error) {
	q := opts.query()
	if opts.Tool != nil {
		q.Set("tool", *opts.Tool)
	}

	var result struct {
		Scans      []Scan     `json:"scans"`
		Pagination Pagination `json:"pagination"`
	}
	if err := c.get(ctx, fmt.Sprintf("/scenarios/%s/scans", url.PathEscape(id)), q, &result); err != nil {
		return nil, nil, err
	}
	return result.Scans, &result.Pagination, nil
}

// RetryScan re-runs a failed commit scan.
func (c *Client) RetryScan(ctx context.Context, scanID string) error {
	return c.post(ctx, fmt.Sprintf("/scans/%s/retry", url.PathEscape(scanID)), nil, nil)
}

// GetScanProgress fetches the polled snapshot of one scan.
func (c *Client) GetScanProgress(ctx context.Context, scanID string) (*ScanProgress, error) {
	var result ScanProgress
	if err := c.get(ctx, fmt.Sprintf("/scans/%s/progress", url.PathEscape(scanID)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
