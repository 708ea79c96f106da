package api

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// =============================================================================
// REPOSITORY TYPES
// =============================================================================

// Repo is a tracked repository record.
type Repo struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"default_branch"`
	Description   *string   `json:"description,omitempty"`
	Languages     []string  `json:"languages"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RepoSuggestion is an immutable search/discovery snapshot of a provider repo.
type RepoSuggestion struct {
	FullName       string  `json:"full_name"`
	Private        bool    `json:"private"`
	InstallationID *int64  `json:"installation_id,omitempty"`
	DefaultBranch  string  `json:"default_branch"`
	Description    *string `json:"description,omitempty"`
}

// RepoSearchResult wraps repo suggestions with paging metadata.
type RepoSearchResult struct {
	Suggestions []RepoSuggestion `json:"suggestions"`
	Pagination  Pagination       `json:"pagination"`
}

// BulkImportResult aggregates a bulk repo import. Repos that imported stay
// imported even when others in the same batch fail.
type BulkImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// RepoJob is an entry in a repository's job history.
type RepoJob struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// =============================================================================
// REPOSITORY OPERATIONS
// =============================================================================

// ListRepos returns tracked repositories.
func (c *Client) ListRepos(ctx context.Context, opts PageOptions) ([]Repo, *Pagination, error) {
	var result struct {
		Repos      []Repo     `json:"repositories"`
		Pagination Pagination `json:"pagination"`
	}
	if err := c.get(ctx, "/repositories", opts.query(), &result); err != nil {
		return nil, nil, err
	}
	return result.Repos, &result.Pagination, nil
}

// GetRepo retrieves a tracked repository by id.
func (c *Client) GetRepo(ctx context.Context, id string) (*Repo, error) {
	var result struct {
		Repo Repo `json:"repository"`
	}
	if err := c.get(ctx, "/repositories/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result.Repo, nil
}

// DeleteRepo removes a tracked repository record.
func (c *Client) DeleteRepo(ctx context.Context, id string) error {
	return c.delete(ctx, "/repositories/"+url.PathEscape(id))
}

// SearchRepos searches the provider for candidate repositories.
func (c *Client) SearchRepos(ctx context.Context, query string, opts PageOptions) (*RepoSearchResult, error) {
	q := opts.query()
	q.Set("q", query)

	var result RepoSearchResult
	if err := c.get(ctx, "/repositories/search", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncRepos asks the backend to refresh its repository list from the provider.
func (c *Client) SyncRepos(ctx context.Context) error {
	return c.post(ctx, "/repositories/sync", nil, nil)
}

// DetectLanguages returns detected source languages keyed by repo full name.
func (c *Client) DetectLanguages(ctx context.Context, fullNames []string) (map[string][]string, error) {
	body := map[string]any{"repositories": fullNames}

	var result struct {
		Languages map[string][]string `json:"languages"`
	}
	if err := c.post(ctx, "/repositories/detect-languages", body, &result); err != nil {
		return nil, err
	}
	return result.Languages, nil
}

// BulkImportRepos imports a batch of repositories by full name.
func (c *Client) BulkImportRepos(ctx context.Context, fullNames []string) (*BulkImportResult, error) {
	body := map[string]any{"repositories": fullNames}

	var result BulkImportResult
	if err := c.post(ctx, "/repositories/bulk-import", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RepoJobs returns the job history for a repository.
func (c *Client) RepoJobs(ctx context.Context, id string) ([]RepoJob, error) {
	var result struct {
		Jobs []RepoJob `json:"jobs"`
	}
	if err := c.get(ctx, fmt.Sprintf("/repositories/%s/jobs", url.PathEscape(id)), nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}
