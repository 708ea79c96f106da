// Package wizard implements the build-source setup flow: upload a CSV,
// configure repositories and features, then validate and import. The session
// is transient, in-memory state owned by whoever opened the flow; the backend
// owns the build source itself and may be advanced by other writers.
package wizard

import (
	"context"
	"errors"
	"io"

	"github.com/buildguard/buildguard-cli/internal/api"
)

// Step is the wizard's current position.
type Step int

const (
	StepUpload    Step = 1
	StepConfigure Step = 2
	StepValidate  Step = 3
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepConfigure:
		return "configure"
	case StepValidate:
		return "validate"
	}
	return "unknown"
}

// Backend field names a CSV column can map to. build_id and repo_name are
// required; commit_sha is optional but always sent (null when unmapped) so
// the server clears stale mappings.
const (
	FieldBuildID   = "build_id"
	FieldRepoName  = "repo_name"
	FieldCommitSHA = "commit_sha"
)

var mappingFields = []string{FieldBuildID, FieldRepoName, FieldCommitSHA}

var requiredFields = []string{FieldBuildID, FieldRepoName}

// ErrBusy is returned when a transition is attempted while another
// create-or-update call is still in flight.
var ErrBusy = errors.New("another operation is in progress")

// Backend is the slice of the API the wizard drives. *api.Client satisfies it.
type Backend interface {
	UploadBuildSource(ctx context.Context, name, fileName string, file io.Reader) (*api.BuildSource, error)
	UpdateColumnMapping(ctx context.Context, id string, mappedFields map[string]*string) (*api.BuildSource, error)
	UpdateRepoConfigs(ctx context.Context, id string, configs map[string]api.RepoConfig) (*api.BuildSource, error)
	StartValidation(ctx context.Context, id string) error
	CancelValidation(ctx context.Context, id string) error
	RetryValidation(ctx context.Context, id string) error
	ValidationStatus(ctx context.Context, id string) (*api.ValidationStats, error)
}
