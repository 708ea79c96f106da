package wizard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildguard/buildguard-cli/internal/api"
)

// fakeBackend is a scriptable in-memory Backend.
type fakeBackend struct {
	mu sync.Mutex

	uploadErr  error
	mappingErr error
	configsErr error
	startErr   error
	retryErr   error

	lastMapping map[string]*string
	lastConfigs map[string]api.RepoConfig

	statusSeq   []api.ValidationStats // consumed in order; last entry repeats
	statusCalls int
	startCalls  int
	retryCalls  int
	cancelCalls int

	blockMapping  chan struct{} // when set, UpdateColumnMapping waits for close
	blockStatus   chan struct{} // when set, ValidationStatus waits for close
	statusEntered chan struct{} // signals a ValidationStatus call in flight
}

func (f *fakeBackend) UploadBuildSource(ctx context.Context, name, fileName string, file io.Reader) (*api.BuildSource, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &api.BuildSource{
		ID:        "bs-1",
		Name:      name,
		Status:    api.StatusPending,
		SetupStep: api.SetupStepUpload,
		Columns:   []string{"build_id", "repo"},
	}, nil
}

func (f *fakeBackend) UpdateColumnMapping(ctx context.Context, id string, mappedFields map[string]*string) (*api.BuildSource, error) {
	if f.blockMapping != nil {
		<-f.blockMapping
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mappingErr != nil {
		return nil, f.mappingErr
	}
	f.lastMapping = mappedFields
	return &api.BuildSource{ID: id, SetupStep: api.SetupStepConfigure}, nil
}

func (f *fakeBackend) UpdateRepoConfigs(ctx context.Context, id string, configs map[string]api.RepoConfig) (*api.BuildSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configsErr != nil {
		return nil, f.configsErr
	}
	f.lastConfigs = configs
	return &api.BuildSource{ID: id, SetupStep: api.SetupStepValidate}, nil
}

func (f *fakeBackend) StartValidation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeBackend) CancelValidation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return nil
}

func (f *fakeBackend) RetryValidation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryCalls++
	return f.retryErr
}

func (f *fakeBackend) ValidationStatus(ctx context.Context, id string) (*api.ValidationStats, error) {
	if f.statusEntered != nil {
		select {
		case f.statusEntered <- struct{}{}:
		default:
		}
	}
	if f.blockStatus != nil {
		<-f.blockStatus
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.statusSeq) == 0 {
		return &api.ValidationStats{Status: api.StatusRunning}, nil
	}
	stats := f.statusSeq[0]
	if len(f.statusSeq) > 1 {
		f.statusSeq = f.statusSeq[1:]
	}
	return &stats, nil
}

func (f *fakeBackend) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func newTestSession(t *testing.T, backend *fakeBackend) *Session {
	t.Helper()
	s := NewSession(backend, slog.New(slog.DiscardHandler))
	s.SetPollInterval(10 * time.Millisecond)
	t.Cleanup(s.Close)
	return s
}

func uploadAndMap(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "builds", "builds.csv", strings.NewReader("build_id,repo\n1,a/b\n")))
	require.NoError(t, s.MapColumn(FieldBuildID, "build_id"))
	require.NoError(t, s.MapColumn(FieldRepoName, "repo"))
}

func TestSession_ProceedToConfigureSendsExplicitNulls(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)

	require.NoError(t, s.ProceedToConfigure(context.Background()))
	assert.Equal(t, StepConfigure, s.Step())

	// commit_sha is unmapped and must travel as an explicit null.
	require.NotNil(t, backend.lastMapping)
	require.Contains(t, backend.lastMapping, FieldCommitSHA)
	assert.Nil(t, backend.lastMapping[FieldCommitSHA])

	require.NotNil(t, backend.lastMapping[FieldBuildID])
	assert.Equal(t, "build_id", *backend.lastMapping[FieldBuildID])
	require.NotNil(t, backend.lastMapping[FieldRepoName])
	assert.Equal(t, "repo", *backend.lastMapping[FieldRepoName])
}

func TestSession_ProceedFailureDoesNotAdvance(t *testing.T) {
	backend := &fakeBackend{mappingErr: errors.New("mapping rejected")}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)

	err := s.ProceedToConfigure(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepUpload, s.Step())
	assert.Contains(t, s.Err(), "mapping rejected")

	// The error slot clears on the next attempt.
	backend.mu.Lock()
	backend.mappingErr = nil
	backend.mu.Unlock()
	require.NoError(t, s.ProceedToConfigure(context.Background()))
	assert.Empty(t, s.Err())
	assert.Equal(t, StepConfigure, s.Step())
}

func TestSession_ProceedRequiresMapping(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	require.NoError(t, s.Upload(context.Background(), "builds", "b.csv", strings.NewReader("x\n")))

	assert.False(t, s.CanProceedToConfigure())
	require.Error(t, s.ProceedToConfigure(context.Background()))
	assert.Equal(t, StepUpload, s.Step())
}

func TestSession_SingleInFlightTransition(t *testing.T) {
	backend := &fakeBackend{blockMapping: make(chan struct{})}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.ProceedToConfigure(context.Background())
	}()

	// Wait for the first call to take the gate.
	require.Eventually(t, s.Busy, time.Second, 5*time.Millisecond)

	// A second transition while one is pending is refused.
	err := s.ProceedToConfigure(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(backend.blockMapping)
	require.NoError(t, <-firstDone)
	assert.Equal(t, StepConfigure, s.Step())
}

func proceedToValidate(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.ProceedToConfigure(ctx))
	s.Repos().Toggle("acme/api")
	require.NoError(t, s.ProceedToValidate(ctx))
}

func TestSession_ValidationFailureStopsPollingAndSurfacesError(t *testing.T) {
	boom := "boom"
	backend := &fakeBackend{
		statusSeq: []api.ValidationStats{
			{Status: api.StatusRunning, Progress: 40},
			{Status: api.StatusFailed, Progress: 40, Error: &boom},
		},
	}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	require.Eventually(t, func() bool {
		return s.Err() == "boom"
	}, 2*time.Second, 10*time.Millisecond)

	// Terminal status stopped the poll: no further status calls.
	settled := backend.statusCallCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, backend.statusCallCount())

	// Retry resets progress to zero and resumes polling.
	backend.mu.Lock()
	backend.statusSeq = []api.ValidationStats{{Status: api.StatusRunning, Progress: 10}}
	backend.mu.Unlock()

	require.NoError(t, s.RetryValidation(context.Background()))
	assert.Empty(t, s.Err())
	// Progress reset from the failed run's 40; at most the fresh run's value.
	assert.LessOrEqual(t, s.Stats().Progress, 10)

	require.Eventually(t, func() bool {
		return backend.statusCallCount() > settled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_ValidationCompletes(t *testing.T) {
	backend := &fakeBackend{
		statusSeq: []api.ValidationStats{
			{Status: api.StatusRunning, Progress: 50, TotalRepos: 2},
			{Status: api.StatusCompleted, Progress: 100, TotalRepos: 2, ValidRepos: 2},
		},
	}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	require.Eventually(t, func() bool {
		return s.Stats().Status == api.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.Err())
	assert.Equal(t, 2, s.Stats().ValidRepos)
}

func TestSession_FeatureSelectionFlowsIntoConfigs(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	require.NoError(t, s.ProceedToConfigure(context.Background()))

	s.Repos().Toggle("acme/api")
	s.Features().Add("f2")
	s.Features().Add("f1")
	require.NoError(t, s.ProceedToValidate(context.Background()))

	require.Contains(t, backend.lastConfigs, "acme/api")
	assert.Equal(t, []string{"f1", "f2"}, backend.lastConfigs["acme/api"].FeatureIDs)
}

func TestSession_CancelIsBestEffort(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	s.CancelValidation(context.Background())

	backend.mu.Lock()
	cancels := backend.cancelCalls
	backend.mu.Unlock()
	assert.Equal(t, 1, cancels)

	// Local polling stops even though the backend job may still be running.
	settled := backend.statusCallCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, backend.statusCallCount())
}

func TestSession_GoBackBlockedWhileValidating(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	err := s.GoBack()
	require.Error(t, err)
	assert.Equal(t, "validation is running", s.BackDisabledReason())
	assert.Equal(t, StepValidate, s.Step())

	s.CancelValidation(context.Background())
	require.NoError(t, s.GoBack())
	assert.Equal(t, StepConfigure, s.Step())
}

func TestSession_ResumeIsIdempotent(t *testing.T) {
	col := "build_id"
	src := &api.BuildSource{
		ID:        "bs-9",
		Name:      "legacy",
		Status:    api.StatusPending,
		SetupStep: api.SetupStepConfigure,
		Columns:   []string{"build_id", "repo"},
		MappedFields: map[string]*string{
			FieldBuildID:   &col,
			FieldCommitSHA: nil,
		},
	}

	backend := &fakeBackend{}
	s := newTestSession(t, backend)

	s.Resume(src)
	firstStep := s.Step()
	firstMapped, firstOK := s.Mapping(FieldBuildID)

	s.Resume(src)
	assert.Equal(t, firstStep, s.Step())
	mapped, ok := s.Mapping(FieldBuildID)
	assert.Equal(t, firstOK, ok)
	assert.Equal(t, firstMapped, mapped)

	// Null mappings are not staged.
	_, ok = s.Mapping(FieldCommitSHA)
	assert.False(t, ok)
}

func TestSession_ResumeStepFromServerState(t *testing.T) {
	tests := []struct {
		name string
		src  api.BuildSource
		want Step
	}{
		{
			name: "setup step 1",
			src:  api.BuildSource{ID: "a", SetupStep: 1, Status: api.StatusPending},
			want: StepUpload,
		},
		{
			name: "setup step 2",
			src:  api.BuildSource{ID: "a", SetupStep: 2, Status: api.StatusPending},
			want: StepConfigure,
		},
		{
			name: "out of range clamps",
			src:  api.BuildSource{ID: "a", SetupStep: 7, Status: api.StatusPending},
			want: StepValidate,
		},
		{
			// Another writer may have started validation already.
			name: "running validation pins to validate step",
			src:  api.BuildSource{ID: "a", SetupStep: 1, Status: api.StatusRunning},
			want: StepValidate,
		},
		{
			name: "failed validation pins to validate step",
			src:  api.BuildSource{ID: "a", SetupStep: 2, Status: api.StatusFailed},
			want: StepValidate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, &fakeBackend{})
			s.Resume(&tt.src)
			assert.Equal(t, tt.want, s.Step())
		})
	}
}

func TestSession_CloseStopsPolling(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	require.Eventually(t, func() bool {
		return backend.statusCallCount() > 0
	}, 2*time.Second, 5*time.Millisecond)

	s.Close()

	// Zero further status calls attributable to this session.
	settled := backend.statusCallCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, backend.statusCallCount())
}

func TestSession_ResetDropsInFlightStatus(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		statusSeq:     []api.ValidationStats{{Status: api.StatusRunning, Progress: 77}},
		blockStatus:   release,
		statusEntered: make(chan struct{}, 1),
	}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	select {
	case <-backend.statusEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("no status fetch started")
	}

	// Reset while the response is still in flight, then let it land.
	s.Reset()
	close(release)
	time.Sleep(60 * time.Millisecond)

	// The late response must not be applied to the torn-down session.
	assert.Equal(t, api.ValidationStats{}, s.Stats())
	assert.Empty(t, s.Err())
	assert.Equal(t, StepUpload, s.Step())
}

func TestSession_CloseDropsInFlightStatus(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		statusSeq: []api.ValidationStats{
			{Status: api.StatusFailed, Progress: 77, Error: strPtr("late failure")},
		},
		blockStatus:   release,
		statusEntered: make(chan struct{}, 1),
	}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	select {
	case <-backend.statusEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("no status fetch started")
	}

	s.Close()
	close(release)
	time.Sleep(60 * time.Millisecond)

	// Neither the snapshot nor its terminal error may leak past Close.
	assert.Equal(t, 0, s.Stats().Progress)
	assert.Equal(t, api.StatusRunning, s.Stats().Status)
	assert.Empty(t, s.Err())
}

func strPtr(s string) *string { return &s }

func TestSession_ResetReturnsToUploadStep(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	uploadAndMap(t, s)
	proceedToValidate(t, s)

	s.Reset()

	assert.Equal(t, StepUpload, s.Step())
	assert.Empty(t, s.SourceID())
	assert.Empty(t, s.Err())
	assert.Equal(t, 0, s.Repos().Len())
	assert.Equal(t, 0, s.Features().Len())

	settled := backend.statusCallCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, backend.statusCallCount())
}
