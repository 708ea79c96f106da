package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/dag"
	"github.com/buildguard/buildguard-cli/internal/poll"
	"github.com/buildguard/buildguard-cli/internal/repoconf"
)

// Session is one wizard run. All state is in-memory and discarded on Close;
// nothing here is authoritative — Resume rebuilds the position from server
// state at any time.
type Session struct {
	backend Backend
	logger  *slog.Logger
	tracker *poll.Tracker

	mu           sync.Mutex
	pollInterval time.Duration
	step         Step
	sourceID     string
	busy         bool
	errMsg       string

	// pollGen invalidates callbacks from superseded or stopped pollers. A
	// status response still in flight during Reset/Close must never land on
	// the torn-down session.
	pollGen uint64

	// Upload step
	name    string
	columns []string
	mapping map[string]string // backend field -> CSV column

	// Configure step
	repos    *repoconf.Set
	features *dag.Selection

	// Validate step
	stats api.ValidationStats
}

// NewSession creates a wizard session at the upload step.
func NewSession(backend Backend, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		backend:      backend,
		logger:       logger,
		tracker:      poll.NewTracker(),
		pollInterval: poll.DefaultInterval,
		step:         StepUpload,
		mapping:      make(map[string]string),
		repos:        repoconf.NewSet(),
		features:     dag.NewSelection(),
	}
}

// SetPollInterval overrides the validation poll interval.
func (s *Session) SetPollInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.pollInterval = d
	}
}

// Step returns the current wizard step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// SourceID returns the created build source id, empty before upload.
func (s *Session) SourceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceID
}

// Err returns the current error message, empty when the last attempt
// succeeded. Cleared at the start of every new attempt.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Busy reports whether a create-or-update call is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Columns returns the CSV columns detected by the backend.
func (s *Session) Columns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.columns...)
}

// Mapping returns the staged column for a backend field.
func (s *Session) Mapping(field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.mapping[field]
	return col, ok
}

// Repos exposes the configure step's repo config set.
func (s *Session) Repos() *repoconf.Set {
	return s.repos
}

// Features exposes the configure step's feature selection.
func (s *Session) Features() *dag.Selection {
	return s.features
}

// Stats returns the latest validation snapshot.
func (s *Session) Stats() api.ValidationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// begin gates a transition: only one in-flight call per session. The error
// slot is cleared so a new attempt starts clean.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	s.errMsg = ""
	return nil
}

// end releases the gate; a failure lands in the error slot and the step is
// left untouched by the caller.
func (s *Session) end(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		s.errMsg = err.Error()
	}
	return err
}

// Upload sends the CSV and creates the build source. The session stays on the
// upload step so the user can map columns.
func (s *Session) Upload(ctx context.Context, name, fileName string, file io.Reader) error {
	if err := s.begin(); err != nil {
		return err
	}

	src, err := s.backend.UploadBuildSource(ctx, name, fileName, file)
	if err != nil {
		return s.end(fmt.Errorf("upload failed: %w", err))
	}

	s.mu.Lock()
	s.name = name
	s.sourceID = src.ID
	s.columns = append([]string(nil), src.Columns...)
	s.mu.Unlock()
	return s.end(nil)
}

// MapColumn stages column as the source for a backend field.
func (s *Session) MapColumn(field, column string) error {
	if !slices.Contains(mappingFields, field) {
		return fmt.Errorf("unknown field: %s", field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.columns, column) {
		return fmt.Errorf("unknown column: %s", column)
	}
	s.mapping[field] = column
	return nil
}

// UnmapColumn clears the staged column for a field.
func (s *Session) UnmapColumn(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mapping, field)
}

// CanProceedToConfigure reports whether the upload step is complete: a build
// source exists and every required field is mapped.
func (s *Session) CanProceedToConfigure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourceID == "" {
		return false
	}
	for _, f := range requiredFields {
		if s.mapping[f] == "" {
			return false
		}
	}
	return true
}

// ProceedToConfigure persists the column mapping and advances to the
// configure step. The payload always carries every mappable field, with
// explicit nulls for unmapped ones. On failure the step does not advance.
func (s *Session) ProceedToConfigure(ctx context.Context) error {
	if !s.CanProceedToConfigure() {
		return errors.New("map the build_id and repo_name columns first")
	}
	if err := s.begin(); err != nil {
		return err
	}

	s.mu.Lock()
	id := s.sourceID
	mapped := make(map[string]*string, len(mappingFields))
	for _, f := range mappingFields {
		if col, ok := s.mapping[f]; ok {
			c := col
			mapped[f] = &c
		} else {
			mapped[f] = nil
		}
	}
	s.mu.Unlock()

	if _, err := s.backend.UpdateColumnMapping(ctx, id, mapped); err != nil {
		return s.end(fmt.Errorf("save mapping failed: %w", err))
	}

	s.mu.Lock()
	s.step = StepConfigure
	s.mu.Unlock()
	return s.end(nil)
}

// CanProceedToValidate reports whether the configure step is complete.
func (s *Session) CanProceedToValidate() bool {
	return s.repos.Len() > 0
}

// ProceedToValidate persists the repo configs, starts the backend validation
// job, advances to the validate step, and begins polling. Repos configured
// without their own feature ids inherit the session-wide selection.
func (s *Session) ProceedToValidate(ctx context.Context) error {
	if !s.CanProceedToValidate() {
		return errors.New("select at least one repository first")
	}
	if err := s.begin(); err != nil {
		return err
	}

	if s.features.Len() > 0 {
		for _, repo := range s.repos.Repos() {
			cfg, _ := s.repos.Get(repo)
			if len(cfg.FeatureIDs) == 0 {
				draft, err := s.repos.Edit(repo)
				if err != nil {
					s.logger.Warn("feature inheritance skipped", "repo", repo, "error", err)
					continue
				}
				draft.Config.FeatureIDs = s.features.IDs()
				if err := draft.Save(); err != nil {
					s.logger.Warn("feature inheritance skipped", "repo", repo, "error", err)
				}
			}
		}
	}

	s.mu.Lock()
	id := s.sourceID
	s.mu.Unlock()

	if _, err := s.backend.UpdateRepoConfigs(ctx, id, s.repos.Export()); err != nil {
		return s.end(fmt.Errorf("save repo configs failed: %w", err))
	}
	if err := s.backend.StartValidation(ctx, id); err != nil {
		return s.end(fmt.Errorf("start validation failed: %w", err))
	}

	s.mu.Lock()
	s.step = StepValidate
	s.stats = api.ValidationStats{Status: api.StatusRunning}
	s.mu.Unlock()

	s.startPolling(id)
	return s.end(nil)
}

// startPolling begins the validation poll for id. The tracker stops any
// previous poller for the same id, so polls never overlap. Session state is
// only written from the poller's guarded callbacks, tagged with the current
// generation, so a response that was already in flight when the session was
// reset or the poller replaced is dropped instead of applied.
func (s *Session) startPolling(id string) {
	s.mu.Lock()
	s.pollGen++
	gen := s.pollGen
	interval := s.pollInterval
	s.mu.Unlock()

	// latest is confined to the poller's tick goroutine: written by fetch,
	// read by OnUpdate in the same tick.
	var latest api.ValidationStats
	fetch := func(ctx context.Context) (poll.Snapshot, error) {
		stats, err := s.backend.ValidationStatus(ctx, id)
		if err != nil {
			return poll.Snapshot{}, err
		}
		latest = *stats

		snap := poll.Snapshot{Status: stats.Status, Progress: stats.Progress}
		if stats.Error != nil {
			snap.Message = *stats.Error
		}
		return snap, nil
	}

	p := poll.New(fetch, poll.Config{
		Interval: interval,
		Logger:   s.logger,
		OnUpdate: func(poll.Snapshot) {
			s.mu.Lock()
			if gen == s.pollGen {
				s.stats = latest
			}
			s.mu.Unlock()
		},
		OnDone: func(snap poll.Snapshot, err error) {
			s.validationDone(gen, snap, err)
		},
	})
	s.tracker.Start(id, p)
}

func (s *Session) validationDone(gen uint64, snap poll.Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.pollGen {
		return
	}
	if err != nil {
		s.errMsg = "validation timed out"
		return
	}
	if snap.Status == api.StatusFailed {
		if snap.Message != "" {
			s.errMsg = snap.Message
		} else {
			s.errMsg = "validation failed"
		}
	}
}

// WatchValidation starts (or restarts) polling for a resumed session already
// at the validate step.
func (s *Session) WatchValidation() {
	s.mu.Lock()
	id := s.sourceID
	step := s.step
	s.mu.Unlock()
	if id == "" || step != StepValidate {
		return
	}
	s.startPolling(id)
}

// RetryValidation re-runs a failed validation: progress resets to zero and
// polling resumes.
func (s *Session) RetryValidation(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}

	s.mu.Lock()
	id := s.sourceID
	s.mu.Unlock()

	if err := s.backend.RetryValidation(ctx, id); err != nil {
		return s.end(fmt.Errorf("retry failed: %w", err))
	}

	s.mu.Lock()
	s.stats = api.ValidationStats{Status: api.StatusRunning, Progress: 0}
	s.mu.Unlock()

	s.startPolling(id)
	return s.end(nil)
}

// CancelValidation is best effort: fire the cancel call and stop local
// polling. The backend job may still run to completion.
func (s *Session) CancelValidation(ctx context.Context) {
	s.mu.Lock()
	id := s.sourceID
	s.mu.Unlock()
	if id == "" {
		return
	}

	if err := s.backend.CancelValidation(ctx, id); err != nil {
		s.logger.Warn("cancel validation request failed", "source", id, "error", err)
	}
	s.tracker.Stop(id)
	s.mu.Lock()
	s.pollGen++
	s.mu.Unlock()
}

// BackDisabledReason explains why GoBack is unavailable; empty when allowed.
func (s *Session) BackDisabledReason() string {
	s.mu.Lock()
	busy := s.busy
	step := s.step
	id := s.sourceID
	s.mu.Unlock()

	if busy {
		return "operation in progress"
	}
	if step == StepUpload {
		return "already at the first step"
	}
	if step == StepValidate && s.tracker.Active(id) {
		return "validation is running"
	}
	return ""
}

// GoBack moves one step back. Refused while a blocking job is in flight.
func (s *Session) GoBack() error {
	if reason := s.BackDisabledReason(); reason != "" {
		return errors.New(reason)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step--
	return nil
}

// Reset discards all session state and returns to the upload step. Pending
// pollers are stopped first.
func (s *Session) Reset() {
	s.tracker.StopAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollGen++
	s.step = StepUpload
	s.sourceID = ""
	s.busy = false
	s.errMsg = ""
	s.name = ""
	s.columns = nil
	s.mapping = make(map[string]string)
	s.repos = repoconf.NewSet()
	s.features = dag.NewSelection()
	s.stats = api.ValidationStats{}
}

// Resume reconstructs the wizard position from a previously created build
// source. This is a pure function of server state: the same snapshot always
// yields the same step and sub-state, and the UI never assumes it is the sole
// writer of setup_step. Polling is not started; call WatchValidation when the
// resumed step is validate.
func (s *Session) Resume(src *api.BuildSource) {
	s.tracker.StopAll()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pollGen++
	s.busy = false
	s.errMsg = ""
	s.sourceID = src.ID
	s.name = src.Name
	s.columns = append([]string(nil), src.Columns...)

	s.mapping = make(map[string]string)
	for field, col := range src.MappedFields {
		if col != nil && *col != "" {
			s.mapping[field] = *col
		}
	}

	step := Step(src.SetupStep)
	if step < StepUpload {
		step = StepUpload
	}
	if step > StepValidate {
		step = StepValidate
	}
	// An in-flight or finished validation pins the session to the last step
	// regardless of how far setup_step says the user got.
	if src.Status == api.StatusRunning || api.TerminalStatus(src.Status) {
		step = StepValidate
	}
	s.step = step
	s.stats = api.ValidationStats{Status: src.Status}
}

// Close releases the session: all polling stops and late responses are
// dropped.
func (s *Session) Close() {
	s.tracker.StopAll()
	s.mu.Lock()
	s.pollGen++
	s.mu.Unlock()
}
