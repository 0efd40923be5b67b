package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunInfo describes one staging batch run.
type RunInfo struct {
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Processed   int        `json:"processed"`
	Successful  int        `json:"successful"`
	Quarantined int        `json:"quarantined"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
}

// RunState admits at most one active staging run and remembers the last
// finished one. The in-process check runs before the Guard, so a Guard
// only has to exclude other processes.
type RunState struct {
	guard Guard

	mu     sync.Mutex
	active *RunInfo
	last   *RunInfo
}

// NewRunState creates a RunState. A nil guard uses a LocalGuard.
func NewRunState(guard Guard) *RunState {
	if guard == nil {
		guard = NewLocalGuard()
	}
	return &RunState{guard: guard}
}

// begin claims the run slot. ok is false when another run holds it.
// The returned finish func must be called exactly once.
func (s *RunState) begin(ctx context.Context, now time.Time) (*RunInfo, func(*BatchResult, error), bool, error) {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, nil, false, nil
	}
	info := &RunInfo{RunID: uuid.New().String(), StartedAt: now}
	s.active = info
	s.mu.Unlock()

	release, ok, err := s.guard.TryAcquire(ctx)
	if err != nil || !ok {
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
		return nil, nil, false, err
	}

	finish := func(res *BatchResult, runErr error) {
		release()
		done := time.Now().UTC()
		s.mu.Lock()
		defer s.mu.Unlock()
		info.FinishedAt = &done
		if res != nil {
			info.Processed = res.Processed
			info.Successful = res.Successful
			info.Quarantined = res.Quarantined
			info.Failed = res.Failed
		}
		if runErr != nil {
			info.Error = runErr.Error()
		}
		s.active = nil
		s.last = info
	}
	return info, finish, true, nil
}

// Running reports whether a run is active in this process.
func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Active returns a copy of the active run, or nil.
func (s *RunState) Active() *RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyInfo(s.active)
}

// Last returns a copy of the most recently finished run, or nil.
func (s *RunState) Last() *RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyInfo(s.last)
}

func copyInfo(info *RunInfo) *RunInfo {
	if info == nil {
		return nil
	}
	cp := *info
	return &cp
}
