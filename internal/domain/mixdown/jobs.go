package mixdown

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Job asks for one take of one room to be rendered.
type Job struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room"`
	TakeID     int64     `json:"take"`
	Settings   Settings  `json:"settings"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// JobStatus is a job's lifecycle stage.
type JobStatus string

// Job statuses.
const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// JobState is what clients poll for.
type JobState struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room"`
	TakeID    int64     `json:"take"`
	Status    JobStatus `json:"status"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Failed    []string  `json:"failedArtifacts,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultTrackerSize bounds how many finished jobs are remembered.
const DefaultTrackerSize = 256

// Tracker records job progress for polling. Once more than its limit of
// finished jobs exist the oldest are forgotten.
type Tracker struct {
	mu    sync.RWMutex
	jobs  map[string]*JobState
	limit int
	now   func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultTrackerSize
	}
	return &Tracker{jobs: make(map[string]*JobState), limit: limit, now: time.Now}
}

// Queued registers job.
func (t *Tracker) Queued(job Job) {
	t.set(job.ID, func(s *JobState) {
		s.RoomID, s.TakeID, s.Status = job.RoomID, job.TakeID, JobQueued
	})
}

// Running marks the job as started.
func (t *Tracker) Running(id string) {
	t.set(id, func(s *JobState) { s.Status = JobRunning })
}

// Done marks the job as finished with its result URL.
func (t *Tracker) Done(id, url string) {
	t.set(id, func(s *JobState) { s.Status, s.URL = JobDone, url })
	t.prune()
}

// Failed marks the job as failed.
func (t *Tracker) Failed(id string, err error) {
	t.set(id, func(s *JobState) {
		s.Status = JobFailed
		s.Error = err.Error()
		var merr *MixdownError
		if errors.As(err, &merr) {
			s.Failed = merr.Artifacts()
		}
	})
	t.prune()
}

// Get returns a copy of the job's state.
func (t *Tracker) Get(id string) (JobState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.jobs[id]
	if !ok {
		return JobState{}, false
	}
	return *s, true
}

func (t *Tracker) set(id string, fn func(*JobState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.jobs[id]
	if !ok {
		s = &JobState{ID: id}
		t.jobs[id] = s
	}
	fn(s)
	s.UpdatedAt = t.now()
}

func (t *Tracker) prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	var finished []*JobState
	for _, s := range t.jobs {
		if s.Status == JobDone || s.Status == JobFailed {
			finished = append(finished, s)
		}
	}
	if len(finished) <= t.limit {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].UpdatedAt.Before(finished[j].UpdatedAt) })
	for _, s := range finished[:len(finished)-t.limit] {
		delete(t.jobs, s.ID)
	}
}
