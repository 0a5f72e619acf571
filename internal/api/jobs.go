package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

// JobStatus is the lifecycle state of an API scan.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Finished reports whether the job reached a terminal state.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobError
}

const defaultMaxJobs = 1000

// Job tracks one scan submitted through the API.
type Job struct {
	ID             string           `json:"id"`
	Target         string           `json:"target"`
	Status         JobStatus        `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	ScanID         string           `json:"scan_id,omitempty"`
	Operator       string           `json:"operator,omitempty"`
	ConsentOutcome string           `json:"consent_outcome,omitempty"`
	CacheHit       bool             `json:"cache_hit"`
	Result         *scan.ScanResult `json:"result,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func (j *Job) clone() Job {
	out := *j
	if j.Result != nil {
		result := j.Result.Clone()
		out.Result = &result
	}
	return out
}

// JobManager keeps API scan jobs in memory and fans updates out to
// subscribers.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int
	now         func() time.Time
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     defaultMaxJobs,
		now:         time.Now,
	}
}

// SetMaxJobs configures how many jobs are retained. Unfinished jobs are
// never evicted.
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}

// CreateJob registers a pending job for target.
func (m *JobManager) CreateJob(target, operator string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:        "scan_" + uuid.NewString(),
		Target:    target,
		Operator:  operator,
		Status:    JobPending,
		CreatedAt: m.now(),
	}
	m.jobs[job.ID] = job
	m.prune()
	snapshot := job.clone()
	m.broadcast(snapshot)
	return snapshot
}

// UpdateJob applies update to the job and returns the new snapshot.
func (m *JobManager) UpdateJob(id string, update func(*Job)) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	update(job)
	snapshot := job.clone()
	m.broadcast(snapshot)
	return snapshot, true
}

// GetJob returns a copy of the job.
func (m *JobManager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// ListJobs returns up to limit jobs, newest first. Results are omitted.
func (m *JobManager) ListJobs(limit int) []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		j := *job
		j.Result = nil
		jobs = append(jobs, j)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// Subscribe returns a channel of job updates and a function that closes it.
// Updates are dropped for subscribers that fall behind.
func (m *JobManager) Subscribe() (<-chan Job, func()) {
	ch := make(chan Job, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// broadcast must be called with m.mu held.
func (m *JobManager) broadcast(job Job) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
		}
	}
}

// prune drops the oldest finished jobs once the manager holds more than
// maxJobs. Must be called with m.mu held.
func (m *JobManager) prune() {
	excess := len(m.jobs) - m.maxJobs
	if excess <= 0 {
		return
	}
	finished := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Status.Finished() {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finishTime(finished[i]).Before(finishTime(finished[j]))
	})
	for i := 0; i < excess && i < len(finished); i++ {
		delete(m.jobs, finished[i].ID)
	}
}

func finishTime(j *Job) time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return j.CreatedAt
}
