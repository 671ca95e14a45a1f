package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/detector"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/wordlist"
)

// JobState is the lifecycle state of a crack job
type JobState int

const (
	// JobStateProvisioning resolves the wordlist
	JobStateProvisioning JobState = iota
	// JobStateRunning streams jwt_tool output through relay and detector
	JobStateRunning
	// JobStateCancelling kills jwt_tool after the secret was found
	JobStateCancelling
	// JobStateFinalizing waits for exit, builds the result and releases the wordlist
	JobStateFinalizing
	// JobStateDone means the result has been produced
	JobStateDone
)

// String returns a human-readable representation of the job state
func (s JobState) String() string {
	switch s {
	case JobStateProvisioning:
		return "provisioning"
	case JobStateRunning:
		return "running"
	case JobStateCancelling:
		return "cancelling"
	case JobStateFinalizing:
		return "finalizing"
	case JobStateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Job is one crack attempt. It is owned by the goroutine running it; the
// mutex only guards fields read by registry snapshots.
type Job struct {
	ID        string
	Token     string
	Wordlist  string
	StartedAt time.Time

	mu             sync.RWMutex
	state          JobState
	detection      detector.State
	source         wordlist.Source
	linesRelayed   int
	terminated     bool
	stateChangedAt time.Time
}

func newJob(id string, req CrackRequest) *Job {
	now := time.Now()
	j := &Job{
		ID:             id,
		Token:          req.Token,
		StartedAt:      now,
		state:          JobStateProvisioning,
		detection:      detector.StateSearching,
		stateChangedAt: now,
	}
	if req.Wordlist != nil {
		j.Wordlist = *req.Wordlist
	}
	return j
}

// TransitionTo changes the lifecycle state
func (j *Job) TransitionTo(s JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
	j.stateChangedAt = time.Now()
}

// State returns the lifecycle state
func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *Job) setDetection(s detector.State) {
	j.mu.Lock()
	j.detection = s
	j.mu.Unlock()
}

func (j *Job) setSource(s wordlist.Source) {
	j.mu.Lock()
	j.source = s
	j.mu.Unlock()
}

func (j *Job) lineRelayed() {
	j.mu.Lock()
	j.linesRelayed++
	j.mu.Unlock()
}

func (j *Job) setTerminated(t bool) {
	j.mu.Lock()
	j.terminated = t
	j.mu.Unlock()
}

// JobSnapshot is the externally visible view of a job. It never carries the
// token or the secret.
type JobSnapshot struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	Detection      string    `json:"detection"`
	WordlistSource string    `json:"wordlist_source"`
	LinesRelayed   int       `json:"lines_relayed"`
	Terminated     bool      `json:"terminated"`
	StartedAt      time.Time `json:"started_at"`
	StateChangedAt time.Time `json:"state_changed_at"`
}

// Snapshot returns a copy of the job's observable state
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		ID:             j.ID,
		State:          j.state.String(),
		Detection:      j.detection.String(),
		WordlistSource: j.source.String(),
		LinesRelayed:   j.linesRelayed,
		Terminated:     j.terminated,
		StartedAt:      j.StartedAt,
		StateChangedAt: j.stateChangedAt,
	}
}

// Registry tracks in-flight jobs for status reporting. Jobs do not share any
// other state.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

func (r *Registry) add(j *Job) {
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Active returns snapshots of in-flight jobs, oldest first
func (r *Registry) Active() []JobSnapshot {
	r.mu.RLock()
	out := make([]JobSnapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		return out[a].StartedAt.Before(out[b].StartedAt)
	})
	return out
}

// Count returns the number of in-flight jobs
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
