// Package jobs orchestrates crack jobs: it provisions the wordlist, runs
// jwt_tool, relays and inspects every output line, and kills the tool as soon
// as the secret is found.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/detector"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/metrics"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/output"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/process"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/relay"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/token"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/wordlist"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// readChunkSize is the maximum raw chunk read from jwt_tool at once
const readChunkSize = 4096

// Metrics receives job lifecycle events
type Metrics interface {
	JobStarted()
	JobFinished(outcome string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) JobStarted() {}
func (nopMetrics) JobFinished(string, time.Duration) {}

// ToolConfig describes how jwt_tool is invoked
type ToolConfig struct {
	// Binary is the interpreter or the tool itself
	Binary string
	// Prefix holds arguments before the jwt_tool flags (the script path)
	Prefix []string
	// Dir is the working directory; empty inherits the worker's
	Dir string
	// NoiseLines are suppressed in addition to output.DefaultNoise
	NoiseLines []string
}

// Manager runs crack jobs. Jobs run concurrently and share nothing but the
// registry and metrics.
type Manager struct {
	tool        ToolConfig
	provisioner *wordlist.Provisioner
	relay       relay.Relay
	detector    *detector.Detector
	metrics     Metrics
	registry    *Registry
}

// NewManager creates a job manager. A nil relay disables relaying; nil
// metrics disables recording.
func NewManager(tool ToolConfig, provisioner *wordlist.Provisioner, rel relay.Relay, det *detector.Detector, m Metrics) *Manager {
	if rel == nil {
		rel = relay.Nop{}
	}
	if det == nil {
		det = detector.New()
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Manager{
		tool:        tool,
		provisioner: provisioner,
		relay:       rel,
		detector:    det,
		metrics:     m,
		registry:    NewRegistry(),
	}
}

// Registry returns the in-flight job registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Run executes one crack job and blocks until it finalizes. The job is not
// bounded in time; callers that need a bound pass a context with a deadline,
// in which case jwt_tool is killed and the context error returned.
func (m *Manager) Run(ctx context.Context, req CrackRequest) (*CrackResult, error) {
	job := newJob(uuid.New().String(), req)

	// advisory only: jwt_tool is the judge of what it can attack
	info, err := token.Inspect(req.Token)
	switch {
	case err != nil:
		debug.Warning("Job %s: token %s does not parse as a JWT (%v), running jwt_tool anyway", job.ID, debug.Mask(job.Token), err)
	case !info.HMAC():
		debug.Warning("Job %s: token alg %q is not HMAC, a dictionary attack is unlikely to succeed", job.ID, info.Alg)
	}
	debug.Info("Job %s: starting (token %s)", job.ID, debug.Mask(job.Token))

	m.registry.add(job)
	defer m.registry.remove(job.ID)

	m.metrics.JobStarted()
	result, err := m.execute(ctx, job)
	m.metrics.JobFinished(outcomeOf(result, err), time.Since(job.StartedAt))

	if err != nil {
		debug.Error("Job %s: failed after %v: %v", job.ID, time.Since(job.StartedAt), err)
		return nil, err
	}
	debug.Info("Job %s: completed in %v (found: %v)", job.ID, time.Since(job.StartedAt), result.Found())
	return result, nil
}

// execute walks the job through provisioning, running, cancelling and
// finalizing. The wordlist is released on every return path.
func (m *Manager) execute(ctx context.Context, job *Job) (*CrackResult, error) {
	job.TransitionTo(JobStateProvisioning)
	wl, err := m.provisioner.Provision(job.Wordlist)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	defer func() {
		if err := wl.Release(); err != nil {
			debug.Error("Job %s: %v", job.ID, err)
		}
	}()
	job.setSource(wl.Source)

	m.relay.Send(ctx, wl.Describe())

	job.TransitionTo(JobStateRunning)
	proc, err := process.Start(process.Spec{
		Binary:   m.tool.Binary,
		Prefix:   m.tool.Prefix,
		Wordlist: wl.Path,
		Token:    job.Token,
		Dir:      m.tool.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessSpawn, err)
	}

	// a superseding deadline kills the tool, which unblocks the read loop
	stop := context.AfterFunc(ctx, proc.Terminate)
	secret, streamErr := m.stream(ctx, job, proc)
	stop()

	// always reap, whether the stream ended or the tool was killed
	waitErr := proc.Wait()
	job.setTerminated(proc.WasTerminated())

	if ctxErr := ctx.Err(); ctxErr != nil && secret == "" {
		return nil, fmt.Errorf("job %s aborted: %w", job.ID, ctxErr)
	}
	if streamErr != nil {
		debug.Warning("Job %s: output stream ended with error: %v", job.ID, streamErr)
	}
	if waitErr != nil && !proc.WasTerminated() {
		debug.Debug("Job %s: jwt_tool exited with %v", job.ID, waitErr)
	}

	job.TransitionTo(JobStateFinalizing)
	result := m.finalize(job, secret)
	if err := wl.Release(); err != nil {
		debug.Error("Job %s: %v", job.ID, err)
	}
	job.TransitionTo(JobStateDone)
	return result, nil
}

// stream reads jwt_tool output until the detector finds the secret or the
// output ends. On detection the tool is terminated and nothing more is read.
func (m *Manager) stream(ctx context.Context, job *Job, proc *process.Process) (string, error) {
	norm := output.NewNormalizer(m.tool.NoiseLines...)
	state := detector.StateSearching
	buf := make([]byte, readChunkSize)

	for {
		n, readErr := proc.Read(buf)

		var lines []output.Line
		if n > 0 {
			lines = norm.Feed(buf[:n])
		}
		if readErr != nil {
			lines = append(lines, norm.Flush()...)
		}

		for _, line := range lines {
			if !line.Forwardable() {
				continue
			}

			m.relay.Send(ctx, line.Text)
			job.lineRelayed()

			var secret string
			prev := state
			state, secret = m.detector.Next(state, line.Text)
			if state != prev {
				job.setDetection(state)
				debug.Debug("Job %s: detection %s -> %s", job.ID, prev, state)
			}
			if state == detector.StateFound {
				job.TransitionTo(JobStateCancelling)
				debug.Info("Job %s: secret found, terminating jwt_tool (pid %d)", job.ID, proc.Pid())
				proc.Terminate()
				return secret, nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return "", nil
			}
			return "", readErr
		}
	}
}

func (m *Manager) finalize(job *Job, secret string) *CrackResult {
	result := &CrackResult{Status: StatusCompleted}
	if secret == "" {
		return result
	}

	sum := sha256.Sum256([]byte(secret))
	verified := token.Verify(job.Token, secret)
	if !verified {
		debug.Warning("Job %s: reported secret does not reproduce the token signature", job.ID)
	}

	result.Secret = secret
	result.Hash = hex.EncodeToString(sum[:])
	result.Message = fmt.Sprintf("Secret found: %s", secret)
	result.Verified = &verified
	return result
}

func outcomeOf(result *CrackResult, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case result.Found():
		return metrics.OutcomeFound
	default:
		return metrics.OutcomeNotFound
	}
}
