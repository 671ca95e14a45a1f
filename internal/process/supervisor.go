// Package process runs jwt_tool as a child process and exposes its combined
// output for incremental reading.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	psprocess "github.com/shirou/gopsutil/process"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// ErrSpawn is returned when the tool cannot be started
var ErrSpawn = errors.New("failed to start jwt_tool")

// Spec describes one jwt_tool invocation
type Spec struct {
	// Binary is the executable (an interpreter or jwt_tool itself)
	Binary string
	// Prefix holds arguments placed before the jwt_tool flags, e.g. the script path
	Prefix   []string
	Wordlist string
	Token    string
	Dir      string
}

// Args returns the argument list: prefix, check mode, dictionary, token
func (s Spec) Args() []string {
	args := make([]string, 0, len(s.Prefix)+4)
	args = append(args, s.Prefix...)
	return append(args, "-C", "-d", s.Wordlist, s.Token)
}

// Process is a running jwt_tool instance
type Process struct {
	cmd    *exec.Cmd
	output *os.File

	waitOnce sync.Once
	waitErr  error
	done     chan struct{}

	killOnce sync.Once
	killSent bool
	mu       sync.Mutex
}

// Start launches the tool. Stdout and stderr share a single pipe so lines
// keep the order the tool wrote them in.
func Start(spec Spec) (*Process, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	cmd := exec.Command(spec.Binary, spec.Args()...)
	cmd.Dir = spec.Dir
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	// the child holds its own copy of the write end
	w.Close()

	debug.Info("Started jwt_tool (pid %d): %s", cmd.Process.Pid, spec.Binary)
	return &Process{
		cmd:    cmd,
		output: r,
		done:   make(chan struct{}),
	}, nil
}

// Pid returns the child's process ID
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Read returns the next raw chunk of combined output. It returns io.EOF once
// the tool and every descendant holding the pipe have exited.
func (p *Process) Read(buf []byte) (int, error) {
	return p.output.Read(buf)
}

// Wait blocks until the process exits and closes the output pipe. Safe to call
// more than once; every call returns the first result.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.output.Close()
		close(p.done)
		debug.Debug("jwt_tool (pid %d) exited: %v", p.cmd.Process.Pid, p.waitErr)
	})
	return p.waitErr
}

// Exited reports whether Wait has completed
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Terminate kills the tool and its descendants, then waits for exit. Calling
// it again, or on a process that already exited, is a no-op.
func (p *Process) Terminate() {
	p.killOnce.Do(func() {
		if p.Exited() {
			return
		}

		// collect the tree first; once the child dies its children are reparented
		descendants := listDescendants(p.cmd.Process.Pid)

		if err := p.cmd.Process.Kill(); err != nil {
			if !errors.Is(err, os.ErrProcessDone) {
				debug.Warning("Failed to kill jwt_tool (pid %d): %v", p.cmd.Process.Pid, err)
			}
		} else {
			p.mu.Lock()
			p.killSent = true
			p.mu.Unlock()
		}

		for _, child := range descendants {
			if err := child.Kill(); err != nil {
				debug.Debug("Failed to kill descendant %d of jwt_tool: %v", child.Pid, err)
			}
		}
	})

	// a killed process reports a signal exit; that is expected here
	_ = p.Wait()
}

// WasTerminated reports whether the tool died from the kill sent by
// Terminate. A tool that had already exited on its own reports false even if
// it was not reaped yet when Terminate ran.
func (p *Process) WasTerminated() bool {
	p.mu.Lock()
	sent := p.killSent
	p.mu.Unlock()

	if !sent || !p.Exited() {
		return sent
	}
	return !p.cmd.ProcessState.Exited()
}

// listDescendants returns every descendant of pid, children before
// grandchildren. Interpreters may fork helpers that keep the output pipe open.
// Lookup failures yield a partial list; the direct child is killed regardless.
func listDescendants(pid int) []*psprocess.Process {
	parent, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	children, err := parent.Children()
	if err != nil {
		return nil
	}
	out := append([]*psprocess.Process(nil), children...)
	for _, child := range children {
		out = append(out, listDescendants(int(child.Pid))...)
	}
	return out
}
