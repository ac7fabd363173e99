// Package shell spawns child processes whose output is captured per call and
// which can be cancelled as a whole process group.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultGrace is how long Cancel waits after asking a process to stop before
// killing it.
const DefaultGrace = 2 * time.Second

// Command describes a child process. Stdout and Stderr, when set, receive a
// copy of the output in addition to the captured Result.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string // appended to the current environment
	Stdout io.Writer
	Stderr io.Writer
	Grace  time.Duration
}

// Sh returns a command running line through /bin/sh.
func Sh(line string) Command {
	return Command{Name: "sh", Args: []string{"-c", line}}
}

// Result of a finished process. ExitCode is -1 when it was killed by a signal.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Process is a started child process.
type Process struct {
	cmd    *exec.Cmd
	grace  time.Duration
	start  time.Time
	stdout *syncBuffer
	stderr *syncBuffer

	done       chan struct{}
	cancelOnce sync.Once
	cancelErr  error
	result     Result
	err        error

	terminate func(*exec.Cmd) error
	kill      func(*exec.Cmd) error
}

// Start launches c. Cancelling ctx cancels the process.
func Start(ctx context.Context, c Command) (*Process, error) {
	if c.Name == "" {
		return nil, errors.New("shell: empty command")
	}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	setProcessGroup(cmd)

	p := &Process{
		cmd:    cmd,
		grace:  c.Grace,
		stdout: &syncBuffer{},
		stderr: &syncBuffer{},
		done:   make(chan struct{}),

		terminate: terminate,
		kill:      kill,
	}
	if p.grace <= 0 {
		p.grace = DefaultGrace
	}
	cmd.Stdout = tee(p.stdout, c.Stdout)
	cmd.Stderr = tee(p.stderr, c.Stderr)
	// Grandchildren that inherited the pipes must not hold Wait open forever.
	cmd.WaitDelay = p.grace

	p.start = time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	go p.wait()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Cancel()
		case <-p.done:
		}
	}()
	return p, nil
}

// Run starts c and waits for it. When ctx ends first the process is cancelled
// and ctx.Err() is returned with whatever output was produced.
func Run(ctx context.Context, c Command) (Result, error) {
	p, err := Start(ctx, c)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	result, err := p.Wait()
	if err != nil {
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits. A non-zero exit is not an error.
func (p *Process) Wait() (Result, error) {
	<-p.done
	return p.result, p.err
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Cancel asks the process group to terminate, kills it if it is still alive
// after the grace period, and returns once the process has exited. If no
// signal can be delivered the error is returned without waiting.
func (p *Process) Cancel() error {
	p.cancelOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if err := p.terminate(p.cmd); err == nil {
			select {
			case <-p.done:
				return
			case <-time.After(p.grace):
			}
		}
		if err := p.kill(p.cmd); err != nil {
			p.cancelErr = fmt.Errorf("cancel pid %d: %w", p.cmd.Process.Pid, err)
		}
	})
	if p.cancelErr != nil {
		return p.cancelErr
	}
	<-p.done
	return nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.result = Result{
		ExitCode: 0,
		Stdout:   p.stdout.String(),
		Stderr:   p.stderr.String(),
		Duration: time.Since(p.start),
	}
	if errors.Is(err, exec.ErrWaitDelay) && p.cmd.ProcessState != nil {
		p.result.ExitCode = p.cmd.ProcessState.ExitCode()
		err = nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.result.ExitCode = exitErr.ExitCode()
		} else {
			p.result.ExitCode = -1
			p.err = fmt.Errorf("wait: %w", err)
		}
	}
	close(p.done)
}

func tee(capture io.Writer, extra io.Writer) io.Writer {
	if extra == nil {
		return capture
	}
	return io.MultiWriter(capture, extra)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
