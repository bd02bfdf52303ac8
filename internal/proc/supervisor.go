// Package proc spawns and supervises the lobby and room child processes.
package proc

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Child is one supervised subprocess. The zero value is not usable; create
// children with Spawn.
type Child struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exited   bool
	exitErr  error
	watchers []func()
}

// Spawn starts a child process with the given argv. Stdout and stderr are
// inherited so child logs interleave with the parent's.
func Spawn(name string, args ...string) (*Child, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	c := &Child{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go c.reap()
	return c, nil
}

// reap waits for the child to terminate and fires the exit watchers.
func (c *Child) reap() {
	err := c.cmd.Wait()

	c.mu.Lock()
	c.exited = true
	c.exitErr = err
	watchers := c.watchers
	c.watchers = nil
	c.mu.Unlock()

	close(c.done)
	for _, fn := range watchers {
		fn()
	}
}

// OnExit registers fn to run once the child terminates. If the child has
// already exited, fn runs immediately on the calling goroutine.
func (c *Child) OnExit(fn func()) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		fn()
		return
	}
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

// Running reports whether the child is still alive.
func (c *Child) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.exited
}

// Pid returns the child's process ID.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Stop terminates the child politely, waits up to timeout, then forces a
// kill. Returns once the process has been reaped.
func (c *Child) Stop(timeout time.Duration) error {
	c.mu.Lock()
	exited := c.exited
	c.mu.Unlock()
	if exited {
		return nil
	}

	// Signal errors mean the process just exited; the wait below settles it.
	_ = c.cmd.Process.Signal(os.Interrupt)

	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
	}

	if err := c.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill pid %d: %w", c.Pid(), err)
	}
	<-c.done
	return nil
}

// Done exposes the termination channel for select loops.
func (c *Child) Done() <-chan struct{} {
	return c.done
}
