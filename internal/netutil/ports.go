// Package netutil provides the free-port allocator shared by the central
// server and the lobbies.
package netutil

import (
	"fmt"
	"net"
	"sync"
)

// Allocator hands out free TCP ports on a fixed host. Every port it has
// handed out in this process stays reserved until released, so two
// concurrent allocations can never return the same number.
type Allocator struct {
	host  string
	mu    sync.Mutex
	taken map[int]bool
}

// NewAllocator creates an allocator binding its probes to host.
func NewAllocator(host string) *Allocator {
	return &Allocator{
		host:  host,
		taken: make(map[int]bool),
	}
}

// Allocate returns the smallest port >= base that is not already handed out
// and can currently be bound. The probe listener is closed before the port
// number is returned.
func (a *Allocator) Allocate(base int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := base; port <= 65535; port++ {
		if a.taken[port] {
			continue
		}
		if !a.bindable(port) {
			continue
		}
		a.taken[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("no free port at or above %d on %s", base, a.host)
}

// Release returns a port to the pool, typically after its child process
// exited.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.taken, port)
}

// bindable probes the port with a transient listener.
func (a *Allocator) bindable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.host, port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
