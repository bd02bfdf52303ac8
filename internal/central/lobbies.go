// Package central implements the directory server: accounts, the game
// store, uploads and the supervision of per-game lobby processes.
package central

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gamehub/internal/netutil"
	"gamehub/internal/proc"
	"gamehub/pkg/logger"
)

// LobbyProcess is the supervised lobby subprocess as the table sees it.
type LobbyProcess interface {
	OnExit(fn func())
	Stop(timeout time.Duration) error
	Running() bool
}

// Spawner starts lobby processes. Tests inject a fake.
type Spawner interface {
	Spawn(name string, args ...string) (LobbyProcess, error)
}

// ExecSpawner launches real subprocesses through the supervisor.
type ExecSpawner struct{}

// Spawn starts a supervised child.
func (ExecSpawner) Spawn(name string, args ...string) (LobbyProcess, error) {
	return proc.Spawn(name, args...)
}

// lobbyEntry is one running lobby in the table.
type lobbyEntry struct {
	gameName string
	host     string
	port     int
	process  LobbyProcess
}

// LobbyTable tracks at most one lobby process per game. A lobby whose
// process exits is removed from the table so the game can be relaunched.
type LobbyTable struct {
	host        string
	lobbyBase   int
	roomBase    int
	binary      string
	stopTimeout time.Duration

	allocator *netutil.Allocator
	spawner   Spawner
	logger    logger.Logger

	mu      sync.Mutex
	lobbies map[string]*lobbyEntry
}

// NewLobbyTable creates an empty lobby table. binary names the lobby
// executable; a bare name is resolved next to the running binary.
func NewLobbyTable(host string, lobbyBase, roomBase int, binary string, stopTimeout time.Duration, spawner Spawner, log logger.Logger) *LobbyTable {
	if spawner == nil {
		spawner = ExecSpawner{}
	}
	if log == nil {
		log = logger.CentralLogger
	}
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	return &LobbyTable{
		host:        host,
		lobbyBase:   lobbyBase,
		roomBase:    roomBase,
		binary:      binary,
		stopTimeout: stopTimeout,
		allocator:   netutil.NewAllocator(host),
		spawner:     spawner,
		logger:      log,
		lobbies:     make(map[string]*lobbyEntry),
	}
}

// Launch starts a lobby for a game, or returns the endpoint of the one
// already running. Launching is idempotent per game.
func (t *LobbyTable) Launch(gameName, version, extractedDir string) (string, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.lobbies[gameName]; ok {
		return entry.host, entry.port, nil
	}

	port, err := t.allocator.Allocate(t.lobbyBase)
	if err != nil {
		return "", 0, fmt.Errorf("no free lobby port: %w", err)
	}

	binary, err := t.resolveBinary()
	if err != nil {
		t.allocator.Release(port)
		return "", 0, err
	}

	args := []string{
		"--host", t.host,
		"--port", strconv.Itoa(port),
		"--room-port-start", strconv.Itoa(t.roomBase),
		"--game-name", gameName,
		"--version", version,
	}
	if extractedDir != "" {
		args = append(args, "--game-dir", extractedDir)
	}

	child, err := t.spawner.Spawn(binary, args...)
	if err != nil {
		t.allocator.Release(port)
		return "", 0, fmt.Errorf("failed to start lobby: %w", err)
	}

	entry := &lobbyEntry{gameName: gameName, host: t.host, port: port, process: child}
	t.lobbies[gameName] = entry

	// Compare before removing: a stop followed by a relaunch may have
	// replaced the slot before the old process is reaped.
	child.OnExit(func() {
		t.mu.Lock()
		if current, ok := t.lobbies[gameName]; ok && current == entry {
			delete(t.lobbies, gameName)
			t.allocator.Release(port)
			t.logger.Info("Lobby for %s exited, slot released", gameName)
		}
		t.mu.Unlock()
	})

	t.logger.Info("Lobby for %s started on %s:%d", gameName, t.host, port)
	return t.host, port, nil
}

// resolveBinary locates the lobby executable.
func (t *LobbyTable) resolveBinary() (string, error) {
	if filepath.IsAbs(t.binary) || filepath.Base(t.binary) != t.binary {
		return t.binary, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("cannot locate lobby binary: %w", err)
	}
	return filepath.Join(filepath.Dir(self), t.binary), nil
}

// Stop terminates a game's lobby. Reports whether one was running. The
// lobby's rooms keep running; only the lobby control channel goes away.
func (t *LobbyTable) Stop(gameName string) bool {
	t.mu.Lock()
	entry, ok := t.lobbies[gameName]
	if ok {
		delete(t.lobbies, gameName)
		t.allocator.Release(entry.port)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	if err := entry.process.Stop(t.stopTimeout); err != nil {
		t.logger.Warn("Failed to stop lobby for %s: %v", gameName, err)
	}
	return true
}

// Endpoint returns the running lobby endpoint for a game, if any.
func (t *LobbyTable) Endpoint(gameName string) (string, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.lobbies[gameName]; ok {
		return entry.host, entry.port, true
	}
	return "", 0, false
}

// Running lists the games with a live lobby.
func (t *LobbyTable) Running() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	games := make([]string, 0, len(t.lobbies))
	for name := range t.lobbies {
		games = append(games, name)
	}
	return games
}

// StopAll terminates every lobby. Called on central shutdown.
func (t *LobbyTable) StopAll() {
	t.mu.Lock()
	entries := make([]*lobbyEntry, 0, len(t.lobbies))
	for _, e := range t.lobbies {
		entries = append(entries, e)
	}
	t.lobbies = make(map[string]*lobbyEntry)
	t.mu.Unlock()

	for _, e := range entries {
		t.allocator.Release(e.port)
		e.process.Stop(t.stopTimeout)
	}
}
