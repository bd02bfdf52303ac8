// Package lobby implements the per-game lobby server: the room table and
// the control channel clients use to create, join and leave rooms.
package lobby

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gamehub/internal/netutil"
	"gamehub/internal/proc"
	"gamehub/internal/storage"
	"gamehub/pkg/logger"
	"gamehub/pkg/protocol"
)

// RoomProcess is the supervised room-server subprocess as the room table
// sees it.
type RoomProcess interface {
	OnExit(fn func())
	Stop(timeout time.Duration) error
	Running() bool
}

// Spawner starts room-server processes. Tests inject a fake; production
// uses ExecSpawner.
type Spawner interface {
	Spawn(name string, args ...string) (RoomProcess, error)
}

// ExecSpawner launches real subprocesses through the supervisor.
type ExecSpawner struct{}

// Spawn starts a supervised child.
func (ExecSpawner) Spawn(name string, args ...string) (RoomProcess, error) {
	return proc.Spawn(name, args...)
}

// Room is one entry in the lobby's room table. A room that loses its server
// process is marked closed but stays listed so clients see what happened
// to it.
type Room struct {
	ID         string
	HostUser   string
	Players    []string
	MaxPlayers int
	Status     string
	ServerHost string
	ServerPort int
	process    RoomProcess
}

// RoomTable owns every room of one game's lobby.
type RoomTable struct {
	gameName string
	version  string
	gameDir  string // extracted package tree, may be empty
	host     string

	allocator *netutil.Allocator
	spawner   Spawner
	logger    logger.Logger

	portBase    int
	stopTimeout time.Duration

	mu      sync.Mutex
	rooms   map[string]*Room
	order   []string
	counter int
}

// NewRoomTable creates an empty room table. portBase seeds the allocator
// for room-server listeners.
func NewRoomTable(gameName, version, gameDir, host string, portBase int, spawner Spawner, log logger.Logger) *RoomTable {
	if spawner == nil {
		spawner = ExecSpawner{}
	}
	if log == nil {
		log = logger.LobbyLogger
	}
	return &RoomTable{
		gameName:    gameName,
		version:     version,
		gameDir:     gameDir,
		host:        host,
		allocator:   netutil.NewAllocator(host),
		spawner:     spawner,
		logger:      log,
		portBase:    portBase,
		stopTimeout: 5 * time.Second,
		rooms:       make(map[string]*Room),
	}
}

// CreateRoom allocates a port, starts a room server and seats the creator.
// A user already seated in a waiting room cannot create another.
func (t *RoomTable) CreateRoom(username string, maxPlayers int) (*Room, *protocol.ErrorInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if room := t.findWaitingRoomOfLocked(username); room != nil {
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeAlreadyInRoom,
			Message: fmt.Sprintf("User %s is already in room %s", username, room.ID),
		}
	}
	if maxPlayers <= 0 {
		maxPlayers = 2
	}

	port, err := t.allocator.Allocate(t.portBase)
	if err != nil {
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeRoomServerFailed,
			Message: fmt.Sprintf("No free port for room server: %v", err),
		}
	}

	t.counter++
	roomID := fmt.Sprintf("R%d", t.counter)

	argv, spawnErr := t.roomServerArgv(roomID, port, maxPlayers)
	if spawnErr != nil {
		t.allocator.Release(port)
		return nil, spawnErr
	}

	child, err := t.spawner.Spawn(argv[0], argv[1:]...)
	if err != nil {
		t.allocator.Release(port)
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeRoomServerFailed,
			Message: fmt.Sprintf("Failed to start room server: %v", err),
		}
	}

	room := &Room{
		ID:         roomID,
		HostUser:   username,
		Players:    []string{username},
		MaxPlayers: maxPlayers,
		Status:     protocol.RoomWaiting,
		ServerHost: t.host,
		ServerPort: port,
		process:    child,
	}
	t.rooms[roomID] = room
	t.order = append(t.order, roomID)

	// Compare the stored room before closing: the slot may have been
	// replaced if the room was stopped and its ID somehow reused.
	child.OnExit(func() {
		t.mu.Lock()
		if current, ok := t.rooms[roomID]; ok && current == room {
			current.Status = protocol.RoomClosed
			t.allocator.Release(port)
			t.logger.Info("Room %s server exited, room closed", roomID)
		}
		t.mu.Unlock()
	})

	t.logger.Info("Room %s created by %s on %s:%d (max %d players)",
		roomID, username, t.host, port, maxPlayers)
	return room, nil
}

// roomServerArgv resolves the room-server command for this game. A package
// manifest may name an entry script; a missing manifest falls back to the
// conventional script name; a package with neither runs the built-in grid
// room server.
func (t *RoomTable) roomServerArgv(roomID string, port, maxPlayers int) ([]string, *protocol.ErrorInfo) {
	common := []string{
		"--host", t.host,
		"--port", strconv.Itoa(port),
		"--max-players", strconv.Itoa(maxPlayers),
		"--game-name", t.gameName,
		"--room-id", roomID,
	}

	if t.gameDir != "" {
		entry := storage.DefaultRoomServerEntry
		store := storage.NewPackageStore(filepath.Dir(t.gameDir))
		if cfg, err := store.ReadGameConfig(t.gameDir); err == nil && cfg.EntryRoomServer != "" {
			entry = cfg.EntryRoomServer
		}
		script := filepath.Join(t.gameDir, entry)
		if _, err := os.Stat(script); err == nil {
			if filepath.Ext(script) == ".py" {
				return append([]string{"python3", "-u", script}, common...), nil
			}
			return append([]string{script}, common...), nil
		}
	}

	// No packaged room server: run the built-in one, resolved next to the
	// lobby binary.
	self, err := os.Executable()
	if err != nil {
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeRoomServerMissing,
			Message: fmt.Sprintf("No room server entry for %s: %v", t.gameName, err),
		}
	}
	builtin := filepath.Join(filepath.Dir(self), "gamehub-gridroom")
	return append([]string{builtin}, common...), nil
}

// JoinRoom seats a player in a waiting room and returns its address.
func (t *RoomTable) JoinRoom(roomID, username string) (*Room, *protocol.ErrorInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeRoomNotFound,
			Message: fmt.Sprintf("No room %s", roomID),
		}
	}
	if other := t.findWaitingRoomOfLocked(username); other != nil && other != room {
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeAlreadyInRoom,
			Message: fmt.Sprintf("User %s is already in room %s", username, other.ID),
		}
	}
	if room.Status != protocol.RoomWaiting {
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeRoomNotJoinable,
			Message: fmt.Sprintf("Room %s is %s", roomID, room.Status),
		}
	}

	for _, p := range room.Players {
		if p == username {
			return room, nil
		}
	}
	if len(room.Players) >= room.MaxPlayers {
		return nil, &protocol.ErrorInfo{
			Code:    protocol.CodeRoomFull,
			Message: fmt.Sprintf("Room %s is full", roomID),
		}
	}
	room.Players = append(room.Players, username)
	t.logger.Info("User %s joined room %s (%d/%d)",
		username, roomID, len(room.Players), room.MaxPlayers)
	return room, nil
}

// LeaveRoom removes a player from a room. With an empty roomID the player
// is removed from whichever room seats them, waiting or not. The room
// server process is left alone; the exit watcher closes the room when it
// ends on its own.
func (t *RoomTable) LeaveRoom(roomID, username string) (string, *protocol.ErrorInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var room *Room
	if roomID != "" {
		room = t.rooms[roomID]
	} else {
		room = t.findRoomOfLocked(username)
	}
	if room == nil || !removePlayer(room, username) {
		return "", &protocol.ErrorInfo{
			Code:    protocol.CodeNotInRoom,
			Message: fmt.Sprintf("User %s is not in a room", username),
		}
	}

	t.logger.Info("User %s left room %s (%d/%d)",
		username, room.ID, len(room.Players), room.MaxPlayers)
	return room.ID, nil
}

// ListRooms snapshots the room table in creation order, closed rooms
// included.
func (t *RoomTable) ListRooms() []protocol.RoomInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms := make([]protocol.RoomInfo, 0, len(t.order))
	for _, id := range t.order {
		room := t.rooms[id]
		players := make([]string, len(room.Players))
		copy(players, room.Players)
		rooms = append(rooms, protocol.RoomInfo{
			RoomID:         room.ID,
			GameName:       t.gameName,
			Version:        t.version,
			HostUsername:   room.HostUser,
			Players:        players,
			MaxPlayers:     room.MaxPlayers,
			Status:         room.Status,
			RoomServerHost: room.ServerHost,
			RoomServerPort: room.ServerPort,
		})
	}
	return rooms
}

// StopAll stops every waiting room's server. Called on lobby shutdown.
func (t *RoomTable) StopAll() {
	t.mu.Lock()
	var stops []RoomProcess
	for _, id := range t.order {
		room := t.rooms[id]
		if room.Status == protocol.RoomWaiting && room.process != nil {
			room.Status = protocol.RoomClosed
			stops = append(stops, room.process)
		}
	}
	t.mu.Unlock()

	for _, p := range stops {
		p.Stop(t.stopTimeout)
	}
}

// findRoomOfLocked returns the room seating username regardless of status.
func (t *RoomTable) findRoomOfLocked(username string) *Room {
	for _, id := range t.order {
		room := t.rooms[id]
		for _, p := range room.Players {
			if p == username {
				return room
			}
		}
	}
	return nil
}

// findWaitingRoomOfLocked returns the waiting room seating username, if any.
func (t *RoomTable) findWaitingRoomOfLocked(username string) *Room {
	for _, id := range t.order {
		room := t.rooms[id]
		if room.Status != protocol.RoomWaiting {
			continue
		}
		for _, p := range room.Players {
			if p == username {
				return room
			}
		}
	}
	return nil
}

// removePlayer drops username from a room's player list.
func removePlayer(room *Room, username string) bool {
	for i, p := range room.Players {
		if p == username {
			room.Players = append(room.Players[:i], room.Players[i+1:]...)
			return true
		}
	}
	return false
}
