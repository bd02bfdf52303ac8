package arena

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"gamehub/pkg/logger"
	"gamehub/pkg/protocol"
)

// Server runs one arena match on its own TCP listener. Unlike the turn-based
// room server it broadcasts on a fixed tick, not per message.
type Server struct {
	host       string
	port       int
	gameName   string
	roomID     string
	maxPlayers int

	world  *World
	logger *logger.ColoredLogger

	mu    sync.Mutex
	conns map[string]*protocol.Conn

	ln       net.Listener
	shutdown chan struct{}
	once     sync.Once
}

// NewServer creates an arena server for one match.
func NewServer(host string, port, maxPlayers int, gameName, roomID string) *Server {
	if maxPlayers <= 0 {
		maxPlayers = 4
	}
	return &Server{
		host:       host,
		port:       port,
		gameName:   gameName,
		roomID:     roomID,
		maxPlayers: maxPlayers,
		world:      NewWorld(),
		logger:     logger.CreateRoomLogger(roomID, logger.ColorBrightCyan),
		conns:      make(map[string]*protocol.Conn),
		shutdown:   make(chan struct{}),
	}
}

// Addr returns the bound listener address, valid after Run has started
// listening.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run listens, starts the tick loop and serves until Stop.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to bind arena listener: %w", err)
	}
	s.ln = ln
	s.logger.Info("Arena room %s for %s listening on %s", s.roomID, s.gameName, ln.Addr())

	go s.tickLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.logger.Info("Arena %s shutting down", s.roomID)
				return nil
			default:
				return fmt.Errorf("accept failed: %w", err)
			}
		}
		go s.handleConn(protocol.NewConn(conn))
	}
}

// Stop ends the match and closes the listener.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.shutdown)
		if s.ln != nil {
			s.ln.Close()
		}
	})
}

// tickLoop steps the world at the tick rate and broadcasts each frame.
func (s *Server) tickLoop() {
	interval := time.Second / TickRate
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-s.shutdown:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			s.world.Step(dt)
			s.broadcastState()
		}
	}
}

// handleConn serves one client: a join handshake, then input frames.
func (s *Server) handleConn(conn *protocol.Conn) {
	s.logger.Debug("Client connected: %s", conn.RemoteAddr())
	username := ""

	defer func() {
		conn.Close()
		if username != "" {
			s.dropPlayer(username)
		}
		s.logger.Debug("Client disconnected: %s", conn.RemoteAddr())
	}()

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidJSON) {
				continue
			}
			return
		}
		if env.Type != protocol.TypeRoom {
			continue
		}

		switch env.Action {
		case protocol.ActionJoin:
			var req protocol.RoomJoinRequest
			if err := env.DecodeData(&req); err != nil {
				continue
			}
			name := req.Username
			if name == "" {
				name = fmt.Sprintf("player_%d", s.world.PlayerCount()+1)
			}
			if s.world.PlayerCount() >= s.maxPlayers {
				conn.WriteError(protocol.TypeRoom, protocol.ActionJoin,
					protocol.CodeRoomFull, "Room full")
				return
			}
			s.world.AddPlayer(name)
			username = name
			s.track(username, conn)
			conn.WriteOK(protocol.TypeRoom, protocol.ActionJoin,
				protocol.RoomJoinResult{Username: username})

		case protocol.ActionInput:
			if username == "" {
				continue
			}
			var input protocol.ArenaInput
			if err := env.DecodeData(&input); err != nil {
				continue
			}
			s.world.SetInput(username, input)
		}
	}
}

// track registers a player's connection for broadcasts.
func (s *Server) track(username string, conn *protocol.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[username] = conn
}

// dropPlayer removes a player's tank and forgets their connection.
func (s *Server) dropPlayer(username string) {
	s.mu.Lock()
	if conn, ok := s.conns[username]; ok {
		conn.Close()
		delete(s.conns, username)
	}
	s.mu.Unlock()
	s.world.RemovePlayer(username)
}

// broadcastState sends the current frame to every seated connection.
func (s *Server) broadcastState() {
	snapshot := s.world.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Error("Failed to serialize frame: %v", err)
		return
	}
	line, err := json.Marshal(protocol.Envelope{
		Type:   protocol.TypeRoom,
		Action: protocol.ActionState,
		Data:   data,
	})
	if err != nil {
		s.logger.Error("Failed to serialize frame envelope: %v", err)
		return
	}

	s.mu.Lock()
	targets := make(map[string]*protocol.Conn, len(s.conns))
	for u, c := range s.conns {
		targets[u] = c
	}
	s.mu.Unlock()

	var dead []string
	for username, conn := range targets {
		if err := conn.WriteLine(line); err != nil {
			dead = append(dead, username)
		}
	}
	for _, username := range dead {
		s.logger.Warn("Dropping unreachable player %s", username)
		s.dropPlayer(username)
	}
}
