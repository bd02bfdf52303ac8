package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"gamehub/pkg/logger"
	"gamehub/pkg/protocol"
)

// Server runs one match of the grid game on its own TCP listener. The
// process exits when a play-again round ends with a no vote.
type Server struct {
	host     string
	port     int
	gameName string
	roomID   string

	state  *GameState
	logger *logger.ColoredLogger

	mu    sync.Mutex
	conns map[string]*protocol.Conn // username -> connection

	ln       net.Listener
	shutdown chan struct{}
	once     sync.Once
}

// NewServer creates a room server for one match.
func NewServer(host string, port int, gameName, roomID string) *Server {
	return &Server{
		host:     host,
		port:     port,
		gameName: gameName,
		roomID:   roomID,
		state:    NewGameState(),
		logger:   logger.CreateRoomLogger(roomID, logger.ColorBrightPurple),
		conns:    make(map[string]*protocol.Conn),
		shutdown: make(chan struct{}),
	}
}

// Addr returns the bound listener address, valid after Run has started
// listening.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run listens and serves until the match ends. Each accepted connection is
// handled on its own goroutine.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to bind room listener: %w", err)
	}
	s.ln = ln
	s.logger.Info("Grid room %s for %s listening on %s", s.roomID, s.gameName, ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.logger.Info("Room %s shutting down", s.roomID)
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

// handleConn serves one client until it disconnects or the room ends.
func (s *Server) handleConn(conn *protocol.Conn) {
	s.logger.Debug("Client connected: %s", conn.RemoteAddr())
	username := ""

	defer func() {
		conn.Close()
		if username != "" {
			s.dropPlayer(username)
			s.broadcastState()
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
				name = fmt.Sprintf("player_%d", s.state.PlayerCount()+1)
			}
			symbol := s.state.AddPlayer(name)
			if symbol == "" {
				conn.WriteError(protocol.TypeRoom, protocol.ActionJoin,
					protocol.CodeRoomFull, "Room full")
				return
			}
			username = name
			s.track(username, conn)
			conn.WriteOK(protocol.TypeRoom, protocol.ActionJoin,
				protocol.RoomJoinResult{Symbol: symbol, Username: username})
			s.broadcastState()

		case protocol.ActionMove:
			if username == "" {
				continue
			}
			var req protocol.MoveRequest
			if err := env.DecodeData(&req); err != nil {
				continue
			}
			if s.state.ApplyMove(username, req.Cell) {
				s.broadcastState()
			}

		case protocol.ActionPlayAgain:
			if username == "" {
				continue
			}
			var req protocol.PlayAgainRequest
			if err := env.DecodeData(&req); err != nil {
				continue
			}
			switch s.state.VotePlayAgain(username, req.Again) {
			case VoteRestart:
				s.broadcastState()
			case VoteEnd:
				s.logger.Info("Play-again declined, closing room %s", s.roomID)
				s.Stop()
				return
			}
		}
	}
}

// track registers a player's connection for broadcasts.
func (s *Server) track(username string, conn *protocol.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[username] = conn
}

// dropPlayer unseats a player and forgets their connection.
func (s *Server) dropPlayer(username string) {
	s.mu.Lock()
	if conn, ok := s.conns[username]; ok {
		conn.Close()
		delete(s.conns, username)
	}
	s.mu.Unlock()
	s.state.RemovePlayer(username)
}

// broadcastState serializes the state once and sends it to every seated
// connection. Connections whose send fails are dropped like a disconnect.
func (s *Server) broadcastState() {
	snapshot := s.state.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Error("Failed to serialize state: %v", err)
		return
	}
	line, err := json.Marshal(protocol.Envelope{
		Type:   protocol.TypeRoom,
		Action: protocol.ActionState,
		Data:   data,
	})
	if err != nil {
		s.logger.Error("Failed to serialize state envelope: %v", err)
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
