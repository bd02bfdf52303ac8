package lobby

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"gamehub/pkg/logger"
	"gamehub/pkg/protocol"
)

// Server is one game's lobby control channel: a TCP listener dispatching
// lobby-type requests onto the room table.
type Server struct {
	host  string
	port  int
	table *RoomTable

	logger logger.Logger

	ln       net.Listener
	shutdown chan struct{}
	once     sync.Once
}

// NewServer creates a lobby server over a room table.
func NewServer(host string, port int, table *RoomTable, log logger.Logger) *Server {
	if log == nil {
		log = logger.LobbyLogger
	}
	return &Server{
		host:     host,
		port:     port,
		table:    table,
		logger:   log,
		shutdown: make(chan struct{}),
	}
}

// Addr returns the bound listener address, valid after Run has started
// listening.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run listens and serves until Stop. Each accepted connection is handled on
// its own goroutine.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to bind lobby listener: %w", err)
	}
	s.ln = ln
	s.logger.Info("Lobby listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.logger.Info("Lobby shutting down")
				return nil
			default:
				return fmt.Errorf("accept failed: %w", err)
			}
		}
		go s.handleConn(protocol.NewConn(conn))
	}
}

// Stop closes the listener and stops every waiting room's server.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.shutdown)
		if s.ln != nil {
			s.ln.Close()
		}
		s.table.StopAll()
	})
}

// handleConn serves one client session until it disconnects. Malformed
// lines get an INVALID_JSON error and the session continues.
func (s *Server) handleConn(conn *protocol.Conn) {
	defer conn.Close()
	s.logger.Debug("Client connected: %s", conn.RemoteAddr())

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidJSON) {
				conn.WriteError(protocol.TypeLobby, "",
					protocol.CodeInvalidJSON, "Request is not valid JSON")
				continue
			}
			s.logger.Debug("Client disconnected: %s", conn.RemoteAddr())
			return
		}
		if env.Type != protocol.TypeLobby {
			conn.WriteError(env.Type, env.Action,
				protocol.CodeUnknownType, fmt.Sprintf("Unknown message type %q", env.Type))
			continue
		}
		s.dispatch(conn, env)
	}
}

// dispatch routes one lobby request onto the room table.
func (s *Server) dispatch(conn *protocol.Conn, env *protocol.Envelope) {
	switch env.Action {
	case protocol.ActionListRooms:
		conn.WriteOK(protocol.TypeLobby, env.Action,
			protocol.RoomList{Rooms: s.table.ListRooms()})

	case protocol.ActionCreateRoom:
		var req protocol.CreateRoomRequest
		if err := env.DecodeData(&req); err != nil || req.Username == "" {
			conn.WriteError(protocol.TypeLobby, env.Action,
				protocol.CodeInvalidRequest, "create_room requires a username")
			return
		}
		room, errInfo := s.table.CreateRoom(req.Username, req.MaxPlayers)
		if errInfo != nil {
			conn.WriteError(protocol.TypeLobby, env.Action, errInfo.Code, errInfo.Message)
			return
		}
		conn.WriteOK(protocol.TypeLobby, env.Action, s.roomAddress(room))

	case protocol.ActionJoinRoom:
		var req protocol.JoinRoomRequest
		if err := env.DecodeData(&req); err != nil || req.Username == "" || req.RoomID == "" {
			conn.WriteError(protocol.TypeLobby, env.Action,
				protocol.CodeInvalidRequest, "join_room requires a room_id and username")
			return
		}
		room, errInfo := s.table.JoinRoom(req.RoomID, req.Username)
		if errInfo != nil {
			conn.WriteError(protocol.TypeLobby, env.Action, errInfo.Code, errInfo.Message)
			return
		}
		conn.WriteOK(protocol.TypeLobby, env.Action, s.roomAddress(room))

	case protocol.ActionLeaveRoom:
		var req protocol.LeaveRoomRequest
		if err := env.DecodeData(&req); err != nil || req.Username == "" {
			conn.WriteError(protocol.TypeLobby, env.Action,
				protocol.CodeInvalidRequest, "leave_room requires a username")
			return
		}
		roomID, errInfo := s.table.LeaveRoom(req.RoomID, req.Username)
		if errInfo != nil {
			conn.WriteError(protocol.TypeLobby, env.Action, errInfo.Code, errInfo.Message)
			return
		}
		conn.WriteOK(protocol.TypeLobby, env.Action, protocol.LeaveRoomResult{RoomID: roomID})

	default:
		conn.WriteError(protocol.TypeLobby, env.Action,
			protocol.CodeUnsupported, fmt.Sprintf("Unsupported lobby action %q", env.Action))
	}
}

// roomAddress builds the payload pointing a client at its room server.
func (s *Server) roomAddress(room *Room) protocol.RoomAddress {
	return protocol.RoomAddress{
		RoomID:         room.ID,
		GameName:       s.table.gameName,
		Version:        s.table.version,
		RoomServerHost: room.ServerHost,
		RoomServerPort: room.ServerPort,
	}
}
