package central

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"gamehub/internal/database"
	"gamehub/internal/storage"
	"gamehub/pkg/logger"
	"gamehub/pkg/protocol"
)

// session is one connected client. A session gains a username on login and
// loses it on logout or disconnect.
type session struct {
	id       string
	conn     *protocol.Conn
	username string
}

// Server is the central directory server: one TCP listener dispatching
// auth, store and dev requests.
type Server struct {
	host string
	port int

	store    *database.Store
	packages *storage.PackageStore
	lobbies  *LobbyTable
	logger   logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	active   map[string]string // username -> session id

	ln       net.Listener
	shutdown chan struct{}
	once     sync.Once
}

// NewServer creates a central server over its store, package area and lobby
// table.
func NewServer(host string, port int, store *database.Store, packages *storage.PackageStore, lobbies *LobbyTable, log logger.Logger) *Server {
	if log == nil {
		log = logger.CentralLogger
	}
	return &Server{
		host:     host,
		port:     port,
		store:    store,
		packages: packages,
		lobbies:  lobbies,
		logger:   log,
		sessions: make(map[string]*session),
		active:   make(map[string]string),
		shutdown: make(chan struct{}),
	}
}

// Addr returns the bound listener address, valid after Run has started
// listening.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// SessionCount returns the number of connected clients.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Lobbies exposes the lobby table for the admin surface.
func (s *Server) Lobbies() *LobbyTable {
	return s.lobbies
}

// RunningLobbies lists the games with a live lobby process.
func (s *Server) RunningLobbies() []string {
	return s.lobbies.Running()
}

// Run listens and serves until Stop. Each accepted connection is handled on
// its own goroutine.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to bind central listener: %w", err)
	}
	s.ln = ln
	s.logger.Info("Central server listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.logger.Info("Central server shutting down")
				return nil
			default:
				return fmt.Errorf("accept failed: %w", err)
			}
		}
		go s.handleConn(protocol.NewConn(conn))
	}
}

// Stop closes the listener and terminates every lobby process.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.shutdown)
		if s.ln != nil {
			s.ln.Close()
		}
		s.lobbies.StopAll()
	})
}

// handleConn serves one client session until it disconnects. A dropped
// connection releases the session's username so the account can log in
// again.
func (s *Server) handleConn(conn *protocol.Conn) {
	sess := &session{id: uuid.New().String(), conn: conn}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Debug("Session %s connected from %s", sess.id, conn.RemoteAddr())

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.sessions, sess.id)
		if sess.username != "" && s.active[sess.username] == sess.id {
			delete(s.active, sess.username)
		}
		s.mu.Unlock()
		s.logger.Debug("Session %s disconnected", sess.id)
	}()

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidJSON) {
				conn.WriteError("", "", protocol.CodeInvalidJSON, "Request is not valid JSON")
				continue
			}
			return
		}

		switch env.Type {
		case protocol.TypeAuth:
			s.handleAuth(sess, env)
		case protocol.TypeStore:
			s.handleStore(sess, env)
		case protocol.TypeDev:
			s.handleDev(sess, env)
		default:
			conn.WriteError(env.Type, env.Action,
				protocol.CodeUnknownType, fmt.Sprintf("Unknown message type %q", env.Type))
		}
	}
}

// requireLogin writes NOT_AUTHENTICATED when the session has no user.
func (s *Server) requireLogin(sess *session, msgType, action string) bool {
	if sess.username == "" {
		sess.conn.WriteError(msgType, action,
			protocol.CodeNotAuthenticated, "Log in first")
		return false
	}
	return true
}
