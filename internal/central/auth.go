package central

import (
	"errors"
	"fmt"

	"gamehub/internal/database"
	"gamehub/pkg/protocol"
)

// handleAuth dispatches register, login and logout.
func (s *Server) handleAuth(sess *session, env *protocol.Envelope) {
	switch env.Action {
	case protocol.ActionRegister:
		s.handleRegister(sess, env)
	case protocol.ActionLogin:
		s.handleLogin(sess, env)
	case protocol.ActionLogout:
		s.handleLogout(sess, env)
	default:
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeUnsupported, fmt.Sprintf("Unsupported auth action %q", env.Action))
	}
}

func (s *Server) handleRegister(sess *session, env *protocol.Envelope) {
	var creds protocol.Credentials
	if err := env.DecodeData(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeInvalidRequest, "register requires a username and password")
		return
	}

	err := s.store.RegisterUser(creds.Username, creds.Password)
	switch {
	case errors.Is(err, database.ErrInvalidUsername):
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeInvalidUsername, "Username contains invalid characters")
	case errors.Is(err, database.ErrUsernameExists):
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeUsernameExists, fmt.Sprintf("Username %s is taken", creds.Username))
	case err != nil:
		s.logger.Error("Register failed for %s: %v", creds.Username, err)
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeInvalidRequest, "Registration failed")
	default:
		s.logger.Info("Registered user %s", creds.Username)
		sess.conn.WriteOK(protocol.TypeAuth, env.Action,
			protocol.AuthResult{Username: creds.Username})
	}
}

// handleLogin authenticates and claims the username. An account can hold
// one live session at a time.
func (s *Server) handleLogin(sess *session, env *protocol.Envelope) {
	var creds protocol.Credentials
	if err := env.DecodeData(&creds); err != nil || creds.Username == "" {
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeInvalidRequest, "login requires a username and password")
		return
	}

	ok, err := s.store.AuthenticateUser(creds.Username, creds.Password)
	if err != nil {
		s.logger.Error("Login failed for %s: %v", creds.Username, err)
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeInvalidRequest, "Login failed")
		return
	}
	if !ok {
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeInvalidCredentials, "Unknown username or wrong password")
		return
	}

	s.mu.Lock()
	if holder, taken := s.active[creds.Username]; taken && holder != sess.id {
		s.mu.Unlock()
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeUserAlreadyLoggedIn,
			fmt.Sprintf("User %s is already logged in", creds.Username))
		return
	}
	// Re-login on the same session replaces any previous identity.
	if sess.username != "" && s.active[sess.username] == sess.id {
		delete(s.active, sess.username)
	}
	s.active[creds.Username] = sess.id
	sess.username = creds.Username
	s.mu.Unlock()

	s.logger.Info("User %s logged in (session %s)", creds.Username, sess.id)
	sess.conn.WriteOK(protocol.TypeAuth, env.Action,
		protocol.AuthResult{Username: creds.Username})
}

func (s *Server) handleLogout(sess *session, env *protocol.Envelope) {
	if sess.username == "" {
		sess.conn.WriteError(protocol.TypeAuth, env.Action,
			protocol.CodeNotLoggedIn, "No user is logged in on this session")
		return
	}

	s.mu.Lock()
	username := sess.username
	if s.active[username] == sess.id {
		delete(s.active, username)
	}
	sess.username = ""
	s.mu.Unlock()

	s.logger.Info("User %s logged out", username)
	sess.conn.WriteOK(protocol.TypeAuth, env.Action,
		protocol.AuthResult{Username: username})
}
