package central

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gamehub/internal/database"
	"gamehub/models"
	"gamehub/pkg/protocol"
)

// dirExists reports whether path is an existing directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// handleDev dispatches the developer-facing actions.
func (s *Server) handleDev(sess *session, env *protocol.Envelope) {
	if !s.requireLogin(sess, protocol.TypeDev, env.Action) {
		return
	}

	switch env.Action {
	case protocol.ActionUploadGameFile:
		s.handleUpload(sess, env)
	case protocol.ActionLaunchGameServer:
		s.handleLaunch(sess, env)
	case protocol.ActionStopGameServer:
		s.handleStopServer(sess, env)
	case protocol.ActionDeleteGame:
		s.handleDeleteGame(sess, env)
	default:
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeUnsupported, fmt.Sprintf("Unsupported dev action %q", env.Action))
	}
}

// drainUpload consumes the raw payload of a rejected upload so the control
// channel stays line-aligned for the next request.
func (s *Server) drainUpload(sess *session, size int64) {
	if size <= 0 {
		return
	}
	if err := sess.conn.ReadExact(io.Discard, size); err != nil {
		s.logger.Warn("Failed to drain rejected upload: %v", err)
	}
}

// handleUpload receives a header line followed by exactly filesize raw
// bytes, stores and extracts the archive, and upserts the game record. A
// failed transfer or extraction never replaces previously promoted state.
func (s *Server) handleUpload(sess *session, env *protocol.Envelope) {
	var header protocol.UploadHeader
	if err := env.DecodeData(&header); err != nil ||
		header.GameName == "" || header.Filename == "" || header.Filesize <= 0 {
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeInvalidRequest, "upload requires game_name, filename and a positive filesize")
		return
	}

	// An omitted min defaults to 1; an omitted max to max(min, 4).
	minPlayers := 1
	if header.MinPlayers != nil {
		minPlayers = *header.MinPlayers
	}
	maxPlayers := 4
	if minPlayers > maxPlayers {
		maxPlayers = minPlayers
	}
	if header.MaxPlayers != nil {
		maxPlayers = *header.MaxPlayers
	}
	if minPlayers < 1 || maxPlayers < minPlayers {
		s.drainUpload(sess, header.Filesize)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeInvalidPlayers, "Player bounds must satisfy 0 < min <= max")
		return
	}

	existing, err := s.store.GetGame(header.GameName)
	if err != nil {
		s.drainUpload(sess, header.Filesize)
		s.logger.Error("upload lookup failed: %v", err)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeUploadFailed, "Failed to check existing game")
		return
	}
	if existing != nil && existing.Author != "" && existing.Author != sess.username {
		s.drainUpload(sess, header.Filesize)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeGameExistsOtherAuthor,
			fmt.Sprintf("Game %s belongs to %s", header.GameName, existing.Author))
		return
	}

	stored, err := s.packages.SaveArchive(header.GameName, header.Filename,
		sess.conn.RawReader(), header.Filesize)
	if err != nil {
		s.logger.Warn("Upload of %s failed: %v", header.GameName, err)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeUploadFailed, "Upload transfer failed")
		return
	}

	extracted, err := s.packages.ExtractArchive(header.GameName, stored)
	if err != nil {
		s.logger.Warn("Extraction of %s failed: %v", header.GameName, err)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeUnzipFailed, "Archive could not be extracted")
		return
	}

	cfg, err := s.packages.ReadGameConfig(extracted)
	if err != nil {
		s.logger.Warn("Manifest of %s is malformed: %v", header.GameName, err)
	}
	version := header.Version
	if version == "" {
		version = cfg.Version
	}

	game, err := s.store.UpsertGame(models.Game{
		GameName:      header.GameName,
		Version:       version,
		Filename:      header.Filename,
		StoragePath:   stored,
		ExtractedPath: extracted,
		Description:   cfg.Description,
		Author:        sess.username,
		MinPlayers:    minPlayers,
		MaxPlayers:    maxPlayers,
	})
	if err != nil {
		s.logger.Error("upload upsert failed: %v", err)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeUploadFailed, "Failed to record game")
		return
	}

	s.logger.Info("User %s uploaded %s %s (%d bytes)",
		sess.username, game.GameName, game.Version, header.Filesize)
	sess.conn.WriteOK(protocol.TypeDev, env.Action, protocol.UploadResult{
		GameName:      game.GameName,
		Version:       game.Version,
		StoredPath:    stored,
		ExtractedPath: extracted,
	})
}

// handleLaunch starts (or finds) the lobby process for a game. A missing
// extracted tree is rebuilt from the stored archive first.
func (s *Server) handleLaunch(sess *session, env *protocol.Envelope) {
	var ref protocol.GameRef
	if err := env.DecodeData(&ref); err != nil || ref.GameName == "" {
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeInvalidRequest, "launch_game_server requires a game_name")
		return
	}

	game, err := s.store.GetGame(ref.GameName)
	if err != nil {
		s.logger.Error("launch lookup failed: %v", err)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeLaunchFailed, "Failed to load game")
		return
	}
	if game == nil {
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeGameNotFound, fmt.Sprintf("No game named %s", ref.GameName))
		return
	}

	extracted := game.ExtractedPath
	if extracted == "" || !dirExists(extracted) {
		extracted, err = s.packages.ExtractArchive(game.GameName, game.StoragePath)
		if err != nil {
			s.logger.Warn("Re-extraction of %s failed: %v", game.GameName, err)
			sess.conn.WriteError(protocol.TypeDev, env.Action,
				protocol.CodeLaunchFailed, "Package could not be prepared")
			return
		}
		game.ExtractedPath = extracted
		if _, err := s.store.UpsertGame(*game); err != nil {
			s.logger.Error("Failed to record re-extraction: %v", err)
		}
	}

	host, port, err := s.lobbies.Launch(game.GameName, game.Version, extracted)
	if err != nil {
		s.logger.Error("Lobby launch for %s failed: %v", game.GameName, err)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeLaunchFailed, "Lobby could not be started")
		return
	}

	sess.conn.WriteOK(protocol.TypeDev, env.Action, protocol.LaunchResult{
		GameName:  game.GameName,
		LobbyHost: host,
		LobbyPort: port,
	})
}

// handleStopServer stops a game's lobby process. Rooms already running keep
// running.
func (s *Server) handleStopServer(sess *session, env *protocol.Envelope) {
	var ref protocol.GameRef
	if err := env.DecodeData(&ref); err != nil || ref.GameName == "" {
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeInvalidRequest, "stop_game_server requires a game_name")
		return
	}

	stopped := s.lobbies.Stop(ref.GameName)
	if stopped {
		s.logger.Info("User %s stopped the lobby for %s", sess.username, ref.GameName)
	}
	sess.conn.WriteOK(protocol.TypeDev, env.Action, protocol.StopResult{
		GameName: ref.GameName,
		Stopped:  stopped,
	})
}

// handleDeleteGame removes a game's record, storage tree and lobby. Only
// the author may delete.
func (s *Server) handleDeleteGame(sess *session, env *protocol.Envelope) {
	var ref protocol.GameRef
	if err := env.DecodeData(&ref); err != nil || ref.GameName == "" {
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeInvalidRequest, "delete_game requires a game_name")
		return
	}

	err := s.store.RemoveGame(ref.GameName, sess.username)
	switch {
	case errors.Is(err, database.ErrGameNotFound):
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeGameNotFound, fmt.Sprintf("No game named %s", ref.GameName))
		return
	case errors.Is(err, database.ErrNotOwner):
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeNotOwner, fmt.Sprintf("Game %s belongs to another author", ref.GameName))
		return
	case err != nil:
		s.logger.Error("delete_game failed: %v", err)
		sess.conn.WriteError(protocol.TypeDev, env.Action,
			protocol.CodeInvalidRequest, "Failed to delete game")
		return
	}

	s.lobbies.Stop(ref.GameName)
	if err := s.packages.RemoveGame(ref.GameName); err != nil {
		s.logger.Warn("Failed to remove storage for %s: %v", ref.GameName, err)
	}

	s.logger.Info("User %s deleted %s", sess.username, ref.GameName)
	sess.conn.WriteOK(protocol.TypeDev, env.Action, protocol.DeleteResult{
		GameName: ref.GameName,
		Deleted:  true,
	})
}
