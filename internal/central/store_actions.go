package central

import (
	"fmt"
	"math"
	"os"

	"gamehub/models"
	"gamehub/pkg/protocol"
)

// handleStore dispatches the store-facing catalog actions. Every store
// action requires a logged-in session.
func (s *Server) handleStore(sess *session, env *protocol.Envelope) {
	if !s.requireLogin(sess, protocol.TypeStore, env.Action) {
		return
	}

	switch env.Action {
	case protocol.ActionListGames:
		s.handleListGames(sess, env)
	case protocol.ActionGetGameDetail:
		s.handleGetGameDetail(sess, env)
	case protocol.ActionDownloadGameFile:
		s.handleDownloadGameFile(sess, env)
	case protocol.ActionAddComment:
		s.handleAddComment(sess, env)
	case protocol.ActionMarkOwned:
		s.handleMarkOwned(sess, env)
	default:
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeUnsupported, fmt.Sprintf("Unsupported store action %q", env.Action))
	}
}

// annotate decorates a game record with its lobby endpoint when a lobby is
// running for it.
func (s *Server) annotate(g models.Game) protocol.GameEntry {
	entry := protocol.GameEntry{Game: g}
	if host, port, ok := s.lobbies.Endpoint(g.GameName); ok {
		entry.LobbyHost = host
		entry.LobbyPort = port
	}
	return entry
}

func (s *Server) handleListGames(sess *session, env *protocol.Envelope) {
	games, err := s.store.ListGames()
	if err != nil {
		s.logger.Error("list_games failed: %v", err)
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "Failed to list games")
		return
	}

	entries := make([]protocol.GameEntry, 0, len(games))
	for _, g := range games {
		entries = append(entries, s.annotate(g))
	}
	sess.conn.WriteOK(protocol.TypeStore, env.Action, protocol.GameList{Games: entries})
}

// averageScore computes the mean comment score rounded to one decimal,
// nil when there are no comments.
func averageScore(comments []models.Comment) *float64 {
	if len(comments) == 0 {
		return nil
	}
	total := 0
	for _, c := range comments {
		total += c.Score
	}
	avg := math.Round(float64(total)/float64(len(comments))*10) / 10
	return &avg
}

func (s *Server) handleGetGameDetail(sess *session, env *protocol.Envelope) {
	var ref protocol.GameRef
	if err := env.DecodeData(&ref); err != nil || ref.GameName == "" {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "get_game_detail requires a game_name")
		return
	}

	game, err := s.store.GetGame(ref.GameName)
	if err != nil {
		s.logger.Error("get_game_detail failed: %v", err)
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "Failed to load game")
		return
	}
	if game == nil {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeGameNotFound, fmt.Sprintf("No game named %s", ref.GameName))
		return
	}

	// The package manifest may carry a richer description than the record.
	if game.Description == "" && game.ExtractedPath != "" {
		if cfg, err := s.packages.ReadGameConfig(game.ExtractedPath); err == nil && cfg.Description != "" {
			game.Description = cfg.Description
		}
	}

	comments, err := s.store.ListComments(ref.GameName)
	if err != nil {
		s.logger.Error("get_game_detail comments failed: %v", err)
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "Failed to load comments")
		return
	}

	sess.conn.WriteOK(protocol.TypeStore, env.Action, protocol.GameDetail{
		GameEntry: s.annotate(*game),
		Comments:  comments,
		Rating:    averageScore(comments),
	})
}

// handleDownloadGameFile replies with a header line and then streams the
// raw archive bytes on the same socket. The download is recorded for the
// logged-in user only after the stream completes.
func (s *Server) handleDownloadGameFile(sess *session, env *protocol.Envelope) {
	var ref protocol.GameRef
	if err := env.DecodeData(&ref); err != nil || ref.GameName == "" {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "download_game_file requires a game_name")
		return
	}

	game, err := s.store.GetGame(ref.GameName)
	if err != nil {
		s.logger.Error("download failed: %v", err)
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "Failed to load game")
		return
	}
	if game == nil {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeGameOrVersionNotFound, fmt.Sprintf("No game named %s", ref.GameName))
		return
	}

	f, err := os.Open(game.StoragePath)
	if err != nil {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeGameOrVersionNotFound,
			fmt.Sprintf("Archive for %s %s is missing", game.GameName, game.Version))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeGameOrVersionNotFound, "Archive is unreadable")
		return
	}

	header := protocol.DownloadHeader{
		GameName: game.GameName,
		Filename: game.Filename,
		Filesize: info.Size(),
		Version:  game.Version,
	}
	if err := sess.conn.WriteOK(protocol.TypeStore, env.Action, header); err != nil {
		return
	}
	if err := sess.conn.WriteRaw(f, info.Size()); err != nil {
		s.logger.Warn("Download of %s aborted: %v", game.GameName, err)
		return
	}

	if err := s.store.RecordDownload(sess.username, game.GameName); err != nil {
		s.logger.Error("Failed to record download: %v", err)
	}
	s.logger.Info("Sent %s %s (%d bytes) to %s",
		game.GameName, game.Version, info.Size(), sess.conn.RemoteAddr())
}

func (s *Server) handleAddComment(sess *session, env *protocol.Envelope) {
	var req protocol.CommentRequest
	if err := env.DecodeData(&req); err != nil || req.GameName == "" {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "add_comment requires a game_name")
		return
	}
	if req.Score == nil || *req.Score < 1 || *req.Score > 5 {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidScore, "Score must be an integer from 1 to 5")
		return
	}

	game, err := s.store.GetGame(req.GameName)
	if err == nil && game == nil {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeGameNotFound, fmt.Sprintf("No game named %s", req.GameName))
		return
	}
	if err == nil {
		err = s.store.AddComment(req.GameName, sess.username, *req.Score, req.Comment)
	}
	if err != nil {
		s.logger.Error("add_comment failed: %v", err)
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "Failed to store comment")
		return
	}

	comments, err := s.store.ListComments(req.GameName)
	if err != nil {
		s.logger.Error("add_comment reload failed: %v", err)
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "Failed to reload comments")
		return
	}
	sess.conn.WriteOK(protocol.TypeStore, env.Action, protocol.CommentResult{
		GameName: req.GameName,
		Comments: comments,
		Rating:   averageScore(comments),
	})
}

func (s *Server) handleMarkOwned(sess *session, env *protocol.Envelope) {
	var ref protocol.GameRef
	if err := env.DecodeData(&ref); err != nil || ref.GameName == "" {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "mark_owned requires a game_name")
		return
	}

	game, err := s.store.GetGame(ref.GameName)
	if err == nil && game == nil {
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeGameNotFound, fmt.Sprintf("No game named %s", ref.GameName))
		return
	}
	if err == nil {
		err = s.store.MarkOwned(sess.username, ref.GameName)
	}
	if err != nil {
		s.logger.Error("mark_owned failed: %v", err)
		sess.conn.WriteError(protocol.TypeStore, env.Action,
			protocol.CodeInvalidRequest, "Failed to record ownership")
		return
	}
	sess.conn.WriteOK(protocol.TypeStore, env.Action, protocol.GameRef{GameName: ref.GameName})
}
