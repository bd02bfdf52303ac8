package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gamehub/models"
)

// Sentinel errors the central server maps onto protocol error codes.
var (
	ErrInvalidUsername = errors.New("username contains invalid characters")
	ErrUsernameExists  = errors.New("username already exists")
	ErrGameNotFound    = errors.New("game not found")
	ErrNotOwner        = errors.New("caller is not the author of this game")
)

// usernameInvalidChars are rejected in usernames because usernames double
// as storage directory names.
const usernameInvalidChars = `<>:."/\|?*`

// Store offers the record-level operations of the metadata store. Every
// operation runs under one process-wide exclusive critical section so reads
// always observe a consistent snapshot.
type Store struct {
	db *DB
	mu sync.Mutex
}

// NewStore creates a store over an open database connection.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// GetUser returns the full user record, or nil when the user is unknown.
func (s *Store) GetUser(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLocked(username)
}

func (s *Store) getUserLocked(username string) (*models.User, error) {
	user := &models.User{
		Games:    []string{},
		GamesOwn: []string{},
	}
	err := s.db.QueryRow(
		"SELECT username, password FROM users WHERE username = ?", username,
	).Scan(&user.Username, &user.Password)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.Games, err = s.userListLocked("user_downloads", username)
	if err != nil {
		return nil, err
	}
	user.GamesOwn, err = s.userListLocked("user_owned", username)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// userListLocked reads one of the per-user game lists in insertion order.
func (s *Store) userListLocked(table, username string) ([]string, error) {
	rows, err := s.db.Query(
		fmt.Sprintf("SELECT game_name FROM %s WHERE username = ? ORDER BY rowid", table), username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RegisterUser creates a new account. Usernames containing filesystem
// metacharacters are rejected with ErrInvalidUsername.
func (s *Store) RegisterUser(username, password string) error {
	if strings.ContainsAny(username, usernameInvalidChars) {
		return ErrInvalidUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if exists > 0 {
		return ErrUsernameExists
	}

	if _, err := s.db.Exec(
		"INSERT INTO users (username, password) VALUES (?, ?)", username, password,
	); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// AuthenticateUser reports whether the credentials match a stored account.
// Passwords are compared literally.
func (s *Store) AuthenticateUser(username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored string
	err := s.db.QueryRow("SELECT password FROM users WHERE username = ?", username).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query user: %w", err)
	}
	return stored == password, nil
}

// RecordDownload marks a game as downloaded by a user. Idempotent.
func (s *Store) RecordDownload(username, gameName string) error {
	if username == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO user_downloads (username, game_name) VALUES (?, ?)",
		username, gameName,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// addOwnedGameLocked marks a game as authored by a user. Idempotent.
func (s *Store) addOwnedGameLocked(username, gameName string) error {
	if username == "" {
		return nil
	}
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO user_owned (username, game_name) VALUES (?, ?)",
		username, gameName,
	)
	if err != nil {
		return fmt.Errorf("failed to record ownership: %w", err)
	}
	return nil
}

// MarkOwned marks a game as owned by a user. Idempotent.
func (s *Store) MarkOwned(username, gameName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addOwnedGameLocked(username, gameName)
}

const gameColumns = `game_name, version, filename, storage_path, extracted_path,
	description, author, min_players, max_players`

// scanGame reads one game row.
func scanGame(row interface{ Scan(...interface{}) error }) (models.Game, error) {
	var g models.Game
	err := row.Scan(&g.GameName, &g.Version, &g.Filename, &g.StoragePath,
		&g.ExtractedPath, &g.Description, &g.Author, &g.MinPlayers, &g.MaxPlayers)
	return g, err
}

// ListGames returns every game record in upload order.
func (s *Store) ListGames() ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT " + gameColumns + " FROM games ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	games := []models.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// GetGame returns one game record, or nil when no game has that name.
func (s *Store) GetGame(gameName string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getGameLocked(gameName)
}

func (s *Store) getGameLocked(gameName string) (*models.Game, error) {
	row := s.db.QueryRow("SELECT "+gameColumns+" FROM games WHERE game_name = ?", gameName)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query game: %w", err)
	}
	return &g, nil
}

// UpsertGame inserts or updates a game's metadata and returns the stored
// record. On update the original author wins, an empty description keeps
// the previous one, and zero player bounds keep the previous values.
func (s *Store) UpsertGame(g models.Game) (models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getGameLocked(g.GameName)
	if err != nil {
		return models.Game{}, err
	}

	if existing != nil {
		if existing.Author != "" {
			g.Author = existing.Author
		}
		if g.Description == "" {
			g.Description = existing.Description
		}
		if g.ExtractedPath == "" {
			g.ExtractedPath = existing.ExtractedPath
		}
		if g.MinPlayers == 0 {
			g.MinPlayers = existing.MinPlayers
		}
		if g.MaxPlayers == 0 {
			g.MaxPlayers = existing.MaxPlayers
		}
	}
	if g.MinPlayers == 0 {
		g.MinPlayers = 1
	}
	if g.MaxPlayers == 0 {
		g.MaxPlayers = 4
	}

	_, err = s.db.Exec(`
		INSERT INTO games (game_name, version, filename, storage_path, extracted_path,
			description, author, min_players, max_players)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_name) DO UPDATE SET
			version = excluded.version,
			filename = excluded.filename,
			storage_path = excluded.storage_path,
			extracted_path = excluded.extracted_path,
			description = excluded.description,
			author = excluded.author,
			min_players = excluded.min_players,
			max_players = excluded.max_players,
			updated_at = CURRENT_TIMESTAMP`,
		g.GameName, g.Version, g.Filename, g.StoragePath, g.ExtractedPath,
		g.Description, g.Author, g.MinPlayers, g.MaxPlayers,
	)
	if err != nil {
		return models.Game{}, fmt.Errorf("failed to upsert game: %w", err)
	}

	if err := s.addOwnedGameLocked(g.Author, g.GameName); err != nil {
		return models.Game{}, err
	}
	return g, nil
}

// RemoveGame deletes a game record and cascades to comments and the
// per-user lists. When author is non-empty it must match the stored author.
func (s *Store) RemoveGame(gameName, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getGameLocked(gameName)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrGameNotFound
	}
	if author != "" && existing.Author != "" && existing.Author != author {
		return ErrNotOwner
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM games WHERE game_name = ?",
		"DELETE FROM comments WHERE game_name = ?",
		"DELETE FROM user_downloads WHERE game_name = ?",
		"DELETE FROM user_owned WHERE game_name = ?",
	} {
		if _, err := tx.Exec(stmt, gameName); err != nil {
			return fmt.Errorf("failed to cascade delete: %w", err)
		}
	}
	return tx.Commit()
}

// ListComments returns all comments for a game, oldest first.
func (s *Store) ListComments(gameName string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT game_name, username, score, comment FROM comments WHERE game_name = ? ORDER BY rowid",
		gameName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.GameName, &c.Username, &c.Score, &c.Comment); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// AddComment upserts a comment by (game, user): any prior comment by the
// same user on the same game is replaced and the new one appends last.
func (s *Store) AddComment(gameName, username string, score int, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM comments WHERE game_name = ? AND username = ?", gameName, username,
	); err != nil {
		return fmt.Errorf("failed to replace comment: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO comments (game_name, username, score, comment) VALUES (?, ?, ?, ?)",
		gameName, username, score, comment,
	); err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return tx.Commit()
}
