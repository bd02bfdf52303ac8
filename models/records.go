package models

// User is the account record held by the metadata store. Username is the
// primary key. Games lists downloaded titles, GamesOwn authored ones.
type User struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Games    []string `json:"games"`
	GamesOwn []string `json:"games_own"`
}

// Game is the store record for one uploaded title. The first successful
// upload under GameName creates it; later uploads by the same author update
// it in place.
type Game struct {
	GameName      string `json:"game_name"`
	Version       string `json:"version"`
	Filename      string `json:"filename"`
	StoragePath   string `json:"storage_path"`
	ExtractedPath string `json:"extracted_path,omitempty"`
	Description   string `json:"description"`
	Author        string `json:"author"`
	MinPlayers    int    `json:"min_players"`
	MaxPlayers    int    `json:"max_players"`
}

// Comment is one user's review of one game. At most one exists per
// (game, user); re-adding overwrites.
type Comment struct {
	GameName string `json:"game_name"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Comment  string `json:"comment"`
}

// GameConfig is the optional game_config.json at the root of an extracted
// package.
type GameConfig struct {
	Version         string `json:"version"`
	Description     string `json:"description"`
	EntryRoomServer string `json:"entry_room_server"`
	EntryClient     string `json:"entry_client"`
}
