package protocol

import (
	"encoding/json"

	"gamehub/models"
)

// Message types routed by the servers
const (
	TypeAuth  = "auth"
	TypeStore = "store"
	TypeDev   = "dev"
	TypeLobby = "lobby"
	TypeRoom  = "room"
)

// Auth actions
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionLogout   = "logout"
)

// Store actions
const (
	ActionListGames        = "list_games"
	ActionGetGameDetail    = "get_game_detail"
	ActionDownloadGameFile = "download_game_file"
	ActionAddComment       = "add_comment"
	ActionMarkOwned        = "mark_owned"
)

// Dev actions
const (
	ActionUploadGameFile   = "upload_game_file"
	ActionLaunchGameServer = "launch_game_server"
	ActionStopGameServer   = "stop_game_server"
	ActionDeleteGame       = "delete_game"
)

// Lobby actions
const (
	ActionListRooms  = "list_rooms"
	ActionCreateRoom = "create_room"
	ActionJoinRoom   = "join_room"
	ActionLeaveRoom  = "leave_room"
)

// Room actions
const (
	ActionJoin      = "join"
	ActionMove      = "move"
	ActionInput     = "input"
	ActionPlayAgain = "play_again"
	ActionState     = "state"
)

// Response status values
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes produced by the servers
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInvalidUsername       = "INVALID_USERNAME"
	CodeUsernameExists        = "USERNAME_EXISTS"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeUserAlreadyLoggedIn   = "USER_ALREADY_LOGGED_IN"
	CodeNotLoggedIn           = "NOT_LOGGED_IN"
	CodeNotAuthenticated      = "NOT_AUTHENTICATED"
	CodeGameNotFound          = "GAME_NOT_FOUND"
	CodeGameOrVersionNotFound = "GAME_OR_VERSION_NOT_FOUND"
	CodeGameExistsOtherAuthor = "GAME_EXISTS_OTHER_AUTHOR"
	CodeInvalidPlayers        = "INVALID_PLAYERS"
	CodeUploadFailed          = "UPLOAD_FAILED"
	CodeUnzipFailed           = "UNZIP_FAILED"
	CodeLaunchFailed          = "LAUNCH_FAILED"
	CodeStopFailed            = "STOP_FAILED"
	CodeNotOwner              = "NOT_OWNER"
	CodeInvalidScore          = "INVALID_SCORE"
	CodeInvalidJSON           = "INVALID_JSON"
	CodeUnknownType           = "UNKNOWN_TYPE"
	CodeUnsupported           = "UNSUPPORTED"

	CodeAlreadyInRoom     = "ALREADY_IN_ROOM"
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeRoomNotJoinable   = "ROOM_NOT_JOINABLE"
	CodeRoomFull          = "ROOM_FULL"
	CodeRoomServerMissing = "ROOM_SERVER_MISSING"
	CodeRoomServerFailed  = "ROOM_SERVER_FAILED"
	CodeNotInRoom         = "NOT_IN_ROOM"
)

// ErrorInfo carries the code/message pair of an error response.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the newline-delimited JSON frame exchanged on every control
// channel. Requests carry Type/Action/Data; responses additionally carry
// Status and, on failure, Error instead of Data.
type Envelope struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Status string          `json:"status,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// DecodeData unmarshals the envelope's data field into a typed payload.
// A missing data field decodes as an empty object.
func (e *Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// MakeRequest builds a request envelope with a typed payload.
func MakeRequest(msgType, action string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Action: action, Data: raw}, nil
}

// Auth payloads

// Credentials is the request payload for register and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResult acknowledges an auth action.
type AuthResult struct {
	Username string `json:"username"`
}

// Store payloads

// GameEntry is a game record annotated with the lobby endpoint when a lobby
// process is currently running for it.
type GameEntry struct {
	models.Game
	LobbyHost string `json:"lobby_host,omitempty"`
	LobbyPort int    `json:"lobby_port,omitempty"`
}

// GameList is the response payload for list_games.
type GameList struct {
	Games []GameEntry `json:"games"`
}

// GameDetail is the response payload for get_game_detail.
type GameDetail struct {
	GameEntry
	Comments []models.Comment `json:"comments"`
	Rating   *float64         `json:"rating"`
}

// GameRef names a game in a request.
type GameRef struct {
	GameName string `json:"game_name"`
}

// DownloadHeader precedes the raw archive bytes on download. Exactly
// Filesize bytes follow the header line with no delimiter.
type DownloadHeader struct {
	GameName string `json:"game_name"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Version  string `json:"version"`
}

// CommentRequest is the request payload for add_comment.
type CommentRequest struct {
	GameName string `json:"game_name"`
	Score    *int   `json:"score"`
	Comment  string `json:"comment"`
}

// CommentResult returns the refreshed comment list and aggregate rating.
type CommentResult struct {
	GameName string           `json:"game_name"`
	Comments []models.Comment `json:"comments"`
	Rating   *float64         `json:"rating"`
}

// Dev payloads

// UploadHeader announces an archive upload. Exactly Filesize bytes follow
// the header line on the same socket.
type UploadHeader struct {
	GameName   string `json:"game_name"`
	Version    string `json:"version"`
	Filename   string `json:"filename"`
	Filesize   int64  `json:"filesize"`
	MinPlayers *int   `json:"min_players"`
	MaxPlayers *int   `json:"max_players"`
}

// UploadResult acknowledges a stored upload.
type UploadResult struct {
	GameName      string `json:"game_name"`
	Version       string `json:"version"`
	StoredPath    string `json:"stored_path"`
	ExtractedPath string `json:"extracted_path"`
}

// LaunchResult names the lobby endpoint for a launched (or already running)
// game lobby.
type LaunchResult struct {
	GameName  string `json:"game_name"`
	LobbyHost string `json:"lobby_host"`
	LobbyPort int    `json:"lobby_port"`
}

// StopResult acknowledges a stopped lobby.
type StopResult struct {
	GameName string `json:"game_name"`
	Stopped  bool   `json:"stopped"`
}

// DeleteResult acknowledges a deleted game.
type DeleteResult struct {
	GameName string `json:"game_name"`
	Deleted  bool   `json:"deleted"`
}

// Lobby payloads

// RoomStatus values for lobby room entries.
const (
	RoomWaiting = "waiting"
	RoomClosed  = "closed"
)

// RoomInfo is the wire representation of a lobby room entry.
type RoomInfo struct {
	RoomID         string   `json:"room_id"`
	GameName       string   `json:"game_name"`
	Version        string   `json:"version"`
	HostUsername   string   `json:"host_username"`
	Players        []string `json:"players"`
	MaxPlayers     int      `json:"max_players"`
	Status         string   `json:"status"`
	RoomServerHost string   `json:"room_server_host"`
	RoomServerPort int      `json:"room_server_port"`
}

// RoomList is the response payload for list_rooms.
type RoomList struct {
	Rooms []RoomInfo `json:"rooms"`
}

// CreateRoomRequest is the request payload for create_room.
type CreateRoomRequest struct {
	Username   string `json:"username"`
	MaxPlayers int    `json:"max_players"`
	Version    string `json:"version"`
}

// JoinRoomRequest is the request payload for join_room.
type JoinRoomRequest struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

// LeaveRoomRequest is the request payload for leave_room. RoomID may be
// empty, in which case the user is removed from any room in the lobby.
type LeaveRoomRequest struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

// LeaveRoomResult acknowledges a leave_room.
type LeaveRoomResult struct {
	RoomID string `json:"room_id"`
}

// RoomAddress tells a client where its room server listens.
type RoomAddress struct {
	RoomID         string `json:"room_id"`
	GameName       string `json:"game_name"`
	Version        string `json:"version"`
	RoomServerHost string `json:"room_server_host"`
	RoomServerPort int    `json:"room_server_port"`
}

// Room payloads (grid game reference)

// RoomJoinRequest is the request payload for the room join handshake.
type RoomJoinRequest struct {
	Username string `json:"username"`
}

// RoomJoinResult assigns the seated player its symbol.
type RoomJoinResult struct {
	Symbol   string `json:"symbol"`
	Username string `json:"username"`
}

// MoveRequest plays a cell on the grid.
type MoveRequest struct {
	Cell int `json:"cell"`
}

// PlayAgainRequest casts a rematch vote.
type PlayAgainRequest struct {
	Again bool `json:"again"`
}

// GridState is the broadcast snapshot of the grid game. Winner is null
// while the game runs, a username on a win and "" on a draw.
type GridState struct {
	Board            []string          `json:"board"`
	Turn             *string           `json:"turn"`
	Winner           *string           `json:"winner"`
	Players          map[string]string `json:"players"`
	PlayersNeeded    int               `json:"players_needed"`
	PlayAgainWaiting bool              `json:"play_again_waiting"`
}

// Arena payloads (tick-loop room server)

// ArenaInput is the latest-input slot uploaded by an arena client.
type ArenaInput struct {
	Move        [2]float64 `json:"move"`
	TurretDelta float64    `json:"turret_delta"`
	Fire        bool       `json:"fire"`
}

// ArenaPlayerState is one player's slice of the arena snapshot.
type ArenaPlayerState struct {
	Username        string  `json:"username"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	AngleTurret     float64 `json:"angle_turret"`
	Alive           bool    `json:"alive"`
	CurrentBulletID string  `json:"current_bullet_id,omitempty"`
}

// ArenaBulletState is one projectile's slice of the arena snapshot.
type ArenaBulletState struct {
	BulletID string  `json:"bullet_id"`
	Owner    string  `json:"owner"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// ArenaState is the broadcast snapshot of the arena game.
type ArenaState struct {
	Players []ArenaPlayerState `json:"players"`
	Bullets []ArenaBulletState `json:"bullets"`
}
