// Package handlers carries the admin HTTP API: platform status, log
// history and the WebSocket log stream.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gamehub/internal/network"
	"gamehub/pkg/logger"
)

// StatusSource is the slice of the central server the admin API reports on.
type StatusSource interface {
	SessionCount() int
	RunningLobbies() []string
}

// AdminHandler serves the admin HTTP and WebSocket endpoints.
type AdminHandler struct {
	logBroadcaster *network.LogBroadcaster
	status         StatusSource
	upgrader       websocket.Upgrader
	logger         *logger.ColoredLogger
	started        time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(logBroadcaster *network.LogBroadcaster, status StatusSource) *AdminHandler {
	return &AdminHandler{
		logBroadcaster: logBroadcaster,
		status:         status,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger.AdminLogger,
		started: time.Now(),
	}
}

// RegisterRoutes registers admin routes
func (ah *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/admin/status", ah.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/admin/logs/stream", ah.handleLogStream)
	r.HandleFunc("/admin/logs/history", ah.handleLogHistory).Methods(http.MethodGet)
	r.HandleFunc("/admin/logs/stats", ah.handleLogStats).Methods(http.MethodGet)

	ah.logger.Info("Admin API routes registered")
}

// handleStatus reports the platform's live state.
func (ah *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	lobbies := ah.status.RunningLobbies()
	status := map[string]interface{}{
		"status":          "running",
		"uptime_seconds":  int(time.Since(ah.started).Seconds()),
		"sessions":        ah.status.SessionCount(),
		"running_lobbies": lobbies,
		"lobby_count":     len(lobbies),
		"timestamp":       time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleLogStream handles WebSocket connections for log streaming
func (ah *AdminHandler) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ah.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ah.logger.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}

	clientID := uuid.New().String()
	ah.logger.Info("Admin log client connected: %s", clientID)

	filter := ah.parseLogFilter(r)
	ah.logBroadcaster.AddClient(conn, clientID, filter)

	go ah.handleLogClientMessages(conn, clientID)
}

// parseLogFilter parses log filter from query parameters
func (ah *AdminHandler) parseLogFilter(r *http.Request) network.LogFilter {
	query := r.URL.Query()

	filter := network.LogFilter{
		MinLevel: network.LogLevel(query.Get("level")),
	}
	if filter.MinLevel == "" {
		filter.MinLevel = network.LogLevelInfo
	}

	if components := query["component"]; len(components) > 0 {
		filter.Components = components
	}
	if sessionID := query.Get("session_id"); sessionID != "" {
		filter.SessionID = sessionID
	}
	if gameName := query.Get("game_name"); gameName != "" {
		filter.GameName = gameName
	}
	if roomID := query.Get("room_id"); roomID != "" {
		filter.RoomID = roomID
	}
	if keywords := query["keyword"]; len(keywords) > 0 {
		filter.Keywords = keywords
	}

	return filter
}

// handleLogClientMessages handles incoming WebSocket messages from log
// clients, currently just filter updates.
func (ah *AdminHandler) handleLogClientMessages(conn *websocket.Conn, clientID string) {
	defer func() {
		ah.logBroadcaster.RemoveClient(clientID)
		conn.Close()
	}()

	for {
		var message struct {
			Type   string            `json:"type"`
			Filter network.LogFilter `json:"filter"`
		}
		if err := conn.ReadJSON(&message); err != nil {
			ah.logger.Debug("Log client %s closed: %v", clientID, err)
			return
		}

		if message.Type == "update_filter" {
			if message.Filter.MinLevel == "" {
				message.Filter.MinLevel = network.LogLevelInfo
			}
			ah.logBroadcaster.UpdateClientFilter(clientID, message.Filter)
		}
	}
}

// handleLogHistory returns buffered log history matching the filter.
func (ah *AdminHandler) handleLogHistory(w http.ResponseWriter, r *http.Request) {
	filter := ah.parseLogFilter(r)

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	logs := ah.logBroadcaster.GetHistoricalLogs(filter, limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// handleLogStats returns broadcaster statistics.
func (ah *AdminHandler) handleLogStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ah.logBroadcaster.GetStats())
}
