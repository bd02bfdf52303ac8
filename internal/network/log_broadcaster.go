// Package network carries the admin-facing streaming surface: a buffered
// log broadcaster fanning entries out to WebSocket subscribers.
package network

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gamehub/pkg/logger"
)

// LogLevel represents different log levels for streaming
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// LogEntry represents a single log entry for streaming
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	GameName  string    `json:"game_name,omitempty"`
	RoomID    string    `json:"room_id,omitempty"`
	CallSite  string    `json:"call_site,omitempty"`
}

// LogFilter defines criteria for filtering logs
type LogFilter struct {
	MinLevel   LogLevel `json:"min_level"`
	Components []string `json:"components,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	GameName   string   `json:"game_name,omitempty"`
	RoomID     string   `json:"room_id,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// LogClient represents a WebSocket client subscribed to logs
type LogClient struct {
	conn     *websocket.Conn
	filter   LogFilter
	buffer   chan LogEntry
	done     chan struct{}
	clientID string
}

// LogBroadcaster manages log streaming to WebSocket clients. It keeps a
// bounded ring of recent entries so new subscribers get history.
type LogBroadcaster struct {
	clients   map[string]*LogClient
	clientsMu sync.RWMutex
	logBuffer []LogEntry
	bufferMu  sync.RWMutex
	maxBuffer int
	upgrader  websocket.Upgrader
	logger    *logger.ColoredLogger
}

// NewLogBroadcaster creates a new log broadcaster
func NewLogBroadcaster(maxBuffer int) *LogBroadcaster {
	return &LogBroadcaster{
		clients:   make(map[string]*LogClient),
		logBuffer: make([]LogEntry, 0, maxBuffer),
		maxBuffer: maxBuffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.NewColoredLogger("LOG_STREAM", logger.ColorBrightCyan),
	}
}

// Upgrader exposes the configured WebSocket upgrader.
func (lb *LogBroadcaster) Upgrader() *websocket.Upgrader {
	return &lb.upgrader
}

// AddLogEntry adds a new log entry to the broadcaster. It accepts the map
// shape emitted by logger.StreamingLogger or a LogEntry directly.
func (lb *LogBroadcaster) AddLogEntry(entryData interface{}) {
	var entry LogEntry

	switch v := entryData.(type) {
	case map[string]interface{}:
		entry.Timestamp, _ = v["timestamp"].(time.Time)
		if level, ok := v["level"].(string); ok {
			entry.Level = LogLevel(level)
		}
		entry.Component, _ = v["component"].(string)
		entry.Message, _ = v["message"].(string)
		entry.SessionID, _ = v["session_id"].(string)
		entry.GameName, _ = v["game_name"].(string)
		entry.RoomID, _ = v["room_id"].(string)
		entry.CallSite, _ = v["call_site"].(string)
	case LogEntry:
		entry = v
	default:
		entry = LogEntry{
			Timestamp: time.Now(),
			Level:     LogLevelInfo,
			Component: "UNKNOWN",
			Message:   fmt.Sprintf("%v", entryData),
		}
	}

	lb.bufferMu.Lock()
	lb.logBuffer = append(lb.logBuffer, entry)
	if len(lb.logBuffer) > lb.maxBuffer {
		lb.logBuffer = lb.logBuffer[len(lb.logBuffer)-lb.maxBuffer:]
	}
	lb.bufferMu.Unlock()

	lb.broadcastToClients(entry)
}

// AddClient adds a new WebSocket client
func (lb *LogBroadcaster) AddClient(conn *websocket.Conn, clientID string, filter LogFilter) {
	client := &LogClient{
		conn:     conn,
		filter:   filter,
		buffer:   make(chan LogEntry, 100),
		done:     make(chan struct{}),
		clientID: clientID,
	}

	lb.clientsMu.Lock()
	lb.clients[clientID] = client
	lb.clientsMu.Unlock()

	lb.logger.Info("Log client connected: %s", clientID)

	go lb.sendHistoricalLogs(client)
	go lb.handleClient(client)
}

// RemoveClient removes a WebSocket client
func (lb *LogBroadcaster) RemoveClient(clientID string) {
	lb.clientsMu.Lock()
	defer lb.clientsMu.Unlock()

	if client, exists := lb.clients[clientID]; exists {
		close(client.done)
		client.conn.Close()
		delete(lb.clients, clientID)
		lb.logger.Info("Log client disconnected: %s", clientID)
	}
}

// UpdateClientFilter updates the filter for a specific client
func (lb *LogBroadcaster) UpdateClientFilter(clientID string, filter LogFilter) {
	lb.clientsMu.Lock()
	defer lb.clientsMu.Unlock()

	if client, exists := lb.clients[clientID]; exists {
		client.filter = filter
		lb.logger.Debug("Updated filter for client: %s", clientID)
	}
}

// GetHistoricalLogs returns the most recent entries matching the filter,
// oldest first.
func (lb *LogBroadcaster) GetHistoricalLogs(filter LogFilter, limit int) []LogEntry {
	lb.bufferMu.RLock()
	defer lb.bufferMu.RUnlock()

	var filtered []LogEntry
	for i := len(lb.logBuffer) - 1; i >= 0 && len(filtered) < limit; i-- {
		entry := lb.logBuffer[i]
		if matchesFilter(entry, filter) {
			filtered = append([]LogEntry{entry}, filtered...)
		}
	}
	return filtered
}

// broadcastToClients sends a log entry to all matching clients
func (lb *LogBroadcaster) broadcastToClients(entry LogEntry) {
	lb.clientsMu.RLock()
	defer lb.clientsMu.RUnlock()

	for _, client := range lb.clients {
		if matchesFilter(entry, client.filter) {
			select {
			case client.buffer <- entry:
			default:
				// Buffer full, skip this entry
				lb.logger.Warn("Log buffer full for client: %s", client.clientID)
			}
		}
	}
}

// sendHistoricalLogs sends recent history to a new client
func (lb *LogBroadcaster) sendHistoricalLogs(client *LogClient) {
	for _, entry := range lb.GetHistoricalLogs(client.filter, 100) {
		select {
		case client.buffer <- entry:
		case <-client.done:
			return
		}
	}
}

// handleClient manages a WebSocket client connection
func (lb *LogBroadcaster) handleClient(client *LogClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case entry := <-client.buffer:
			if err := client.conn.WriteJSON(entry); err != nil {
				lb.logger.Error("Failed to send log to client %s: %v", client.clientID, err)
				lb.RemoveClient(client.clientID)
				return
			}

		case <-ticker.C:
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				lb.logger.Error("Failed to ping client %s: %v", client.clientID, err)
				lb.RemoveClient(client.clientID)
				return
			}

		case <-client.done:
			return
		}
	}
}

// matchesFilter checks if a log entry matches a client's filter
func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if !levelMatches(entry.Level, filter.MinLevel) {
		return false
	}

	if len(filter.Components) > 0 {
		found := false
		for _, component := range filter.Components {
			if component == entry.Component {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.SessionID != "" && filter.SessionID != entry.SessionID {
		return false
	}
	if filter.GameName != "" && filter.GameName != entry.GameName {
		return false
	}
	if filter.RoomID != "" && filter.RoomID != entry.RoomID {
		return false
	}

	if len(filter.Keywords) > 0 {
		found := false
		for _, keyword := range filter.Keywords {
			if strings.Contains(strings.ToLower(entry.Message), strings.ToLower(keyword)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// levelMatches checks if the entry level meets the minimum filter level
func levelMatches(entryLevel, minLevel LogLevel) bool {
	levels := []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal}

	entryIndex, minIndex := -1, -1
	for i, level := range levels {
		if level == entryLevel {
			entryIndex = i
		}
		if level == minLevel {
			minIndex = i
		}
	}
	return entryIndex >= minIndex
}

// GetClientCount returns the number of connected clients
func (lb *LogBroadcaster) GetClientCount() int {
	lb.clientsMu.RLock()
	defer lb.clientsMu.RUnlock()
	return len(lb.clients)
}

// GetStats returns statistics about the log broadcaster
func (lb *LogBroadcaster) GetStats() map[string]interface{} {
	lb.clientsMu.RLock()
	clientCount := len(lb.clients)
	lb.clientsMu.RUnlock()

	lb.bufferMu.RLock()
	bufferSize := len(lb.logBuffer)
	lb.bufferMu.RUnlock()

	return map[string]interface{}{
		"connected_clients": clientCount,
		"buffer_size":       bufferSize,
		"max_buffer":        lb.maxBuffer,
	}
}
