package logger

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// LogBroadcaster interface for streaming logs
type LogBroadcaster interface {
	AddLogEntry(entry interface{})
}

// StreamingLogger extends ColoredLogger so every entry is also mirrored to
// an in-process broadcaster for the admin log stream.
type StreamingLogger struct {
	*ColoredLogger
	broadcaster LogBroadcaster
	sessionID   string
	gameName    string
	roomID      string
}

// NewStreamingLogger creates a new streaming logger
func NewStreamingLogger(context, color string, broadcaster LogBroadcaster) *StreamingLogger {
	return &StreamingLogger{
		ColoredLogger: NewColoredLogger(context, color),
		broadcaster:   broadcaster,
	}
}

// SetSessionID sets the session ID for all log entries
func (sl *StreamingLogger) SetSessionID(sessionID string) {
	sl.sessionID = sessionID
}

// SetGameName sets the game name for all log entries
func (sl *StreamingLogger) SetGameName(gameName string) {
	sl.gameName = gameName
}

// SetRoomID sets the room ID for all log entries
func (sl *StreamingLogger) SetRoomID(roomID string) {
	sl.roomID = roomID
}

// getCallSite returns the caller information
func (sl *StreamingLogger) getCallSite() string {
	if _, file, line, ok := runtime.Caller(4); ok {
		parts := strings.Split(file, "/")
		return fmt.Sprintf("%s:%d", parts[len(parts)-1], line)
	}
	return ""
}

// streamLog creates and sends a log entry to the broadcaster
func (sl *StreamingLogger) streamLog(level LogLevel, format string, args ...interface{}) {
	if sl.broadcaster == nil {
		return
	}

	// Entry shape matches network.LogEntry
	entry := map[string]interface{}{
		"timestamp":  time.Now(),
		"level":      level.String(),
		"component":  sl.context,
		"message":    fmt.Sprintf(format, args...),
		"session_id": sl.sessionID,
		"game_name":  sl.gameName,
		"room_id":    sl.roomID,
		"call_site":  sl.getCallSite(),
	}

	sl.broadcaster.AddLogEntry(entry)
}

// Debug logs and streams a debug message
func (sl *StreamingLogger) Debug(format string, args ...interface{}) {
	sl.ColoredLogger.Debug(format, args...)
	if DEBUG >= sl.level {
		sl.streamLog(DEBUG, format, args...)
	}
}

// Info logs and streams an info message
func (sl *StreamingLogger) Info(format string, args ...interface{}) {
	sl.ColoredLogger.Info(format, args...)
	if INFO >= sl.level {
		sl.streamLog(INFO, format, args...)
	}
}

// Warn logs and streams a warning message
func (sl *StreamingLogger) Warn(format string, args ...interface{}) {
	sl.ColoredLogger.Warn(format, args...)
	if WARN >= sl.level {
		sl.streamLog(WARN, format, args...)
	}
}

// Error logs and streams an error message
func (sl *StreamingLogger) Error(format string, args ...interface{}) {
	sl.ColoredLogger.Error(format, args...)
	if ERROR >= sl.level {
		sl.streamLog(ERROR, format, args...)
	}
}
