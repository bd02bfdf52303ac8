package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"gamehub/internal/network"
)

type fakeStatus struct{}

func (fakeStatus) SessionCount() int        { return 3 }
func (fakeStatus) RunningLobbies() []string { return []string{"grid", "arena"} }

func newTestAPI(t *testing.T) (*network.LogBroadcaster, *httptest.Server) {
	t.Helper()
	broadcaster := network.NewLogBroadcaster(100)
	handler := NewAdminHandler(broadcaster, fakeStatus{})

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return broadcaster, server
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s returned %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, server := newTestAPI(t)

	var status map[string]interface{}
	getJSON(t, server.URL+"/admin/status", &status)

	if status["sessions"] != float64(3) {
		t.Errorf("sessions = %v", status["sessions"])
	}
	if status["lobby_count"] != float64(2) {
		t.Errorf("lobby_count = %v", status["lobby_count"])
	}
}

func TestLogHistoryEndpoint(t *testing.T) {
	broadcaster, server := newTestAPI(t)

	broadcaster.AddLogEntry(network.LogEntry{
		Timestamp: time.Now(),
		Level:     network.LogLevelInfo,
		Component: "CENTRAL",
		Message:   "server started",
	})
	broadcaster.AddLogEntry(network.LogEntry{
		Timestamp: time.Now(),
		Level:     network.LogLevelDebug,
		Component: "CENTRAL",
		Message:   "noise",
	})

	var body struct {
		Logs  []network.LogEntry `json:"logs"`
		Count int                `json:"count"`
	}
	getJSON(t, server.URL+"/admin/logs/history?level=INFO", &body)

	if body.Count != 1 || len(body.Logs) != 1 {
		t.Fatalf("count=%d logs=%d", body.Count, len(body.Logs))
	}
	if body.Logs[0].Message != "server started" {
		t.Errorf("message = %q", body.Logs[0].Message)
	}
}

func TestLogStatsEndpoint(t *testing.T) {
	broadcaster, server := newTestAPI(t)
	broadcaster.AddLogEntry(network.LogEntry{
		Timestamp: time.Now(),
		Level:     network.LogLevelInfo,
		Component: "CENTRAL",
		Message:   "x",
	})

	var stats map[string]interface{}
	getJSON(t, server.URL+"/admin/logs/stats", &stats)
	if stats["buffer_size"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}
}
