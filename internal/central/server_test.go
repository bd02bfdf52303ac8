package central

import (
	"archive/zip"
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"gamehub/internal/database"
	"gamehub/internal/storage"
	"gamehub/pkg/protocol"
)

// fakeLobbyProcess stands in for a lobby subprocess.
type fakeLobbyProcess struct {
	mu       sync.Mutex
	exited   bool
	watchers []func()
}

func (p *fakeLobbyProcess) OnExit(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		go fn()
		return
	}
	p.watchers = append(p.watchers, fn)
}

func (p *fakeLobbyProcess) Stop(timeout time.Duration) error {
	p.mu.Lock()
	p.exited = true
	watchers := p.watchers
	p.watchers = nil
	p.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
	return nil
}

func (p *fakeLobbyProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

type fakeLobbySpawner struct {
	mu    sync.Mutex
	count int
}

func (s *fakeLobbySpawner) Spawn(name string, args ...string) (LobbyProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return &fakeLobbyProcess{}, nil
}

// startCentral boots a central server on an ephemeral port with a fake
// lobby spawner and returns a connected client.
func startCentral(t *testing.T) (*Server, *protocol.Conn) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.NewConnection(database.DefaultConfig(dir))
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	lobbies := NewLobbyTable("127.0.0.1", 24000, 25000, "gamehub-lobby",
		time.Second, &fakeLobbySpawner{}, nil)
	srv := NewServer("127.0.0.1", 0, database.NewStore(db),
		storage.NewPackageStore(dir), lobbies, nil)
	go srv.Run()
	t.Cleanup(srv.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for srv.ln == nil {
		if time.Now().After(deadline) {
			t.Fatal("central server never started listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return srv, dialCentral(t, srv)
}

func dialCentral(t *testing.T, srv *Server) *protocol.Conn {
	t.Helper()
	raw, err := net.DialTimeout("tcp", srv.ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn := protocol.NewConn(raw)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip sends one request and reads one response.
func roundTrip(t *testing.T, conn *protocol.Conn, msgType, action string, data interface{}) *protocol.Envelope {
	t.Helper()
	env, err := protocol.MakeRequest(msgType, action, data)
	if err != nil {
		t.Fatalf("MakeRequest failed: %v", err)
	}
	if err := conn.WriteEnvelope(env); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	resp, err := conn.ReadEnvelope()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return resp
}

func mustOK(t *testing.T, resp *protocol.Envelope) *protocol.Envelope {
	t.Helper()
	if resp.Status != protocol.StatusOK {
		t.Fatalf("%s/%s failed: %+v", resp.Type, resp.Action, resp.Error)
	}
	return resp
}

func mustErrCode(t *testing.T, resp *protocol.Envelope, code string) {
	t.Helper()
	if resp.Status != protocol.StatusError || resp.Error == nil || resp.Error.Code != code {
		t.Fatalf("expected %s, got %+v", code, resp)
	}
}

func register(t *testing.T, conn *protocol.Conn, user, pass string) {
	t.Helper()
	mustOK(t, roundTrip(t, conn, protocol.TypeAuth, protocol.ActionRegister,
		protocol.Credentials{Username: user, Password: pass}))
}

func login(t *testing.T, conn *protocol.Conn, user, pass string) {
	t.Helper()
	mustOK(t, roundTrip(t, conn, protocol.TypeAuth, protocol.ActionLogin,
		protocol.Credentials{Username: user, Password: pass}))
}

func testZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create failed: %v", err)
		}
		w.Write([]byte(content))
	}
	zw.Close()
	return buf.Bytes()
}

// uploadWith performs the header-plus-raw-bytes upload on an open session.
func uploadWith(t *testing.T, conn *protocol.Conn, header protocol.UploadHeader, archive []byte) *protocol.Envelope {
	t.Helper()
	header.Filesize = int64(len(archive))
	env, _ := protocol.MakeRequest(protocol.TypeDev, protocol.ActionUploadGameFile, header)
	if err := conn.WriteEnvelope(env); err != nil {
		t.Fatalf("header write failed: %v", err)
	}
	if err := conn.WriteRaw(bytes.NewReader(archive), int64(len(archive))); err != nil {
		t.Fatalf("payload write failed: %v", err)
	}
	resp, err := conn.ReadEnvelope()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return resp
}

func upload(t *testing.T, conn *protocol.Conn, gameName string, archive []byte) *protocol.Envelope {
	t.Helper()
	return uploadWith(t, conn, protocol.UploadHeader{
		GameName: gameName,
		Version:  "1.0",
		Filename: gameName + ".zip",
	}, archive)
}

func TestAuthFlow(t *testing.T) {
	srv, conn := startCentral(t)

	register(t, conn, "alice", "pw")

	t.Run("duplicate registration", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeAuth, protocol.ActionRegister,
			protocol.Credentials{Username: "alice", Password: "pw"})
		mustErrCode(t, resp, protocol.CodeUsernameExists)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeAuth, protocol.ActionLogin,
			protocol.Credentials{Username: "alice", Password: "nope"})
		mustErrCode(t, resp, protocol.CodeInvalidCredentials)
	})

	login(t, conn, "alice", "pw")

	t.Run("second session rejected", func(t *testing.T) {
		other := dialCentral(t, srv)
		resp := roundTrip(t, other, protocol.TypeAuth, protocol.ActionLogin,
			protocol.Credentials{Username: "alice", Password: "pw"})
		mustErrCode(t, resp, protocol.CodeUserAlreadyLoggedIn)
	})

	t.Run("logout frees the username", func(t *testing.T) {
		mustOK(t, roundTrip(t, conn, protocol.TypeAuth, protocol.ActionLogout, nil))
		other := dialCentral(t, srv)
		resp := roundTrip(t, other, protocol.TypeAuth, protocol.ActionLogin,
			protocol.Credentials{Username: "alice", Password: "pw"})
		mustOK(t, resp)
	})
}

func TestDisconnectReleasesUsername(t *testing.T) {
	srv, conn := startCentral(t)

	register(t, conn, "alice", "pw")
	login(t, conn, "alice", "pw")
	conn.Close()

	// The server notices the drop asynchronously.
	other := dialCentral(t, srv)
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := roundTrip(t, other, protocol.TypeAuth, protocol.ActionLogin,
			protocol.Credentials{Username: "alice", Password: "pw"})
		if resp.Status == protocol.StatusOK {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("username never released: %+v", resp.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestUploadListDownloadRoundTrip(t *testing.T) {
	_, conn := startCentral(t)

	register(t, conn, "dev", "pw")
	login(t, conn, "dev", "pw")

	archive := testZip(t, map[string]string{
		"game_config.json":   `{"description":"a fine game"}`,
		"run_room_server.py": "print('serve')",
	})

	resp := mustOK(t, upload(t, conn, "mygame", archive))
	var result protocol.UploadResult
	if err := resp.DecodeData(&result); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if result.ExtractedPath == "" {
		t.Error("no extracted path reported")
	}

	t.Run("list shows the game", func(t *testing.T) {
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionListGames, nil))
		var list protocol.GameList
		if err := resp.DecodeData(&list); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(list.Games) != 1 || list.Games[0].GameName != "mygame" {
			t.Fatalf("listing = %+v", list.Games)
		}
		if list.Games[0].Author != "dev" {
			t.Errorf("author = %q", list.Games[0].Author)
		}
	})

	t.Run("detail pulls manifest description", func(t *testing.T) {
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionGetGameDetail,
			protocol.GameRef{GameName: "mygame"}))
		var detail protocol.GameDetail
		if err := resp.DecodeData(&detail); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if detail.Description != "a fine game" {
			t.Errorf("description = %q", detail.Description)
		}
		if detail.Rating != nil {
			t.Errorf("rating without comments = %v", *detail.Rating)
		}
	})

	t.Run("download returns the exact bytes", func(t *testing.T) {
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionDownloadGameFile,
			protocol.GameRef{GameName: "mygame"}))
		var header protocol.DownloadHeader
		if err := resp.DecodeData(&header); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if header.Filesize != int64(len(archive)) {
			t.Fatalf("filesize = %d, want %d", header.Filesize, len(archive))
		}
		var got bytes.Buffer
		if err := conn.ReadExact(&got, header.Filesize); err != nil {
			t.Fatalf("ReadExact failed: %v", err)
		}
		if !bytes.Equal(got.Bytes(), archive) {
			t.Error("downloaded bytes differ from uploaded archive")
		}
	})

	t.Run("comment updates rating", func(t *testing.T) {
		score := 4
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionAddComment,
			protocol.CommentRequest{GameName: "mygame", Score: &score, Comment: "solid"}))
		var result protocol.CommentResult
		if err := resp.DecodeData(&result); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if result.Rating == nil || *result.Rating != 4 {
			t.Errorf("rating = %v", result.Rating)
		}
	})

	t.Run("out of range score", func(t *testing.T) {
		score := 9
		resp := roundTrip(t, conn, protocol.TypeStore, protocol.ActionAddComment,
			protocol.CommentRequest{GameName: "mygame", Score: &score})
		mustErrCode(t, resp, protocol.CodeInvalidScore)
	})

	t.Run("mark owned", func(t *testing.T) {
		mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionMarkOwned,
			protocol.GameRef{GameName: "mygame"}))
	})
}

func TestDevActionsRequireLogin(t *testing.T) {
	_, conn := startCentral(t)

	resp := roundTrip(t, conn, protocol.TypeDev, protocol.ActionLaunchGameServer,
		protocol.GameRef{GameName: "x"})
	mustErrCode(t, resp, protocol.CodeNotAuthenticated)
}

func TestStoreActionsRequireLogin(t *testing.T) {
	_, conn := startCentral(t)

	t.Run("list_games", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeStore, protocol.ActionListGames, nil)
		mustErrCode(t, resp, protocol.CodeNotAuthenticated)
	})

	t.Run("get_game_detail", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeStore, protocol.ActionGetGameDetail,
			protocol.GameRef{GameName: "x"})
		mustErrCode(t, resp, protocol.CodeNotAuthenticated)
	})

	t.Run("download_game_file", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeStore, protocol.ActionDownloadGameFile,
			protocol.GameRef{GameName: "x"})
		mustErrCode(t, resp, protocol.CodeNotAuthenticated)
	})
}

func TestUnsupportedActions(t *testing.T) {
	_, conn := startCentral(t)

	register(t, conn, "alice", "pw")
	login(t, conn, "alice", "pw")

	t.Run("auth", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeAuth, "impersonate", nil)
		mustErrCode(t, resp, protocol.CodeUnsupported)
	})

	t.Run("store", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeStore, "refund_game", nil)
		mustErrCode(t, resp, protocol.CodeUnsupported)
	})

	t.Run("dev", func(t *testing.T) {
		resp := roundTrip(t, conn, protocol.TypeDev, "promote_game", nil)
		mustErrCode(t, resp, protocol.CodeUnsupported)
	})
}

func TestUploadPlayerBounds(t *testing.T) {
	_, conn := startCentral(t)

	register(t, conn, "dev", "pw")
	login(t, conn, "dev", "pw")
	archive := testZip(t, map[string]string{"a.txt": "x"})

	t.Run("omitted max follows min", func(t *testing.T) {
		six := 6
		mustOK(t, uploadWith(t, conn, protocol.UploadHeader{
			GameName:   "bigparty",
			Version:    "1.0",
			Filename:   "bigparty.zip",
			MinPlayers: &six,
		}, archive))

		resp := mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionGetGameDetail,
			protocol.GameRef{GameName: "bigparty"}))
		var detail protocol.GameDetail
		if err := resp.DecodeData(&detail); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if detail.MinPlayers != 6 || detail.MaxPlayers != 6 {
			t.Errorf("bounds = %d..%d, want 6..6", detail.MinPlayers, detail.MaxPlayers)
		}
	})

	t.Run("min above explicit max", func(t *testing.T) {
		three, two := 3, 2
		resp := uploadWith(t, conn, protocol.UploadHeader{
			GameName:   "upsidedown",
			Version:    "1.0",
			Filename:   "upsidedown.zip",
			MinPlayers: &three,
			MaxPlayers: &two,
		}, archive)
		mustErrCode(t, resp, protocol.CodeInvalidPlayers)

		// The rejected payload was drained; the session stays aligned.
		mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionListGames, nil))
	})

	t.Run("zero min", func(t *testing.T) {
		zero := 0
		resp := uploadWith(t, conn, protocol.UploadHeader{
			GameName:   "ghosttown",
			Version:    "1.0",
			Filename:   "ghosttown.zip",
			MinPlayers: &zero,
		}, archive)
		mustErrCode(t, resp, protocol.CodeInvalidPlayers)
	})
}

func TestDownloadUnknownGame(t *testing.T) {
	_, conn := startCentral(t)

	register(t, conn, "alice", "pw")
	login(t, conn, "alice", "pw")

	resp := roundTrip(t, conn, protocol.TypeStore, protocol.ActionDownloadGameFile,
		protocol.GameRef{GameName: "nosuch"})
	mustErrCode(t, resp, protocol.CodeGameOrVersionNotFound)
}

func TestLaunchAndStopLobby(t *testing.T) {
	_, conn := startCentral(t)

	register(t, conn, "dev", "pw")
	login(t, conn, "dev", "pw")

	archive := testZip(t, map[string]string{"run_room_server.py": "pass"})
	mustOK(t, upload(t, conn, "arena", archive))

	resp := mustOK(t, roundTrip(t, conn, protocol.TypeDev, protocol.ActionLaunchGameServer,
		protocol.GameRef{GameName: "arena"}))
	var launch protocol.LaunchResult
	if err := resp.DecodeData(&launch); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if launch.LobbyPort == 0 {
		t.Fatal("no lobby port assigned")
	}

	t.Run("relaunch is idempotent", func(t *testing.T) {
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeDev, protocol.ActionLaunchGameServer,
			protocol.GameRef{GameName: "arena"}))
		var again protocol.LaunchResult
		if err := resp.DecodeData(&again); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if again.LobbyPort != launch.LobbyPort {
			t.Errorf("relaunch moved lobby to port %d", again.LobbyPort)
		}
	})

	t.Run("listing carries the endpoint", func(t *testing.T) {
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeStore, protocol.ActionListGames, nil))
		var list protocol.GameList
		if err := resp.DecodeData(&list); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if list.Games[0].LobbyPort != launch.LobbyPort {
			t.Errorf("listing lobby port = %d", list.Games[0].LobbyPort)
		}
	})

	t.Run("stop", func(t *testing.T) {
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeDev, protocol.ActionStopGameServer,
			protocol.GameRef{GameName: "arena"}))
		var stop protocol.StopResult
		if err := resp.DecodeData(&stop); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !stop.Stopped {
			t.Error("lobby was not reported stopped")
		}
	})

	t.Run("stop again is a no-op", func(t *testing.T) {
		resp := mustOK(t, roundTrip(t, conn, protocol.TypeDev, protocol.ActionStopGameServer,
			protocol.GameRef{GameName: "arena"}))
		var stop protocol.StopResult
		if err := resp.DecodeData(&stop); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if stop.Stopped {
			t.Error("second stop reported a running lobby")
		}
	})
}

func TestDeleteGame(t *testing.T) {
	srv, conn := startCentral(t)

	register(t, conn, "dev", "pw")
	login(t, conn, "dev", "pw")
	archive := testZip(t, map[string]string{"a.txt": "x"})
	mustOK(t, upload(t, conn, "doomed", archive))

	t.Run("other user cannot delete", func(t *testing.T) {
		other := dialCentral(t, srv)
		register(t, other, "mallory", "pw")
		login(t, other, "mallory", "pw")
		resp := roundTrip(t, other, protocol.TypeDev, protocol.ActionDeleteGame,
			protocol.GameRef{GameName: "doomed"})
		mustErrCode(t, resp, protocol.CodeNotOwner)
	})

	mustOK(t, roundTrip(t, conn, protocol.TypeDev, protocol.ActionDeleteGame,
		protocol.GameRef{GameName: "doomed"}))

	resp := roundTrip(t, conn, protocol.TypeStore, protocol.ActionGetGameDetail,
		protocol.GameRef{GameName: "doomed"})
	mustErrCode(t, resp, protocol.CodeGameNotFound)
}

func TestUnknownTypeAndBadJSON(t *testing.T) {
	_, conn := startCentral(t)

	resp := roundTrip(t, conn, "bogus", "whatever", nil)
	mustErrCode(t, resp, protocol.CodeUnknownType)

	if err := conn.WriteLine([]byte("}{")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	env, err := conn.ReadEnvelope()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	mustErrCode(t, env, protocol.CodeInvalidJSON)

	// Session survives the bad line.
	register(t, conn, "carol", "pw")
}
