package storage

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildZip produces an in-memory zip with the given file contents.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create failed: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write failed: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close failed: %v", err)
	}
	return buf.Bytes()
}

func TestSaveAndExtractArchive(t *testing.T) {
	store := NewPackageStore(t.TempDir())

	archive := buildZip(t, map[string]string{
		"game_config.json":   `{"version":"1.2","description":"a game","entry_room_server":"serve.py"}`,
		"assets/board.txt":   "grid",
		"run_room_server.py": "print('hi')",
	})

	stored, err := store.SaveArchive("mygame", "mygame.zip", bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}
	if stored != store.ArchivePath("mygame", "mygame.zip") {
		t.Errorf("stored at %s", stored)
	}

	extracted, err := store.ExtractArchive("mygame", stored)
	if err != nil {
		t.Fatalf("ExtractArchive failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(extracted, "assets", "board.txt"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(data) != "grid" {
		t.Errorf("got %q", data)
	}

	cfg, err := store.ReadGameConfig(extracted)
	if err != nil {
		t.Fatalf("ReadGameConfig failed: %v", err)
	}
	if cfg.Version != "1.2" || cfg.EntryRoomServer != "serve.py" {
		t.Errorf("got config %+v", cfg)
	}
}

func TestSaveArchiveTruncatedKeepsPrevious(t *testing.T) {
	store := NewPackageStore(t.TempDir())

	good := buildZip(t, map[string]string{"a.txt": "v1"})
	stored, err := store.SaveArchive("g", "g.zip", bytes.NewReader(good), int64(len(good)))
	if err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}

	// Claim more bytes than the reader delivers.
	short := strings.NewReader("partial")
	if _, err := store.SaveArchive("g", "g.zip", short, 10000); err == nil {
		t.Fatal("expected truncated upload to fail")
	}

	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("previous archive gone: %v", err)
	}
	if !bytes.Equal(data, good) {
		t.Error("previous archive was clobbered by a failed upload")
	}
}

func TestExtractArchiveRejectsEscapingEntry(t *testing.T) {
	store := NewPackageStore(t.TempDir())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("../evil.txt")
	io.WriteString(w, "escape")
	zw.Close()

	stored, err := store.SaveArchive("evil", "evil.zip", bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}
	if _, err := store.ExtractArchive("evil", stored); err == nil {
		t.Fatal("expected zip-slip entry to be rejected")
	}
}

func TestReadGameConfigMissingFile(t *testing.T) {
	store := NewPackageStore(t.TempDir())

	cfg, err := store.ReadGameConfig(t.TempDir())
	if err != nil {
		t.Fatalf("missing manifest should not error: %v", err)
	}
	if cfg.Version != "" || cfg.EntryRoomServer != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestRemoveGame(t *testing.T) {
	store := NewPackageStore(t.TempDir())

	archive := buildZip(t, map[string]string{"a": "b"})
	stored, err := store.SaveArchive("gone", "gone.zip", bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}
	if err := store.RemoveGame("gone"); err != nil {
		t.Fatalf("RemoveGame failed: %v", err)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Error("archive still on disk after RemoveGame")
	}
}
