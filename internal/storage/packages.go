// Package storage owns the on-disk package area: uploaded archives and
// their extracted trees, one directory per game.
package storage

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gamehub/models"
)

// ConfigFileName is the optional manifest at the root of a package.
const ConfigFileName = "game_config.json"

// DefaultRoomServerEntry is the room-server script a package provides when
// its manifest names none.
const DefaultRoomServerEntry = "run_room_server.py"

// PackageStore manages <base>/<game_name>/{<archive>, extracted/}.
type PackageStore struct {
	baseDir string
}

// NewPackageStore creates a package store rooted at baseDir.
func NewPackageStore(baseDir string) *PackageStore {
	return &PackageStore{baseDir: baseDir}
}

// BaseDir returns the storage root.
func (s *PackageStore) BaseDir() string {
	return s.baseDir
}

// EnsureGameDir creates (if needed) and returns the directory for a game.
func (s *PackageStore) EnsureGameDir(gameName string) (string, error) {
	dir := filepath.Join(s.baseDir, gameName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create game dir: %w", err)
	}
	return dir, nil
}

// ArchivePath returns where a game's uploaded archive is stored.
func (s *PackageStore) ArchivePath(gameName, filename string) string {
	return filepath.Join(s.baseDir, gameName, filename)
}

// ExtractedPath returns where a game's archive is extracted.
func (s *PackageStore) ExtractedPath(gameName string) string {
	return filepath.Join(s.baseDir, gameName, "extracted")
}

// SaveArchive streams exactly size bytes from r into the game's archive
// file. The bytes land in a temp file first so a truncated upload never
// replaces the previous archive.
func (s *PackageStore) SaveArchive(gameName, filename string, r io.Reader, size int64) (string, error) {
	dir, err := s.EnsureGameDir(gameName)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, io.LimitReader(r, size))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil || written != size {
		os.Remove(tmpName)
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("upload truncated after %d of %d bytes: %w", written, size, err)
	}

	dest := filepath.Join(dir, filename)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to store archive: %w", err)
	}
	return dest, nil
}

// ExtractArchive removes any previous extracted tree and unpacks the
// archive afresh. On extraction failure the partially written tree is
// removed and the previous archive stays untouched on disk.
func (s *PackageStore) ExtractArchive(gameName, archivePath string) (string, error) {
	extractDir := s.ExtractedPath(gameName)
	if err := os.RemoveAll(extractDir); err != nil {
		return "", fmt.Errorf("failed to clear extracted dir: %w", err)
	}
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create extracted dir: %w", err)
	}

	if err := unzip(archivePath, extractDir); err != nil {
		os.RemoveAll(extractDir)
		return "", err
	}
	return extractDir, nil
}

// ReadGameConfig parses game_config.json at the root of an extracted tree.
// A missing file returns a zero config and no error.
func (s *PackageStore) ReadGameConfig(extractedDir string) (models.GameConfig, error) {
	var cfg models.GameConfig
	data, err := os.ReadFile(filepath.Join(extractedDir, ConfigFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return models.GameConfig{}, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}
	return cfg, nil
}

// RemoveGame deletes a game's entire storage tree.
func (s *PackageStore) RemoveGame(gameName string) error {
	return os.RemoveAll(filepath.Join(s.baseDir, gameName))
}

// unzip unpacks a zip archive into destDir, rejecting entries that escape it.
func unzip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes extraction dir: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", f.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create dir for %s: %w", f.Name, err)
		}

		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes one archive entry, preserving its mode.
func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return nil
}
