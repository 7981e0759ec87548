package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"spinevision-backend/internal/shared/storage/artifact"
	"spinevision-backend/internal/shared/util"
)

// Store implements artifact.Store using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a local artifact store rooted at baseDir.
func New(baseDir string) artifact.Store {
	return &Store{baseDir: baseDir}
}

// Save writes the artifact under its kind (and scope, if any) with a
// collision-resistant name: timestamp, random suffix, sanitized original.
func (s *Store) Save(ctx context.Context, kind artifact.Kind, scope, fileName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sanitized, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}

	finalName := fmt.Sprintf("%s_%s_%s", time.Now().UTC().Format("20060102_150405"), randomSuffix(), sanitized)

	segments := []string{string(kind)}
	if scope != "" {
		segments = append(segments, scope)
	}
	segments = append(segments, finalName)
	key := path.Join(segments...)

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	return key, nil
}

// Open opens a stored artifact for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, artifact.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a stored artifact. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PublicURL maps a storage key to its served path under the public mount.
func (s *Store) PublicURL(key string) string {
	return artifact.PublicMount + "/" + path.Clean(strings.ReplaceAll(key, "\\", "/"))
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", artifact.ErrInvalidKey
	}
	return filepath.Join(s.baseDir, clean), nil
}

func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%08d", time.Now().UnixNano()%1e8)
	}
	return hex.EncodeToString(b[:])
}
