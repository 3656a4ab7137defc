package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Storage is durable object storage addressed by key; Put returns the public URL.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// LocalStorage writes objects under Dir and serves them from PublicBaseURL.
// cmd/api mounts Dir at /media.
type LocalStorage struct {
	Dir           string
	PublicBaseURL string
}

func NewLocalStorage(dir, publicBaseURL string) (*LocalStorage, error) {
	if dir == "" {
		return nil, errors.New("media: storage dir is required")
	}
	if publicBaseURL == "" {
		return nil, errors.New("media: public base url is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create storage dir: %w", err)
	}
	return &LocalStorage{Dir: dir, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("media: invalid key %q", key)
	}

	dst := filepath.Join(s.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return s.PublicBaseURL + "/" + clean, nil
}
