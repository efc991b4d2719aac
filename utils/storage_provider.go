package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	StorageProviderLocal = "local"
	StorageProviderGCS   = "gcs"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore reads and writes small documents by object name.
type ObjectStore interface {
	Write(ctx context.Context, objectName string, data []byte, contentType string) error
	Read(ctx context.Context, objectName string) ([]byte, error)
}

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderLocal
	}
	return provider
}

// NewObjectStore builds the store selected by STORAGE_PROVIDER.
func NewObjectStore() (ObjectStore, error) {
	switch GetStorageProvider() {
	case StorageProviderGCS:
		bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
		if bucket == "" {
			return nil, errors.New("GCS_BUCKET is required")
		}
		return &GCSStore{Bucket: bucket}, nil
	case StorageProviderLocal:
		dir := strings.TrimSpace(os.Getenv("VERSION_INFO_DIR"))
		if dir == "" {
			dir = "."
		}
		return &LocalStore{Dir: dir}, nil
	default:
		return nil, errors.New("unsupported STORAGE_PROVIDER " + GetStorageProvider())
	}
}

type LocalStore struct {
	Dir string
}

func (s *LocalStore) path(objectName string) string {
	return filepath.Join(s.Dir, filepath.Base(objectName))
}

func (s *LocalStore) Write(_ context.Context, objectName string, data []byte, _ string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	tmp := s.path(objectName) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(objectName))
}

func (s *LocalStore) Read(_ context.Context, objectName string) ([]byte, error) {
	b, err := os.ReadFile(s.path(objectName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return b, err
}
