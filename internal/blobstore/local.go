package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type localConfig struct {
	Dir    string `json:"dir"`
	Bucket string `json:"bucket"`
}

type localStore struct {
	dir    string
	bucket string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if config.Bucket == "" {
		config.Bucket = "local"
	}
	return &localStore{dir: config.Dir, bucket: config.Bucket}, nil
}

func (s *localStore) Type() string {
	return "local"
}

func (s *localStore) Bucket() string {
	return s.bucket
}

func (s *localStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_ = ctx
	_ = size
	_ = contentType
	cleaned, err := s.cleanKey(key)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, cleaned)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	cleaned, err := s.cleanKey(key)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.dir, cleaned))
}

func (s *localStore) cleanKey(key string) (string, error) {
	cleaned := filepath.Clean(strings.TrimPrefix(key, "/"))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid blob key")
	}
	return cleaned, nil
}
