package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// ErrBlobNotFound is returned by a Blob when nothing has been persisted yet.
// Store treats it as an empty registry.
var ErrBlobNotFound = errors.New("registry blob not found")

// Blob is the persistence boundary for the encrypted registry: one opaque
// byte slice under a fixed name. Implementations must make Store atomic with
// respect to concurrent Load calls on the same process.
type Blob interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
}

// FileBlob persists the registry to a single file. Writes go through a temp
// file plus rename so a crash mid-write leaves the previous registry intact.
type FileBlob struct {
	Path string
}

// NewFileBlob creates a FileBlob rooted at path.
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{Path: path}
}

// Load implements Blob.
func (b *FileBlob) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Store implements Blob.
func (b *FileBlob) Store(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".registry-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, b.Path)
}

// RedisBlob persists the registry under a fixed key. Useful when several
// clients on one host share an account pool through a local Redis.
type RedisBlob struct {
	client *redis.Client
	key    string
}

// NewRedisBlob creates a RedisBlob writing to key on client.
func NewRedisBlob(client *redis.Client, key string) *RedisBlob {
	return &RedisBlob{client: client, key: key}
}

// Load implements Blob.
func (b *RedisBlob) Load(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Store implements Blob.
func (b *RedisBlob) Store(ctx context.Context, data []byte) error {
	return b.client.Set(ctx, b.key, data, 0).Err()
}
