package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/gautamrajesh007/Interceptor/internal/model"
)

// Fixed storage keys. Both are written and removed together.
const (
	KeyToken = "interceptor_token"
	KeyUser  = "interceptor_user"
)

const (
	sessionFileName = "session.json"
	appDirName      = "interceptor-console"
)

// Record is the persisted form of a session. The zero Record means signed
// out.
type Record struct {
	Token string      `json:"interceptor_token,omitempty"`
	User  *model.User `json:"interceptor_user,omitempty"`
}

// Complete reports whether both halves are present.
func (r Record) Complete() bool { return r.Token != "" && r.User != nil }

// Storage persists a Record across console restarts.
type Storage interface {
	// Load returns the zero Record when nothing is stored.
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// FileStorage keeps the session in a JSON file readable only by its owner.
type FileStorage struct {
	dir string
}

// NewFileStorage stores session.json under dir. An empty dir resolves to the
// XDG state directory.
func NewFileStorage(dir string) *FileStorage {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &FileStorage{dir: dir}
}

func (s *FileStorage) Path() string {
	return filepath.Join(s.dir, sessionFileName)
}

func (s *FileStorage) Load(context.Context) (Record, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("reading session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing session: %w", err)
	}
	return rec, nil
}

// Save writes the record with a temp-file-then-rename so a crash never
// leaves a token without its user.
func (s *FileStorage) Save(_ context.Context, rec Record) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming session file: %w", err)
	}
	committed = true
	return nil
}

func (s *FileStorage) Clear(context.Context) error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}

// RedisStorage keeps the session in Redis, for operator hosts where several
// console processes share one sign-in.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage connects and pings the server. prefix namespaces the two
// keys, e.g. "console:alice:".
func NewRedisStorage(addr, password string, db int, prefix string) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStorage{client: client, prefix: prefix}, nil
}

func (s *RedisStorage) tokenKey() string { return s.prefix + KeyToken }
func (s *RedisStorage) userKey() string  { return s.prefix + KeyUser }

func (s *RedisStorage) Load(ctx context.Context) (Record, error) {
	vals, err := s.client.MGet(ctx, s.tokenKey(), s.userKey()).Result()
	if err != nil {
		return Record{}, fmt.Errorf("reading session: %w", err)
	}
	token, _ := vals[0].(string)
	rawUser, _ := vals[1].(string)
	if token == "" || rawUser == "" {
		return Record{}, nil
	}
	var user model.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return Record{}, fmt.Errorf("parsing session user: %w", err)
	}
	return Record{Token: token, User: &user}, nil
}

func (s *RedisStorage) Save(ctx context.Context, rec Record) error {
	if !rec.Complete() {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(rec.User)
	if err != nil {
		return fmt.Errorf("marshaling session user: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(), rec.Token, 0)
		pipe.Set(ctx, s.userKey(), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (s *RedisStorage) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.tokenKey(), s.userKey()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error { return s.client.Close() }
