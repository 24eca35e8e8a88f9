package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Fixed keys for the persisted session pair.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// KV is the persistence port for client-local durable state.
// Get reports ok=false when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Open returns the KV adapter for backend rooted at dir (ConfigDir when empty).
func Open(ctx context.Context, backend Backend, dir string) (KV, error) {
	if strings.TrimSpace(dir) == "" {
		d, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	switch backend {
	case "", BackendFile:
		return &File{Path: filepath.Join(dir, "session.json")}, nil
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(dir, "session.sqlite"))
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s (want file|sqlite|memory)", backend)
	}
}
