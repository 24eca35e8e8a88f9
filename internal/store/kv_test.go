package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, KeyToken); err != nil || ok {
		t.Fatalf("expected empty store; ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, KeyToken, "tok-1"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := kv.Set(ctx, KeyUser, `{"id":"u1"}`); err != nil {
		t.Fatalf("set user: %v", err)
	}
	if err := kv.Set(ctx, KeyToken, "tok-2"); err != nil {
		t.Fatalf("overwrite token: %v", err)
	}
	v, ok, err := kv.Get(ctx, KeyToken)
	if err != nil || !ok || v != "tok-2" {
		t.Fatalf("expected tok-2; got %q ok=%v err=%v", v, ok, err)
	}

	if err := kv.Delete(ctx, KeyToken, KeyUser); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, k := range []string{KeyToken, KeyUser} {
		if _, ok, _ := kv.Get(ctx, k); ok {
			t.Fatalf("expected %s cleared", k)
		}
	}
	// Deleting absent keys is fine.
	if err := kv.Delete(ctx, KeyToken); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestFileKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	exerciseKV(t, &File{Path: path})

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed once empty; stat err=%v", err)
	}
}

func TestFileKV_WritesOwnerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	f := &File{Path: path}
	if err := f.Set(context.Background(), KeyToken, "secret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600; got %v", fi.Mode().Perm())
	}
}

func TestFileKV_CorruptFileIsRecoverable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := &File{Path: path}
	if _, _, err := f.Get(context.Background(), KeyToken); err == nil {
		t.Fatalf("expected read error on corrupt file")
	}
	if err := f.Delete(context.Background(), KeyToken, KeyUser); err != nil {
		t.Fatalf("delete on corrupt file: %v", err)
	}
	if _, ok, err := f.Get(context.Background(), KeyToken); err != nil || ok {
		t.Fatalf("expected clean state; ok=%v err=%v", ok, err)
	}
}

func TestSQLiteKV(t *testing.T) {
	kv, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "session.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	exerciseKV(t, kv)
}

func TestSQLiteKV_OwnerOnlyFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.sqlite")
	kv, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	if err := kv.Set(context.Background(), KeyToken, "secret"); err != nil {
		t.Fatalf("set: %v", err)
	}

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		fi, err := os.Stat(p)
		if os.IsNotExist(err) && p != path {
			continue
		}
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if fi.Mode().Perm() != 0o600 {
			t.Fatalf("%s: expected 0600; got %v", filepath.Base(p), fi.Mode().Perm())
		}
	}
}

func TestOpen_UsesConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CREWDESK_CONFIG_DIR", dir)

	kv, err := Open(context.Background(), BackendFile, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f, ok := kv.(*File)
	if !ok {
		t.Fatalf("expected *File; got %T", kv)
	}
	if f.Path != filepath.Join(dir, "session.json") {
		t.Fatalf("unexpected path %q", f.Path)
	}

	if _, err := Open(context.Background(), "etcd", dir); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
