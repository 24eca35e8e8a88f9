package store

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns the directory holding crewdesk's local state.
func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.crewdesk).
	if v := strings.TrimSpace(os.Getenv("CREWDESK_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".crewdesk"), nil
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}
