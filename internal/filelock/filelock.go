// internal/filelock/filelock.go

// Package filelock guards small state files shared between goroutines and
// processes: an exclusive flock on a sibling ".lock" file plus atomic
// temp-file-and-rename replacement.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// With runs fn while holding an exclusive advisory lock for path.
// The lock lives on path+".lock" so it survives rename-based rewrites of path.
func With(path string, fn func() error) error {
	lf, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer lf.Close()

	fd := int(lf.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("flock %s: %w", path, err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	return fn()
}

// WriteAtomic replaces path with data. Readers see either the old or the new
// content, never a partial write.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		return err
	}
	return os.Rename(name, path)
}
