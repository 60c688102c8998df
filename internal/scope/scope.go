// Package scope provides guard values for process-wide side effects that must
// be undone on every exit path: changing the working directory, placing a
// symbolic link and writing a temporary file.
//
// Each constructor performs the side effect and returns a release function.
// Callers defer the release; calling it more than once is a no-op.
//
//	restore, err := scope.Chdir(dir)
//	if err != nil {
//		return err
//	}
//	defer restore()
package scope

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Release undoes the side effect of a guard.
type Release func() error

func once(fn func() error) Release {
	var o sync.Once
	var err error
	return func() error {
		o.Do(func() { err = fn() })
		return err
	}
}

func noop() error { return nil }

// Chdir changes the working directory to dir and returns a Release that
// restores the previous one. An empty dir leaves the working directory
// untouched.
func Chdir(dir string) (Release, error) {
	if dir == "" {
		return noop, nil
	}

	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("failed to change directory to %s: %w", dir, err)
	}

	return once(func() error {
		if err := os.Chdir(prev); err != nil {
			return fmt.Errorf("failed to restore working directory %s: %w", prev, err)
		}
		return nil
	}), nil
}

// Symlink creates link pointing to target. The link must not exist yet; the
// Release removes it.
func Symlink(target, link string) (Release, error) {
	if _, err := os.Lstat(link); err == nil {
		return nil, fmt.Errorf("refusing to replace existing file %s", link)
	}
	if err := os.Symlink(target, link); err != nil {
		return nil, fmt.Errorf("failed to link %s to %s: %w", link, target, err)
	}

	return once(func() error {
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove link %s: %w", link, err)
		}
		return nil
	}), nil
}

// TempFile writes content to a new file in dir named after pattern (see
// os.CreateTemp) and returns its absolute path. The Release deletes it.
func TempFile(dir, pattern string, content []byte) (string, Release, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	path := f.Name()
	remove := once(func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove temporary file %s: %w", path, err)
		}
		return nil
	})

	if _, err := f.Write(content); err != nil {
		f.Close()
		remove()
		return "", nil, fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		remove()
		return "", nil, fmt.Errorf("failed to close temporary file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		remove()
		return "", nil, err
	}
	return abs, remove, nil
}
