//go:build !windows

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/dixieflatline76/squareframe/config"
)

var lockFile *os.File

// acquireLock takes an exclusive flock on a file in the temp directory.
func acquireLock() (bool, error) {
	path := filepath.Join(os.TempDir(), config.AppName+".lock")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	lockFile = file
	return true, nil
}

// releaseLock drops the lock and removes the lock file.
func releaseLock() {
	if lockFile == nil {
		return
	}
	unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	lockFile.Close()
	os.Remove(lockFile.Name())
	lockFile = nil
}
