// Package lockfile guards a ClaimCheck state directory against a second
// server process. The lock is an flock on a file inside the directory, so
// the kernel drops it when the holder exits, however it exits.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the file created inside the state directory.
const LockFileName = "claimcheck.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the exclusive lock on stateDir, creating the directory
// if needed. It fails fast with a *LockError when another process holds it.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)

	// O_TRUNC would wipe the holder's pid before we know we own the lock.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(file)
		file.Close()
		slog.Error("lockfile.AcquireLock: state directory is in use", "lock_path", path, "holder_pid", holder, "error", err)
		return nil, &LockError{Path: path, HolderPID: holder, Err: err}
	}

	if err := writePID(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to record pid in %s: %w", path, err)
	}

	slog.Info("lockfile.AcquireLock: acquired state directory lock", "lock_path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Calling it twice is harmless.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the lock so a waiting process never sees
	// our pid in a file it has just locked.
	removeErr := os.Remove(l.path)
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err := errors.Join(removeErr, unlockErr, closeErr); err != nil {
		slog.Warn("lockfile.Release: cleanup incomplete", "lock_path", l.path, "error", err)
		return err
	}
	slog.Info("lockfile.Release: released state directory lock", "lock_path", l.path)
	return nil
}

// LockError reports a state directory held by another process.
type LockError struct {
	Path      string
	HolderPID int
	Err       error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another ClaimCheck server is using this state directory (lock file %s", e.Path)
	switch {
	case e.HolderPID <= 0:
	case processAlive(e.HolderPID):
		fmt.Fprintf(&b, ", held by pid %d", e.HolderPID)
	default:
		fmt.Fprintf(&b, ", last held by pid %d which is no longer running", e.HolderPID)
	}
	b.WriteString(")")
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Err
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte("pid="+strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}
	return f.Sync()
}

// readHolder returns the pid recorded in the lock file, or 0.
func readHolder(f *os.File) int {
	buf := make([]byte, 64)
	n, _ := f.ReadAt(buf, 0)
	return parsePID(string(buf[:n]))
}

func parsePID(content string) int {
	content = strings.TrimSpace(content)
	pid, err := strconv.Atoi(strings.TrimPrefix(content, "pid="))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
