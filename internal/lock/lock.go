package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
)

const fileName = "nestd.lock"

// Info is the metadata the holder writes into the lock file.
type Info struct {
	PID     int       `toml:"pid"`
	Started time.Time `toml:"started"`
	Socket  string    `toml:"socket,omitempty"`
}

// HeldError is returned when another daemon already serves the profile.
type HeldError struct {
	Info
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("profile already served by nestd PID %d since %s (%s)",
		e.PID, e.Started.Format(time.RFC3339), e.Path)
}

// Lock is an acquired profile lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, fileName)
}

// Acquire takes the exclusive lock on a profile directory and records the
// caller's PID and socket. Returns *HeldError if another process has it.
func Acquire(dir, socket string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	path := Path(dir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		held := &HeldError{Path: path}
		if info, rerr := Read(dir); rerr == nil {
			held.Info = *info
		}
		return nil, held
	}

	info := Info{PID: os.Getpid(), Started: time.Now().UTC().Truncate(time.Second), Socket: socket}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := toml.NewEncoder(f).Encode(info); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: path}, nil
}

// Read returns the metadata of the current or last holder of dir's lock.
func Read(dir string) (*Info, error) {
	var info Info
	if _, err := toml.DecodeFile(Path(dir), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}
