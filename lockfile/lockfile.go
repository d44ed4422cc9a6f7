// Package lockfile implements ltm.lock, the run lock that keeps two
// translation runs from appending to the same output store.
//
// The lock is created with O_EXCL and records who holds it. A lock left
// behind by a process that no longer exists on this host is reclaimed;
// locks from other hosts are never reclaimed automatically (use
// `ltm unlock`).
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// LockFileName is the lock file name inside the lock directory.
const LockFileName = "ltm.lock"

// ErrLocked is returned by Acquire when a live run holds the lock.
var ErrLocked = errors.New("another ltm run holds the lock")

// Holder describes the run owning the lock.
type Holder struct {
	PID       int       `yaml:"pid"`
	Hostname  string    `yaml:"hostname"`
	RunID     string    `yaml:"run_id"`
	StartedAt time.Time `yaml:"started_at"`
}

// Lock is a held run lock.
type Lock struct {
	Holder
	path string
}

// Path returns the lock file path.
func Path(dir string) string {
	return filepath.Join(dir, LockFileName)
}

// Acquire takes the lock in dir, creating dir when needed.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	host, _ := os.Hostname()
	l := &Lock{
		Holder: Holder{
			PID:       os.Getpid(),
			Hostname:  host,
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC().Truncate(time.Second),
		},
		path: Path(dir),
	}

	// Two tries: the second follows reclaiming a stale lock.
	for i := 0; i < 2; i++ {
		err := l.create()
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		holder, rerr := Read(dir)
		if rerr != nil {
			return nil, fmt.Errorf("%w (unreadable lock %s: %v)", ErrLocked, l.path, rerr)
		}
		if !holder.Stale(host) {
			return nil, fmt.Errorf("%w: pid %d on %s since %s", ErrLocked,
				holder.PID, holder.Hostname, holder.StartedAt.Format(time.RFC3339))
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, l.path)
}

func (l *Lock) create() error {
	data, err := yaml.Marshal(l.Holder)
	if err != nil {
		return fmt.Errorf("marshaling lock: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(l.path)
		return fmt.Errorf("writing %s: %w", l.path, err)
	}
	return f.Close()
}

// Release removes the lock if it is still ours.
func (l *Lock) Release() error {
	holder, err := Read(filepath.Dir(l.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if holder.RunID != l.RunID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", l.path, err)
	}
	return nil
}

// Read returns the current holder of the lock in dir.
func Read(dir string) (*Holder, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing lock: %w", err)
	}
	return &h, nil
}

// Remove deletes the lock in dir regardless of its holder. It reports
// whether a lock existed.
func Remove(dir string) (bool, error) {
	err := os.Remove(Path(dir))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stale reports whether the holder is a dead process on host.
func (h *Holder) Stale(host string) bool {
	if h.Hostname != host || h.PID <= 0 {
		return false
	}
	return !processAlive(h.PID)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
