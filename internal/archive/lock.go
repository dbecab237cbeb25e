package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Lock is the scoped exclusive lock every write path must hold before
// touching an archive's files on disk, and must release on every exit
// path (including failures). It combines an in-process mutex — so two
// goroutines in this server never race each other — with an flock(2) on
// a sentinel file, so a second server process pointed at the same
// archive root is also kept out. Belt and suspenders: neither layer
// alone is trusted to be sufficient.
type Lock struct {
	path string

	mu    sync.Mutex
	f     *os.File
	token uuid.UUID
}

// Token returns the identifier of the currently-held lease, or the zero
// UUID if nothing is held. Useful for correlating a stuck sentinel file
// back to the commit/log line that acquired it.
func (l *Lock) Token() uuid.UUID {
	return l.token
}

// NewLock returns a lock over the archive rooted at layout.Root. The
// sentinel file is created lazily on first Acquire.
func NewLock(l Layout) *Lock {
	return &Lock{path: l.LockPath()}
}

// Acquire blocks until the in-process mutex and the flock are both held,
// and returns a release function the caller must invoke exactly once,
// typically via `defer`, on every return path.
func (l *Lock) Acquire() (release func(), err error) {
	l.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("archive lock: prepare directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("archive lock: open sentinel: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		l.mu.Unlock()
		return nil, fmt.Errorf("archive lock: flock: %w", err)
	}
	l.f = f
	l.token = uuid.New()
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(l.token.String()+"\n"), 0)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
		l.f.Close()
		l.f = nil
		l.token = uuid.Nil
		l.mu.Unlock()
	}, nil
}
