//go:build unix

package ledger

import (
	"os"
	"syscall"
)

// acquireLock takes an exclusive advisory lock on the given sidecar file,
// blocking until the lock is available. The returned function releases the
// lock and closes the file.
func acquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, err
	}

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
