//go:build !unix

package ledger

import "os"

// acquireLock on platforms without flock(2) falls back to lock-file
// creation only. Concurrent writers on these platforms rely on the atomic
// rename for consistency.
func acquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return func() { _ = f.Close() }, nil
}
