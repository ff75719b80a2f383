package supervisor

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// acquirePIDFile takes an exclusive advisory lock on the PID file and
// writes the daemon's pid into it. The lock enforces single-instance
// operation; the returned release drops the lock and removes the file.
func acquirePIDFile(path string) (func(), error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock pidfile %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("pidfile %s is locked: another supervice instance is running", path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("write pidfile %s: %w", path, err)
	}

	var released bool
	return func() {
		if released {
			return
		}
		released = true
		_ = fl.Unlock()
		_ = os.Remove(path)
	}, nil
}
