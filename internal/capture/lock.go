package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// DeviceLock gives one process exclusive use of a capture device.
type DeviceLock struct {
	path string
	lock *flock.Flock
}

// NewDeviceLock returns a lock file for device under dir.
func NewDeviceLock(dir, device string) *DeviceLock {
	name := strings.Trim(strings.ReplaceAll(device, string(os.PathSeparator), "_"), "_")
	path := filepath.Join(dir, name+".lock")
	return &DeviceLock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock without blocking. A held lock is a device access error.
func (l *DeviceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: device in use (%s)", ErrDeviceAccess, l.path)
	}
	return nil
}

func (l *DeviceLock) Release() error {
	return l.lock.Unlock()
}

func (l *DeviceLock) Path() string { return l.path }
