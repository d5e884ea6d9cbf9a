// Package lockfile guards a backup root against concurrent runs.
//
// The lock is a small JSON file created with O_EXCL. The holder refreshes it
// on a heartbeat; a lock that has not been refreshed for staleAfter is
// considered abandoned and may be taken over.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// LockFileName is the name of the lock file created in the backup root.
const LockFileName = ".~pgl-svnbackup.lock"

// Owner is what a lock file records about its holder.
type Owner struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	AppID      string    `json:"appID"`
	LastUpdate time.Time `json:"lastUpdate"`
	// Nonce resolves races between two processes taking over the same stale lock.
	Nonce string `json:"nonce,omitempty"`
}

// ErrLockActive is returned when a live run holds the lock.
type ErrLockActive struct {
	Owner
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("backup root is locked by PID %d on host '%s' (%s), last heartbeat %s ago",
		e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

var (
	ErrLostRace        = errors.New("lost race during stale lock takeover")
	ErrCorruptLockFile = errors.New("lock file is corrupt or empty")
)

// vars so tests can shorten them
var (
	heartbeatInterval = 1 * time.Minute
	staleAfter        = 3 * heartbeatInterval
	acquireAttempts   = 3
	retryDelay        = 100 * time.Millisecond
)

// Lock is a held lock. Release it when the run is over.
type Lock struct {
	path  string
	owner Owner

	stop context.CancelFunc
	done chan struct{}

	mu   sync.Mutex
	held bool
}

// Acquire takes the lock in dirPath. It returns *ErrLockActive when another
// live run holds it.
func Acquire(ctx context.Context, dirPath, appID string) (*Lock, error) {
	lockPath := filepath.Join(dirPath, LockFileName)

	for range acquireAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := create(lockPath, appID)
		if err == nil {
			return lock.start(), nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		owner, readErr := readOwner(lockPath)
		switch {
		case errors.Is(readErr, os.ErrNotExist):
			// released between our create and read
			continue
		case errors.Is(readErr, ErrCorruptLockFile):
			plog.Warn("Found corrupt lock file, treating as stale", "path", lockPath, "error", readErr)
		case readErr != nil:
			time.Sleep(retryDelay)
			continue
		default:
			age := time.Since(owner.LastUpdate)
			if age < staleAfter {
				return nil, &ErrLockActive{Owner: owner, TimeSince: age}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", owner.PID, "host", owner.Hostname, "age", age.Truncate(time.Second))
		}

		lock, err = takeOver(lockPath, appID)
		if err != nil {
			if errors.Is(err, ErrLostRace) {
				plog.Debug("Lock takeover race lost, retrying acquisition")
			} else {
				plog.Warn("Failed to take over lock, retrying", "error", err)
			}
			time.Sleep(retryDelay)
			continue
		}
		return lock.start(), nil
	}
	return nil, fmt.Errorf("failed to acquire lock after %d attempts", acquireAttempts)
}

func newOwner(appID string) (Owner, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Owner{}, err
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Owner{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return Owner{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		AppID:      appID,
		LastUpdate: time.Now().UTC(),
		Nonce:      hex.EncodeToString(nonce),
	}, nil
}

// create succeeds only when no lock file exists.
func create(lockPath, appID string) (*Lock, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	owner, err := newOwner(appID)
	if err == nil {
		err = json.NewEncoder(f).Encode(owner)
	}
	if err != nil {
		f.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: lockPath, owner: owner, held: true}, nil
}

// takeOver replaces a stale lock and reads it back to check it won.
func takeOver(lockPath, appID string) (*Lock, error) {
	owner, err := newOwner(appID)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(lockPath, owner); err != nil {
		return nil, err
	}
	current, err := readOwner(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if current.PID != owner.PID || current.Nonce != owner.Nonce {
		return nil, ErrLostRace
	}
	plog.Debug("Took over stale lock", "path", lockPath)
	return &Lock{path: lockPath, owner: owner, held: true}, nil
}

func (l *Lock) start() *Lock {
	removeOldTempFiles(l.path)
	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	l.done = make(chan struct{})
	go l.heartbeat(ctx)
	return l
}

func (l *Lock) heartbeat(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.owner.LastUpdate = time.Now().UTC()
			if err := writeAtomic(l.path, l.owner); err != nil {
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// Release stops the heartbeat and removes the lock file. It is safe to call
// more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.held = false

	if l.stop != nil {
		l.stop()
		<-l.done
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

// writeAtomic writes owner to a temp file next to lockPath and renames it
// over the lock, so readers never observe a partial file.
func writeAtomic(lockPath string, owner Owner) error {
	tmp, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(owner); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), lockPath); err != nil {
		return fmt.Errorf("failed to rename temp lock file: %w", err)
	}
	return nil
}

// readOwner reads the lock file, retrying briefly over empty or partial content.
func readOwner(lockPath string) (Owner, error) {
	var lastErr error
	for range 3 {
		data, err := os.ReadFile(lockPath)
		if err != nil {
			return Owner{}, err
		}
		var owner Owner
		if len(data) == 0 {
			lastErr = errors.New("lock file is empty")
		} else if lastErr = json.Unmarshal(data, &owner); lastErr == nil {
			return owner, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return Owner{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, lastErr)
}

// removeOldTempFiles deletes temp files of crashed heartbeats. Only files
// older than staleAfter are touched so a live writer is never disturbed.
func removeOldTempFiles(lockPath string) {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp"))
	if err != nil {
		return
	}
	threshold := time.Now().Add(-staleAfter)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		plog.Debug("Removing old temporary lock file", "path", match)
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove leftover temporary lock file", "path", match, "error", err)
		}
	}
}
