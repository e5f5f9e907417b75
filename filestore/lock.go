package filestore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// lockInfo is the body of a lock file.
type lockInfo struct {
	Token     string    `json:"token"`
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"created_at"`
}

// createLock creates path exclusively and writes info into it. It returns an
// error matching fs.ErrExist when the lock is already held.
func createLock(path string, info lockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// readLock reads the lock at path. A body that cannot be parsed (a lock
// caught between creation and write, or written by a crashed process) is
// dated by the file's modification time.
func readLock(path string) (lockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockInfo{}, err
	}

	var info lockInfo
	if err := json.Unmarshal(data, &info); err == nil && !info.CreatedAt.IsZero() {
		return info, nil
	}

	st, err := os.Stat(path)
	if err != nil {
		return lockInfo{}, err
	}
	return lockInfo{CreatedAt: st.ModTime()}, nil
}

// removeLockIf removes the lock at path if it still carries token.
func removeLockIf(path, token string) error {
	info, err := readLock(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil && info.Token != token {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
