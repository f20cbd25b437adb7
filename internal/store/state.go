package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	stateDir  = ".bqchat"
	stateFile = "current_session"
)

// StateFilePath returns the full path to the current-session state file,
// creating ~/.bqchat if needed.
func StateFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	stateDirPath := filepath.Join(homeDir, stateDir)
	if err := os.MkdirAll(stateDirPath, 0o750); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}

	return filepath.Join(stateDirPath, stateFile), nil
}

// LoadCurrentSessionID loads the active session ID from the local state file.
// Returns (nil, nil) if no current session is recorded.
func LoadCurrentSessionID() (*uuid.UUID, error) {
	filePath, err := StateFilePath()
	if err != nil {
		return nil, err
	}

	unlock, err := lockStateFile(filePath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	sessionIDStr := strings.TrimSpace(string(data))
	if sessionIDStr == "" {
		return nil, nil
	}

	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid session ID in state file: %w", err)
	}

	return &sessionID, nil
}

// SaveCurrentSessionID records the active session in the local state file.
// The write is atomic (temp file + rename) so concurrent CLI instances never
// observe a torn state file.
func SaveCurrentSessionID(sessionID uuid.UUID) error {
	filePath, err := StateFilePath()
	if err != nil {
		return err
	}

	unlock, err := lockStateFile(filePath)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(filepath.Dir(filePath), stateFile+".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(sessionID.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// ClearCurrentSessionID removes the current-session state file.
// Idempotent: clearing when no current session exists is not an error.
func ClearCurrentSessionID() error {
	filePath, err := StateFilePath()
	if err != nil {
		return err
	}

	unlock, err := lockStateFile(filePath)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}

	return nil
}

// lockStateFile takes an exclusive advisory lock on the state file, guarding
// the read-modify-write cycle across processes.
func lockStateFile(filePath string) (func(), error) {
	lock := flock.New(filePath + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock state file: %w", err)
	}
	return func() {
		_ = lock.Unlock()
	}, nil
}
