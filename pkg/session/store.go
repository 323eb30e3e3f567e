package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stingersec/stinger/pkg/history"
)

// Store archives committed turn messages as JSONL, one file per session.
// Files are append-only and fsync'd on every write so a crash never loses
// an acknowledged turn.
type Store struct {
	dir string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates the archive directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".stinger", "sessions")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Session store initialized")

	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Append writes the messages to the session's archive in order.
func (s *Store) Append(sessionID string, messages []history.Message) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(s.path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, msg := range messages {
		line, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush session file: %w", err)
	}
	return f.Sync()
}

// Load reads a session's full archived transcript. A missing archive is an
// empty transcript, not an error.
func (s *Store) Load(sessionID string) ([]history.Message, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	var messages []history.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg history.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			log.Warn().Str("session_id", sessionID).Err(err).Msg("Skipping corrupt archive line")
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return messages, nil
}

// List returns the ids of all archived sessions.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	return ids, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}
