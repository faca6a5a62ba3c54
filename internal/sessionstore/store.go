// Package sessionstore implements the Session-State Store (C2): a JSON
// snapshot of every registered session's spawn metadata and role
// assignment, persisted atomically so the orchestrator can restore its
// session roster across a process restart.
//
// Grounded on the teacher's wingedpig-trellis-style WindowStore
// (write-tmp-then-rename) generalized from a single tmux-window map to the
// full PersistedSessionInfo roster named in SPEC_FULL.md §6.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/atomicfile"
	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/session"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// FileName is the fixed basename of the persisted document under the
// Crewly home directory.
const FileName = "session-state.json"

// Store holds the in-memory roster and mirrors it to disk on every
// mutation. Safe for concurrent use.
type Store struct {
	logger   *logger.Logger
	filePath string

	mu       sync.Mutex
	sessions map[string]v1.PersistedSessionInfo
	restored map[string]bool
}

// New creates a Store rooted at home (typically config.Config.Home, i.e.
// $CREWLY_HOME or ~/.crewly).
func New(home string, log *logger.Logger) *Store {
	return &Store{
		logger:   log.WithFields(zap.String("component", "sessionstore")),
		filePath: filepath.Join(home, FileName),
		sessions: make(map[string]v1.PersistedSessionInfo),
		restored: make(map[string]bool),
	}
}

// registerSession adds or overwrites a session's metadata, then
// best-effort auto-saves.
func (s *Store) RegisterSession(name string, opts v1.SessionOptions, runtimeType v1.RuntimeType, role, teamID, memberID string) {
	s.mu.Lock()
	s.sessions[name] = v1.PersistedSessionInfo{
		Name:        name,
		Cwd:         opts.Cwd,
		Command:     opts.Command,
		Args:        opts.Args,
		Env:         opts.Env,
		RuntimeType: runtimeType,
		Role:        role,
		TeamID:      teamID,
		MemberID:    memberID,
	}
	s.mu.Unlock()
	s.autoSave()
}

// UnregisterSession removes a session's metadata, then auto-saves.
func (s *Store) UnregisterSession(name string) {
	s.mu.Lock()
	delete(s.sessions, name)
	delete(s.restored, name)
	s.mu.Unlock()
	s.autoSave()
}

// UpdateSessionID records the adapter-supplied resume handle for name.
func (s *Store) UpdateSessionID(name, runtimeSessionID string) {
	s.mu.Lock()
	info, ok := s.sessions[name]
	if ok {
		info.RuntimeSessionID = runtimeSessionID
		s.sessions[name] = info
	}
	s.mu.Unlock()
	if ok {
		s.autoSave()
	}
}

// autoSave persists the roster in the background; failures are logged,
// never returned, per the "auto-save is best-effort" contract in §4.2.
func (s *Store) autoSave() {
	go func() {
		if err := s.SaveState(); err != nil {
			s.logger.Warn("session state auto-save failed", zap.Error(err))
		}
	}()
}

// SaveState writes every registered session's metadata to disk regardless
// of whether its process is still live, so a restart after a crash still
// records the intent to resume.
func (s *Store) SaveState() error {
	s.mu.Lock()
	infos := make([]v1.PersistedSessionInfo, 0, len(s.sessions))
	for _, info := range s.sessions {
		infos = append(infos, info)
	}
	s.mu.Unlock()

	doc := v1.SessionStateDocument{
		Version:  v1.CurrentSessionStateVersion,
		SavedAt:  time.Now().UTC(),
		Sessions: infos,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	if err := atomicfile.Write(s.filePath, data, 0o644); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// RestoreState reads the persisted document and recreates every entry's
// process via backend.CreateSession with the stored command and args
// as-is — no adapter-specific argument injection happens at this layer.
// Successfully recreated sessions are marked "restored" so C3/C4 can
// choose to resume rather than re-initialize. Returns the count of
// sessions recreated.
func (s *Store) RestoreState(backend session.Backend) (int, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read session state: %w", err)
	}

	var doc v1.SessionStateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse session state: %w", err)
	}

	if doc.Version != v1.CurrentSessionStateVersion {
		s.logger.Warn("unknown session state version, skipping restore",
			zap.Int("version", doc.Version))
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, info := range doc.Sessions {
		opts := v1.SessionOptions{
			Cwd:     info.Cwd,
			Command: info.Command,
			Args:    info.Args,
			Env:     info.Env,
		}
		if err := backend.CreateSession(info.Name, opts); err != nil {
			s.logger.Warn("failed to recreate session during restore",
				zap.String("session", info.Name), zap.Error(err))
			continue
		}
		s.sessions[info.Name] = info
		s.restored[info.Name] = true
		restored++
	}
	return restored, nil
}

// IsRestored reports whether name was recreated by RestoreState and has
// not since been cleared — the signal C3's resume-flag injection checks
// alongside a recorded RuntimeSessionID.
func (s *Store) IsRestored(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored[name]
}

// SessionInfo returns the persisted metadata for name, if any.
func (s *Store) SessionInfo(name string) (v1.PersistedSessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sessions[name]
	return info, ok
}

// ClearState deletes the on-disk document. In-memory metadata and the
// restored set are left untouched.
func (s *Store) ClearState() error {
	err := os.Remove(s.filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}

// ClearMetadata empties the in-memory roster and the restored set,
// without touching the on-disk file.
func (s *Store) ClearMetadata() {
	s.mu.Lock()
	s.sessions = make(map[string]v1.PersistedSessionInfo)
	s.restored = make(map[string]bool)
	s.mu.Unlock()
}

// ClearStateAndMetadata does both.
func (s *Store) ClearStateAndMetadata() error {
	s.ClearMetadata()
	return s.ClearState()
}
