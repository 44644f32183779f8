package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skydesk-ai/skydesk/logging"
)

// Manager persists sessions on the filesystem. Layout per session:
//
//	root/<sessionID>/session.json              identity and token counters
//	root/<sessionID>/conversations/<agent>.jsonl  one append-only log per agent
//	root/<sessionID>/workspace/                shared scratch directory
//
// Appends are serialized per (session, agent) stream; metadata updates are
// serialized per session. Streams of different agents never block each other.
type Manager struct {
	root   string
	logger logging.Logger

	mu         sync.Mutex
	streamLock map[string]*sync.Mutex // keyed sessionID + "/" + agent
	metaLock   map[string]*sync.Mutex // keyed sessionID
	workspaces map[string]*Workspace  // keyed sessionID
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Logger logging.Logger
}

// NewManager creates a Manager rooted at dir, creating it when missing.
func NewManager(root string, optFns ...func(o *ManagerOptions)) (*Manager, error) {
	opts := ManagerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions root: %w", err)
	}
	return &Manager{
		root:       root,
		logger:     opts.Logger,
		streamLock: make(map[string]*sync.Mutex),
		metaLock:   make(map[string]*sync.Mutex),
		workspaces: make(map[string]*Workspace),
	}, nil
}

// Root returns the sessions root directory.
func (m *Manager) Root() string { return m.root }

// Resolve returns the session identified by sessionID, creating a fresh one
// with a newly generated id when sessionID is empty or unknown. Only ids this
// manager could have issued are candidates for reuse; anything else is
// treated as unknown, so caller-supplied ids never become filesystem paths.
func (m *Manager) Resolve(sessionID, userID string) (string, error) {
	if uuid.Validate(sessionID) == nil {
		if _, err := os.Stat(m.sessionDir(sessionID)); err == nil {
			return sessionID, nil
		}
	}
	return m.create(userID)
}

func (m *Manager) create(userID string) (string, error) {
	sessionID := uuid.NewString()
	dir := m.sessionDir(sessionID)
	if err := os.MkdirAll(filepath.Join(dir, "conversations"), 0o755); err != nil {
		return "", fmt.Errorf("create session %s: %w", sessionID, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "workspace"), 0o755); err != nil {
		return "", fmt.Errorf("create session %s: %w", sessionID, err)
	}

	now := time.Now().UTC()
	meta := Metadata{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.writeMetadata(sessionID, &meta); err != nil {
		return "", err
	}

	m.logger.Info("session.created", "session_id", sessionID, "user_id", userID)
	return sessionID, nil
}

// Append writes a message to the (session, agent) conversation log. It is the
// only log mutator; concurrent appends to the same stream are serialized.
func (m *Manager) Append(sessionID, agent string, msg Message) error {
	lock := m.lockFor(&m.streamLock, sessionID+"/"+agent)
	lock.Lock()
	defer lock.Unlock()

	path := m.logPath(sessionID, agent)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("append to %s/%s: %w", sessionID, agent, err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("append to %s/%s: %w", sessionID, agent, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("append to %s/%s: %w", sessionID, agent, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s/%s: %w", sessionID, agent, err)
	}

	return m.touch(sessionID)
}

// History replays the (session, agent) conversation log in order. A missing
// log is an empty history.
func (m *Manager) History(sessionID, agent string) ([]Message, error) {
	f, err := os.Open(m.logPath(sessionID, agent))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history %s/%s: %w", sessionID, agent, err)
	}
	defer f.Close()

	var msgs []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("history %s/%s: corrupt entry: %w", sessionID, agent, err)
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history %s/%s: %w", sessionID, agent, err)
	}
	return msgs, nil
}

// Metadata reads the session.json document.
func (m *Manager) Metadata(sessionID string) (*Metadata, error) {
	data, err := os.ReadFile(m.metaPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", sessionID, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("metadata %s: %w", sessionID, err)
	}
	return &meta, nil
}

// AddUsage accumulates token counters onto the session metadata.
func (m *Manager) AddUsage(sessionID string, inputTokens, outputTokens int) error {
	lock := m.lockFor(&m.metaLock, sessionID)
	lock.Lock()
	defer lock.Unlock()

	meta, err := m.Metadata(sessionID)
	if err != nil {
		return err
	}
	meta.InputTokens += inputTokens
	meta.OutputTokens += outputTokens
	meta.TotalTokens += inputTokens + outputTokens
	meta.UpdatedAt = time.Now().UTC()
	return m.writeMetadata(sessionID, meta)
}

// Workspace returns the session's shared scratch directory handle. All agents
// of a session receive the same instance, so its lock is session-wide.
func (m *Manager) Workspace(sessionID string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[sessionID]
	if !ok {
		ws = &Workspace{dir: filepath.Join(m.sessionDir(sessionID), "workspace")}
		m.workspaces[sessionID] = ws
	}
	return ws
}

// FindByUser returns the most recently updated session for a user, or false
// when the user has none.
func (m *Manager) FindByUser(userID string) (string, bool) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return "", false
	}

	var bestID string
	var bestTime time.Time
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := m.Metadata(entry.Name())
		if err != nil || meta.UserID != userID {
			continue
		}
		if meta.UpdatedAt.After(bestTime) {
			bestTime = meta.UpdatedAt
			bestID = meta.SessionID
		}
	}
	return bestID, bestID != ""
}

// touch bumps the session's UpdatedAt.
func (m *Manager) touch(sessionID string) error {
	lock := m.lockFor(&m.metaLock, sessionID)
	lock.Lock()
	defer lock.Unlock()

	meta, err := m.Metadata(sessionID)
	if err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	return m.writeMetadata(sessionID, meta)
}

func (m *Manager) writeMetadata(sessionID string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata %s: %w", sessionID, err)
	}
	if err := os.WriteFile(m.metaPath(sessionID), data, 0o644); err != nil {
		return fmt.Errorf("metadata %s: %w", sessionID, err)
	}
	return nil
}

func (m *Manager) lockFor(locks *map[string]*sync.Mutex, key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := (*locks)[key]
	if !ok {
		lock = &sync.Mutex{}
		(*locks)[key] = lock
	}
	return lock
}

func (m *Manager) sessionDir(sessionID string) string {
	return filepath.Join(m.root, sessionID)
}

func (m *Manager) metaPath(sessionID string) string {
	return filepath.Join(m.sessionDir(sessionID), "session.json")
}

func (m *Manager) logPath(sessionID, agent string) string {
	return filepath.Join(m.sessionDir(sessionID), "conversations", agent+".jsonl")
}

// Workspace is a session's shared scratch directory. The embedded lock
// serializes writes by the native file tools.
type Workspace struct {
	dir string
	mu  sync.Mutex
}

// Dir returns the workspace directory path.
func (w *Workspace) Dir() string { return w.dir }

// Lock acquires the workspace write lock.
func (w *Workspace) Lock() { w.mu.Lock() }

// Unlock releases the workspace write lock.
func (w *Workspace) Unlock() { w.mu.Unlock() }
