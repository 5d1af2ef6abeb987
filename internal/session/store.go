package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/codeassist/codeassist/internal/fault"
	"github.com/codeassist/codeassist/internal/fsutil"
	"github.com/codeassist/codeassist/internal/message"
)

// Store persists per-task conversation files under <base>/tasks/<task_id>/.
type Store struct {
	mu   sync.RWMutex
	base string
}

// NewStore creates a store rooted at the given .ai directory.
func NewStore(base string) *Store {
	return &Store{base: base}
}

// TaskDir returns the directory for a task.
func (s *Store) TaskDir(taskID string) string {
	return filepath.Join(s.base, "tasks", taskID)
}

// Exists reports whether a task directory is present.
func (s *Store) Exists(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, err := os.Stat(s.TaskDir(taskID))
	return err == nil && info.IsDir()
}

// Create initializes a task directory with empty histories and the given
// metadata.
func (s *Store) Create(taskID string, meta TaskMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fault.Wrap(fault.IOError, err, "cannot create task dir for %s", taskID)
	}
	if err := s.writeJSON(filepath.Join(dir, apiHistoryFile), []message.Message{}); err != nil {
		return err
	}
	if err := s.writeJSON(filepath.Join(dir, uiMessagesFile), []UIMessage{}); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(dir, metadataFile), meta)
}

// LoadAPI loads the API conversation history. A missing history file reads
// as an empty conversation.
func (s *Store) LoadAPI(taskID string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := []message.Message{}
	if _, err := s.readJSONOptional(taskID, apiHistoryFile, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendAPI appends messages to the API history.
func (s *Store) AppendAPI(taskID string, msgs ...message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.taskDirExists(taskID) {
		return fault.New(fault.NotFound, "task not found: %s", taskID)
	}
	existing := []message.Message{}
	if _, err := s.readJSONOptional(taskID, apiHistoryFile, &existing); err != nil {
		return err
	}
	existing = append(existing, msgs...)
	return s.writeJSON(filepath.Join(s.TaskDir(taskID), apiHistoryFile), existing)
}

// ReplaceAPI overwrites the API history, used after compaction.
func (s *Store) ReplaceAPI(taskID string, msgs []message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.taskDirExists(taskID) {
		return fault.New(fault.NotFound, "task not found: %s", taskID)
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return s.writeJSON(filepath.Join(s.TaskDir(taskID), apiHistoryFile), msgs)
}

// LoadUI loads the UI message stream. A missing file reads as empty.
func (s *Store) LoadUI(taskID string) ([]UIMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := []UIMessage{}
	if _, err := s.readJSONOptional(taskID, uiMessagesFile, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendUI appends entries to the UI message stream.
func (s *Store) AppendUI(taskID string, msgs ...UIMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.taskDirExists(taskID) {
		return fault.New(fault.NotFound, "task not found: %s", taskID)
	}
	existing := []UIMessage{}
	if _, err := s.readJSONOptional(taskID, uiMessagesFile, &existing); err != nil {
		return err
	}
	existing = append(existing, msgs...)
	return s.writeJSON(filepath.Join(s.TaskDir(taskID), uiMessagesFile), existing)
}

// LoadMetadata loads the task metadata.
func (s *Store) LoadMetadata(taskID string) (TaskMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var meta TaskMetadata
	if err := s.readJSON(taskID, metadataFile, &meta); err != nil {
		return TaskMetadata{}, err
	}
	return meta, nil
}

// SaveMetadata overwrites the task metadata.
func (s *Store) SaveMetadata(taskID string, meta TaskMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.taskDirExists(taskID) {
		return fault.New(fault.NotFound, "task not found: %s", taskID)
	}
	return s.writeJSON(filepath.Join(s.TaskDir(taskID), metadataFile), meta)
}

// Delete removes a task directory entirely. Deleting a task that is already
// gone succeeds, so store and index deletion can be retried as a pair.
func (s *Store) Delete(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.TaskDir(taskID)); err != nil {
		return fault.Wrap(fault.IOError, err, "cannot delete task %s", taskID)
	}
	return nil
}

// Size returns the total byte size of a task directory.
func (s *Store) Size(taskID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fsutil.DirSize(s.TaskDir(taskID))
}

func (s *Store) taskDirExists(taskID string) bool {
	info, err := os.Stat(s.TaskDir(taskID))
	return err == nil && info.IsDir()
}

// readJSON decodes a task file, classifying failures as NotFound or Corrupt.
func (s *Store) readJSON(taskID, file string, v any) error {
	path := filepath.Join(s.TaskDir(taskID), file)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fault.New(fault.NotFound, "task not found: %s", taskID)
		}
		return fault.Wrap(fault.IOError, err, "cannot read %s for task %s", file, taskID)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fault.Wrap(fault.Corrupt, err, "corrupt %s for task %s", file, taskID)
	}
	return nil
}

// readJSONOptional is readJSON for files that may legitimately be absent,
// such as histories of a task created by an older version. Reports whether
// the file was found.
func (s *Store) readJSONOptional(taskID, file string, v any) (bool, error) {
	path := filepath.Join(s.TaskDir(taskID), file)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := s.readJSON(taskID, file, v); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fault.Wrap(fault.IOError, err, "cannot encode %s", filepath.Base(path))
	}
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return fault.Wrap(fault.IOError, err, "cannot write %s", filepath.Base(path))
	}
	return nil
}
