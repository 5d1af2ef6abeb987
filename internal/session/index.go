package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/codeassist/codeassist/internal/fault"
	"github.com/codeassist/codeassist/internal/fsutil"
)

// descriptionWidth is how many display columns of the first user message
// become the task description.
const descriptionWidth = 100

// Index maintains the task history file at <base>/history/task_history.json.
type Index struct {
	mu    sync.RWMutex
	base  string
	store *Store
}

// NewIndex creates an index rooted at the given .ai directory. The store is
// used to remove task data when an entry is deleted.
func NewIndex(base string, store *Store) *Index {
	return &Index{base: base, store: store}
}

func (ix *Index) path() string {
	return filepath.Join(ix.base, "history", "task_history.json")
}

// Describe builds a task description from the first user message: the first
// 100 display columns, with "..." appended when truncated.
func Describe(task string) string {
	task = strings.TrimSpace(task)
	if runewidth.StringWidth(task) <= descriptionWidth {
		return task
	}
	return runewidth.Truncate(task, descriptionWidth, "") + "..."
}

// Upsert inserts or replaces the entry with the same id.
func (ix *Index) Upsert(item HistoryItem) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	items, err := ix.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}
	return ix.save(items)
}

// Get returns the entry with the given id.
func (ix *Index) Get(id string) (HistoryItem, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	items, err := ix.load()
	if err != nil {
		return HistoryItem{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return HistoryItem{}, fault.New(fault.NotFound, "task not found: %s", id)
}

// List returns entries matching the options, ordered per opts.Sort
// (newest first by default).
func (ix *Index) List(opts ListOptions) ([]HistoryItem, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	items, err := ix.load()
	if err != nil {
		return nil, err
	}

	filtered := items[:0:0]
	needle := strings.ToLower(strings.TrimSpace(opts.Search))
	for _, item := range items {
		if opts.FavoritesOnly && !item.IsFavorited {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(item.Task), needle) &&
			!strings.Contains(strings.ToLower(item.ID), needle) {
			continue
		}
		filtered = append(filtered, item)
	}

	switch opts.Sort {
	case SortOldest:
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Ts < filtered[j].Ts })
	case SortCost:
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].TotalCost > filtered[j].TotalCost })
	default: // SortNewest
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].LastUpdated > filtered[j].LastUpdated })
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// ToggleFavorite flips the favorite flag and returns the new state.
func (ix *Index) ToggleFavorite(id string) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	items, err := ix.load()
	if err != nil {
		return false, err
	}
	for i := range items {
		if items[i].ID == id {
			items[i].IsFavorited = !items[i].IsFavorited
			if err := ix.save(items); err != nil {
				return false, err
			}
			return items[i].IsFavorited, nil
		}
	}
	return false, fault.New(fault.NotFound, "task not found: %s", id)
}

// Delete removes the index entry and the task's stored data.
func (ix *Index) Delete(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	items, err := ix.load()
	if err != nil {
		return err
	}
	found := false
	kept := items[:0:0]
	for _, item := range items {
		if item.ID == id {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return fault.New(fault.NotFound, "task not found: %s", id)
	}
	if err := ix.save(kept); err != nil {
		return err
	}
	if ix.store != nil && ix.store.taskDirExists(id) {
		return ix.store.Delete(id)
	}
	return nil
}

// Stats aggregates the whole index.
func (ix *Index) Stats() (Stats, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	items, err := ix.load()
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	st.TotalTasks = len(items)
	for _, item := range items {
		st.TotalTokens += item.TokensIn + item.TokensOut
		st.TotalCost += item.TotalCost
		st.TotalSize += item.Size
	}
	return st, nil
}

// load reads the index file. A missing file is an empty index; an
// undecodable one is Corrupt.
func (ix *Index) load() ([]HistoryItem, error) {
	raw, err := os.ReadFile(ix.path())
	if err != nil {
		if os.IsNotExist(err) {
			return []HistoryItem{}, nil
		}
		return nil, fault.Wrap(fault.IOError, err, "cannot read task history")
	}
	var items []HistoryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fault.Wrap(fault.Corrupt, err, "corrupt task history")
	}
	return items, nil
}

func (ix *Index) save(items []HistoryItem) error {
	if items == nil {
		items = []HistoryItem{}
	}
	dir := filepath.Dir(ix.path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fault.Wrap(fault.IOError, err, "cannot create history dir")
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fault.Wrap(fault.IOError, err, "cannot encode task history")
	}
	if err := fsutil.AtomicWrite(ix.path(), data, 0644); err != nil {
		return fault.Wrap(fault.IOError, err, "cannot write task history")
	}
	return nil
}
