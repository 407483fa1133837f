package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"recflow/internal/logging"
)

var (
	// ErrLocked means another process holds the state file.
	ErrLocked = errors.New("state file is locked by another recflow instance")
	// ErrPersist marks a failed save; the daemon must stop.
	ErrPersist = errors.New("persist state")
	// ErrReadOnly is returned by Save on a store opened with Load.
	ErrReadOnly = errors.New("state opened read-only")
)

type document struct {
	Completed   map[string]CompletedItem `json:"completed"`
	Pending     *PendingItem             `json:"pending"`
	Watermark   int64                    `json:"watermark"`
	Destination *string                  `json:"destination"`
}

// Store is the durable workflow state: completed items, the single pending
// item, the consumed-event watermark and the conversation destination.
type Store struct {
	mu     sync.Mutex
	path   string
	lock   *flock.Flock
	doc    document
	logger *slog.Logger
}

// Open takes the single-instance lock on path and loads the state document.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}
	lock := flock.New(lockPath(path))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	store := newStore(path, logger)
	store.lock = lock
	if err := store.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Locked reports whether a running instance holds the lock on path.
func Locked(path string) (bool, error) {
	lockFile := lockPath(path)
	if _, err := os.Stat(lockFile); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(lockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if ok {
		_ = lock.Unlock()
	}
	return !ok, nil
}

func lockPath(path string) string { return path + ".lock" }

// Load reads the state document without taking the lock. The result cannot
// be saved.
func Load(path string, logger *slog.Logger) (*Store, error) {
	store := newStore(path, logger)
	if err := store.loadReadOnly(); err != nil {
		return nil, err
	}
	return store, nil
}

func newStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "state"),
		doc:    document{Completed: make(map[string]CompletedItem)},
	}
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}
	if err := s.decode(data); err != nil {
		aside := s.path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		renameErr := os.Rename(s.path, aside)
		logging.WarnWithContext(s.logger, "state file unreadable; starting empty", "state_corrupt",
			logging.String("path", s.path),
			logging.String("moved_to", aside),
			logging.Error(err),
			logging.Bool("moved", renameErr == nil),
			logging.String(logging.FieldErrorHint, "inspect the moved file; completed items in it will be offered again"),
			logging.String(logging.FieldImpact, "completion history and pending item are lost"),
		)
		s.doc = document{Completed: make(map[string]CompletedItem)}
	}
	return nil
}

func (s *Store) loadReadOnly() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}
	if err := s.decode(data); err != nil {
		return fmt.Errorf("parse state %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) decode(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Completed == nil {
		doc.Completed = make(map[string]CompletedItem)
	}
	if doc.Pending != nil && !doc.Pending.Stage.Valid() {
		return fmt.Errorf("pending item has unknown stage %q", doc.Pending.Stage)
	}
	s.doc = doc
	return nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// IsCompleted reports whether key already has a completion record.
func (s *Store) IsCompleted(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.doc.Completed[key]
	return ok
}

// Completed returns a copy of the completion record for key.
func (s *Store) Completed(key string) (CompletedItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.doc.Completed[key]
	return item, ok
}

// CompletedItems returns all completion records, newest first.
func (s *Store) CompletedItems() []CompletedItem {
	s.mu.Lock()
	items := slices.Collect(maps.Values(s.doc.Completed))
	s.mu.Unlock()
	slices.SortFunc(items, func(a, b CompletedItem) int {
		return b.ProcessedAt.Compare(a.ProcessedAt)
	})
	return items
}

// MarkCompleted writes the record for item.Key. An existing record is never
// overwritten; the return value reports whether a record was added.
func (s *Store) MarkCompleted(item CompletedItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.doc.Completed[item.Key]; exists {
		return false
	}
	item.Tags = slices.Clone(item.Tags)
	item.Participants = slices.Clone(item.Participants)
	s.doc.Completed[item.Key] = item
	return true
}

// Pending returns a copy of the active pending item, or nil.
func (s *Store) Pending() *PendingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Pending.Clone()
}

// SetPending replaces the active pending item with a copy of item.
func (s *Store) SetPending(item *PendingItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Pending = item.Clone()
}

// ClearPending drops the active pending item.
func (s *Store) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Pending = nil
}

// Watermark returns the highest consumed inbound event id.
func (s *Store) Watermark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Watermark
}

// AdvanceWatermark raises the watermark to id; lower values are ignored.
func (s *Store) AdvanceWatermark(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Watermark = max(s.doc.Watermark, id)
}

// Destination returns the conversation destination, or "".
func (s *Store) Destination() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Destination == nil {
		return ""
	}
	return *s.doc.Destination
}

// SetDestination records the conversation destination.
func (s *Store) SetDestination(dest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dest == "" {
		s.doc.Destination = nil
		return
	}
	s.doc.Destination = &dest
}

// Save writes the whole document to a temp file next to the state file and
// renames it into place. Failures carry ErrPersist.
func (s *Store) Save() error {
	if s.lock == nil {
		return ErrReadOnly
	}
	s.mu.Lock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrPersist, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp: %w", ErrPersist, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp: %w", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp: %w", ErrPersist, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %w", ErrPersist, err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Close releases the single-instance lock.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.Unlock()
	s.lock = nil
	return err
}
