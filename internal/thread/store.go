package thread

import (
	"database/sql"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// threadsKey is the single well-known key under which the whole thread
// collection is persisted.
const threadsKey = "threads/v1"

// Store implements a local SQLite-backed store for threads. The entire
// collection is serialized as one JSON document under threadsKey and
// rewritten on every mutation; there is exactly one writer.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	threads []*Thread
}

// Open a store at the given database path, loading any persisted threads.
// A corrupt payload fails loudly rather than silently resetting the store.
func Open(databasePath string) (*Store, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return nil, errors.Wrap(err, "creating kv table")
	}

	s := &Store{db: db}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, threadsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "querying threads")
	}
	if err := json.Unmarshal([]byte(value), &s.threads); err != nil {
		return errors.Wrap(err, "unmarshaling persisted threads")
	}
	return nil
}

// save persists the whole collection. An empty collection is never persisted,
// so a half-initialized store cannot wipe previously saved threads.
func (s *Store) save() error {
	if len(s.threads) == 0 {
		return nil
	}
	bytes, err := json.Marshal(s.threads)
	if err != nil {
		return errors.Wrap(err, "marshaling threads")
	}
	if _, err := s.db.Exec(`
		REPLACE INTO kv (key, value) VALUES (?, ?)
	`, threadsKey, string(bytes)); err != nil {
		return errors.Wrap(err, "writing threads")
	}
	return nil
}

// Threads returns the collection sorted by recency (most recently updated
// first).
func (s *Store) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	threads := make([]*Thread, len(s.threads))
	for i, t := range s.threads {
		threads[i] = t.clone()
	}
	// Stable so equal timestamps keep creation order.
	sort.SliceStable(threads, func(i, j int) bool { return threads[i].UpdatedAt > threads[j].UpdatedAt })
	return threads
}

// Get returns a snapshot of the named thread.
func (s *Store) Get(id string) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(id)
	if t == nil {
		return nil, false
	}
	return t.clone(), true
}

func (s *Store) find(id string) *Thread {
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Len returns the number of threads in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// Create a new empty thread bound to the given model, placed at the front of
// the in-memory ordering.
func (s *Store) Create(model string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Thread{
		ID:        NewID(),
		Title:     DefaultTitle,
		Model:     model,
		UpdatedAt: now(),
	}
	s.threads = append([]*Thread{t}, s.threads...)
	if err := s.save(); err != nil {
		return nil, err
	}
	return t.clone(), nil
}

// Delete removes a thread. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.threads[:0]
	for _, t := range s.threads {
		if t.ID != id {
			filtered = append(filtered, t)
		}
	}
	s.threads = filtered
	return s.save()
}

// Append adds a message to the named thread and refreshes its recency. The
// very first user message also determines the thread's title.
func (s *Store) Append(threadID string, message *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(threadID)
	if t == nil {
		return errors.Errorf("thread does not exist (%s)", threadID)
	}
	if len(t.Messages) == 0 && message.Role == RoleUser {
		t.Title = DeriveTitle(firstText(message.Parts))
	}
	t.Messages = append(t.Messages, message)
	t.UpdatedAt = now()
	return s.save()
}

// ReplaceParts replaces, wholesale, the parts of the message addressed by
// (threadID, messageID). A missing thread or message is a no-op: the thread
// may have been deleted while a stream was still applying deltas.
func (s *Store) ReplaceParts(threadID, messageID string, parts []Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(threadID)
	if t == nil {
		return nil
	}
	for i, message := range t.Messages {
		if message.ID != messageID {
			continue
		}
		replaced := *message
		replaced.Parts = parts
		t.Messages[i] = &replaced
		t.UpdatedAt = now()
		return s.save()
	}
	return nil
}

// Close the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func firstText(parts []Part) string {
	for _, part := range parts {
		if !part.IsData() {
			return part.Text
		}
	}
	return ""
}
