package suggest

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists operator decisions (approved/dismissed) in SQLite so they
// survive restarts while the triggering condition is still true. Pending
// suggestions are derived state and are not persisted.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS suggestion_decisions (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// OpenStore opens (and migrates) the decision database at path. Use
// ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open suggestion store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate suggestion store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Put records a decision for a suggestion ID.
func (s *Store) Put(id string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO suggestion_decisions (id, status, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = CURRENT_TIMESTAMP`,
		id, string(state),
	)
	return err
}

// Get returns the stored decision for a suggestion ID, if any.
func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status string
	err := s.db.QueryRow(`SELECT status FROM suggestion_decisions WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", false
	}
	return State(status), true
}

// Delete clears the stored decision once the condition has cleared, so a
// future re-trigger starts pending again.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM suggestion_decisions WHERE id = ?`, id)
	return err
}
