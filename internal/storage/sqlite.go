// Package storage persists user profiles, chat history, and the enhancement
// log in a single SQLite database. Profiles and history live in a generic
// key-value table as JSON documents; the enhancement log has its own table.
package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxHistoryEntries caps per-user chat history growth; oldest entries are
// dropped first.
const maxHistoryEntries = 100

// Store wraps a SQLite database with KV, history, and enhancement-log methods.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "promptd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Key-value documents ---

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// Put upserts the value under key.
func (s *Store) Put(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// --- Chat history ---

// History returns the user's chat history, oldest first. A user with no
// history yields an empty slice, not an error.
func (s *Store) History(userID string) ([]HistoryEntry, error) {
	raw, err := s.Get(HistoryKey(userID))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decoding history for user %s: %w", userID, err)
	}
	return entries, nil
}

// AppendHistory appends entries to the user's chat history, trimming the
// oldest entries beyond maxHistoryEntries.
func (s *Store) AppendHistory(userID string, entries ...HistoryEntry) error {
	existing, err := s.History(userID)
	if err != nil {
		return err
	}

	existing = append(existing, entries...)
	if len(existing) > maxHistoryEntries {
		existing = existing[len(existing)-maxHistoryEntries:]
	}

	b, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("encoding history for user %s: %w", userID, err)
	}
	return s.Put(HistoryKey(userID), string(b))
}

// --- Enhancement log ---

// SaveEnhancement records one enhancement run.
func (s *Store) SaveEnhancement(rec EnhancementRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO enhancements (id, user_id, input, best_style, avg_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Input, rec.BestStyle, rec.AvgScore,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentEnhancements returns the most recent enhancement records, newest first.
func (s *Store) RecentEnhancements(limit int) ([]EnhancementRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, input, best_style, avg_score, created_at
		FROM enhancements ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EnhancementRecord
	for rows.Next() {
		var rec EnhancementRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Input, &rec.BestStyle, &rec.AvgScore, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		rec.CreatedAt = t
		results = append(results, rec)
	}
	return results, rows.Err()
}
