// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store is the SQLite-backed persistence layer: the queue.Store,
// chat.Store and chat.LibraryInspector ports, plus the library catalog
// (tracks/artists/albums/playlists) those ports and the chat tool executor
// read from. Grounded on xg2g's internal/persistence/sqlite/config.go for
// the PRAGMA-bearing DSN and connection pool shape, and on
// internal/pipeline/resume/sqlite_store.go for the PRAGMA user_version
// migration pattern — generalized from that package's single resume_states
// table to this spec's full schema.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/resonance-audio/resonance/internal/log"
)

const schemaVersion = 1

// Config mirrors xg2g's sqlite.Config: the operational knobs every
// connection in the pool must share.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns sane defaults for a single-writer, many-reader
// SQLite deployment.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// Store wraps the shared *sql.DB handle for all repository implementations
// in this package.
type Store struct {
	DB *sql.DB
}

// Open creates (or reuses) the SQLite database at path, applies mandatory
// PRAGMAs via the DSN, and runs migrations.
func Open(path string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const schema = `
	CREATE TABLE IF NOT EXISTS artists (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS albums (
		id        TEXT PRIMARY KEY,
		title     TEXT NOT NULL,
		artist_id TEXT REFERENCES artists(id)
	);

	CREATE TABLE IF NOT EXISTS tracks (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		artist_id    TEXT NOT NULL REFERENCES artists(id),
		artist_name  TEXT NOT NULL,
		album_id     TEXT REFERENCES albums(id),
		album_title  TEXT,
		file_path    TEXT NOT NULL,
		file_size    INTEGER NOT NULL,
		format       TEXT NOT NULL,
		duration_ms  INTEGER NOT NULL,
		genres       TEXT NOT NULL DEFAULT '[]',
		ai_mood      TEXT NOT NULL DEFAULT '[]',
		ai_tags      TEXT NOT NULL DEFAULT '[]',
		play_count   INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL,
		audio_features TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist_id);

	CREATE TABLE IF NOT EXISTS playlists (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_playlists_user ON playlists(user_id);

	CREATE TABLE IF NOT EXISTS playlist_tracks (
		playlist_id TEXT NOT NULL REFERENCES playlists(id),
		track_id    TEXT NOT NULL REFERENCES tracks(id),
		position    INTEGER NOT NULL,
		PRIMARY KEY (playlist_id, track_id)
	);

	CREATE TABLE IF NOT EXISTS user_scrobble_settings (
		user_id         TEXT PRIMARY KEY,
		enabled         INTEGER NOT NULL DEFAULT 0,
		token_encrypted TEXT NOT NULL DEFAULT '',
		private_session INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS queue_items (
		user_id           TEXT NOT NULL,
		position          INTEGER NOT NULL,
		track_id          TEXT NOT NULL,
		source_type       TEXT NOT NULL,
		source_id         TEXT,
		added_at          TEXT NOT NULL,
		prefetched        INTEGER NOT NULL DEFAULT 0,
		prefetch_priority INTEGER,
		PRIMARY KEY (user_id, position)
	);

	CREATE TABLE IF NOT EXISTS queue_playback_state (
		user_id       TEXT PRIMARY KEY,
		current_index INTEGER NOT NULL DEFAULT 0,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_conversations (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		deleted_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chat_conversations_user ON chat_conversations(user_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES chat_conversations(id),
		user_id         TEXT NOT NULL,
		role            TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		tool_calls      TEXT,
		tool_call_id    TEXT,
		context         TEXT,
		model           TEXT NOT NULL DEFAULT '',
		token_count     INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		UNIQUE (conversation_id, sequence_number)
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation_id, sequence_number);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.L().Info().Int("schema_version", schemaVersion).Msg("store: migrated")
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}
