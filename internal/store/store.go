// Package store keeps autosaved game snapshots in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/peterkuimelis/colonia/internal/message"
)

// ErrNoSave is returned by Latest when a game has no autosave.
var ErrNoSave = errors.New("no autosave")

// Save is one stored snapshot. Snapshot is nil in List results.
type Save struct {
	ID        int64
	Session   string
	GameID    string
	Turn      int
	Player    string
	CreatedAt time.Time
	Size      int
	Snapshot  *message.Message
}

// Store is an autosave database.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec, now: time.Now}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS autosaves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			player TEXT NOT NULL,
			created_at TEXT NOT NULL,
			size INTEGER NOT NULL,
			snapshot BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS autosaves_game ON autosaves(game_id, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}

// Save stores a snapshot and returns its id.
func (s *Store) Save(ctx context.Context, session, gameID string, turn int, player string, snapshot *message.Message) (int64, error) {
	if snapshot == nil {
		return 0, fmt.Errorf("save %s: nil snapshot", gameID)
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", gameID, err)
	}
	blob := s.enc.EncodeAll(raw, nil)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO autosaves(session, game_id, turn, player, created_at, size, snapshot) VALUES(?,?,?,?,?,?,?)`,
		session, gameID, turn, player, s.now().UTC().Format(time.RFC3339Nano), len(raw), blob)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", gameID, err)
	}
	return res.LastInsertId()
}

// Latest returns the newest snapshot of gameID.
func (s *Store) Latest(ctx context.Context, gameID string) (Save, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session, game_id, turn, player, created_at, size, snapshot
		 FROM autosaves WHERE game_id = ? ORDER BY id DESC LIMIT 1`, gameID)
	var (
		sv      Save
		created string
		blob    []byte
	)
	if err := row.Scan(&sv.ID, &sv.Session, &sv.GameID, &sv.Turn, &sv.Player, &created, &sv.Size, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Save{}, fmt.Errorf("%s: %w", gameID, ErrNoSave)
		}
		return Save{}, err
	}
	sv.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return Save{}, fmt.Errorf("autosave %d: %w", sv.ID, err)
	}
	var m message.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Save{}, fmt.Errorf("autosave %d: %w", sv.ID, err)
	}
	sv.Snapshot = &m
	return sv, nil
}

// List returns the saves of gameID, newest first, without snapshots.
func (s *Store) List(ctx context.Context, gameID string) ([]Save, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session, game_id, turn, player, created_at, size
		 FROM autosaves WHERE game_id = ? ORDER BY id DESC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Save
	for rows.Next() {
		var (
			sv      Save
			created string
		)
		if err := rows.Scan(&sv.ID, &sv.Session, &sv.GameID, &sv.Turn, &sv.Player, &created, &sv.Size); err != nil {
			return nil, err
		}
		sv.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sv)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep saves of gameID and reports how
// many were removed.
func (s *Store) Prune(ctx context.Context, gameID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM autosaves WHERE game_id = ? AND id NOT IN (
			SELECT id FROM autosaves WHERE game_id = ? ORDER BY id DESC LIMIT ?
		)`, gameID, gameID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", gameID, err)
	}
	return res.RowsAffected()
}
