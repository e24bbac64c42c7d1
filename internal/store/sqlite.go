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

	"github.com/Harshitk-cp/symstate/internal/domain"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS graph_meta (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	format_version INTEGER NOT NULL,
	dimension      INTEGER NOT NULL,
	updated_at     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
	id   TEXT PRIMARY KEY,
	body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS embeddings (
	id     TEXT PRIMARY KEY,
	vector TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	seq        INTEGER PRIMARY KEY,
	session_id TEXT NOT NULL,
	taken_at   TEXT NOT NULL,
	body       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteStore keeps the graph in normalized tables and the goal and proof
// documents as JSON rows. Every save is a single transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite state store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadGraph(ctx context.Context) (*domain.GraphDocument, error) {
	doc := &domain.GraphDocument{
		Symbols: make(map[string]domain.Symbol),
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT format_version, dimension FROM graph_meta WHERE id = 1`,
	).Scan(&doc.FormatVersion, &doc.Dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(docGraph)
	}
	if err != nil {
		return nil, fmt.Errorf("load graph meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM symbols ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			rows.Close()
			return nil, err
		}
		var sym domain.Symbol
		if err := json.Unmarshal([]byte(body), &sym); err != nil {
			rows.Close()
			return nil, corrupt("symbol "+id, err)
		}
		doc.Symbols[id] = sym
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, vector FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	for rows.Next() {
		var id, vector string
		if err := rows.Scan(&id, &vector); err != nil {
			rows.Close()
			return nil, err
		}
		var v []float32
		if err := json.Unmarshal([]byte(vector), &v); err != nil {
			rows.Close()
			return nil, corrupt("embedding "+id, err)
		}
		if doc.Embeddings == nil {
			doc.Embeddings = make(map[string][]float32)
		}
		doc.Embeddings[id] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT seq, body FROM snapshots ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seq uint64
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(body), &snap); err != nil {
			return nil, corrupt(fmt.Sprintf("snapshot %d", seq), err)
		}
		doc.Snapshots = append(doc.Snapshots, snap)
	}
	return doc, rows.Err()
}

// SaveGraph replaces the symbols and embeddings. Snapshot rows are written
// once: only snapshots past the highest stored seq are inserted, and rows
// beyond the document's last seq are dropped.
func (s *SQLiteStore) SaveGraph(ctx context.Context, doc *domain.GraphDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"graph_meta", "symbols", "embeddings"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	last := lastSeq(doc.Snapshots)
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE seq > ?`, last); err != nil {
		return fmt.Errorf("trim snapshots: %w", err)
	}
	var stored int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM snapshots`).Scan(&stored); err != nil {
		return fmt.Errorf("read snapshot seq: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO graph_meta (id, format_version, dimension, updated_at) VALUES (1, ?, ?, ?)`,
		doc.FormatVersion, doc.Dimension, now,
	); err != nil {
		return fmt.Errorf("write graph meta: %w", err)
	}

	for id, sym := range doc.Symbols {
		body, err := json.Marshal(sym)
		if err != nil {
			return fmt.Errorf("encode symbol %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO symbols (id, body) VALUES (?, ?)`, id, string(body)); err != nil {
			return fmt.Errorf("write symbol %s: %w", id, err)
		}
	}
	for id, v := range doc.Embeddings {
		vector, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode embedding %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO embeddings (id, vector) VALUES (?, ?)`, id, string(vector)); err != nil {
			return fmt.Errorf("write embedding %s: %w", id, err)
		}
	}
	for _, snap := range doc.Snapshots {
		if int64(snap.Seq) <= stored {
			continue
		}
		body, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode snapshot %d: %w", snap.Seq, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (seq, session_id, taken_at, body) VALUES (?, ?, ?, ?) ON CONFLICT (seq) DO NOTHING`,
			int64(snap.Seq), snap.SessionID, snap.Timestamp.UTC().Format(time.RFC3339Nano), string(body),
		); err != nil {
			return fmt.Errorf("write snapshot %d: %w", snap.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit graph: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadGoals(ctx context.Context) (*domain.GoalDocument, error) {
	doc := &domain.GoalDocument{}
	if err := s.loadDocument(ctx, docGoals, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStore) SaveGoals(ctx context.Context, doc *domain.GoalDocument) error {
	return s.saveDocument(ctx, docGoals, doc)
}

func (s *SQLiteStore) LoadProofs(ctx context.Context) (*domain.ProofDocument, error) {
	doc := &domain.ProofDocument{}
	if err := s.loadDocument(ctx, docProofs, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStore) SaveProofs(ctx context.Context, doc *domain.ProofDocument) error {
	return s.saveDocument(ctx, docProofs, doc)
}

func (s *SQLiteStore) loadDocument(ctx context.Context, name string, out any) error {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(name)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return corrupt(name, err)
	}
	return nil
}

func (s *SQLiteStore) saveDocument(ctx context.Context, name string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, string(body), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

var _ domain.StateStore = (*SQLiteStore)(nil)
