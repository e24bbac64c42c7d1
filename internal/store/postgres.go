package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS symstate_graph_meta (
	id             INT PRIMARY KEY CHECK (id = 1),
	format_version INT NOT NULL,
	dimension      INT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS symstate_symbols (
	id   TEXT PRIMARY KEY,
	body JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS symstate_embeddings (
	id        TEXT PRIMARY KEY,
	embedding vector NOT NULL
);

CREATE TABLE IF NOT EXISTS symstate_snapshots (
	seq        BIGINT PRIMARY KEY,
	session_id TEXT NOT NULL,
	taken_at   TIMESTAMPTZ NOT NULL,
	body       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS symstate_documents (
	name       TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore keeps the graph in normalized tables with embeddings in a
// pgvector column, and the goal and proof documents as JSONB rows.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, url string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("connected to database")
	return &PostgresStore{db: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) LoadGraph(ctx context.Context) (*domain.GraphDocument, error) {
	doc := &domain.GraphDocument{Symbols: make(map[string]domain.Symbol)}
	err := s.db.QueryRow(ctx,
		`SELECT format_version, dimension FROM symstate_graph_meta WHERE id = 1`,
	).Scan(&doc.FormatVersion, &doc.Dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(docGraph)
	}
	if err != nil {
		return nil, fmt.Errorf("load graph meta: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT id, body FROM symstate_symbols ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			rows.Close()
			return nil, err
		}
		var sym domain.Symbol
		if err := json.Unmarshal(body, &sym); err != nil {
			rows.Close()
			return nil, corrupt("symbol "+id, err)
		}
		doc.Symbols[id] = sym
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `SELECT id, embedding FROM symstate_embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	for rows.Next() {
		var id string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			rows.Close()
			return nil, err
		}
		if doc.Embeddings == nil {
			doc.Embeddings = make(map[string][]float32)
		}
		doc.Embeddings[id] = vec.Slice()
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `SELECT seq, body FROM symstate_snapshots ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seq int64
		var body []byte
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			return nil, corrupt(fmt.Sprintf("snapshot %d", seq), err)
		}
		doc.Snapshots = append(doc.Snapshots, snap)
	}
	return doc, rows.Err()
}

// SaveGraph replaces the symbols and embeddings. Snapshot rows are written
// once: only snapshots past the highest stored seq are inserted, and rows
// beyond the document's last seq are dropped.
func (s *PostgresStore) SaveGraph(ctx context.Context, doc *domain.GraphDocument) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`TRUNCATE symstate_graph_meta, symstate_symbols, symstate_embeddings`,
	); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	last := lastSeq(doc.Snapshots)
	if _, err := tx.Exec(ctx, `DELETE FROM symstate_snapshots WHERE seq > $1`, last); err != nil {
		return fmt.Errorf("trim snapshots: %w", err)
	}
	var stored int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM symstate_snapshots`).Scan(&stored); err != nil {
		return fmt.Errorf("read snapshot seq: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO symstate_graph_meta (id, format_version, dimension) VALUES (1, $1, $2)`,
		doc.FormatVersion, doc.Dimension)
	for id, sym := range doc.Symbols {
		body, err := json.Marshal(sym)
		if err != nil {
			return fmt.Errorf("encode symbol %s: %w", id, err)
		}
		batch.Queue(`INSERT INTO symstate_symbols (id, body) VALUES ($1, $2)`, id, body)
	}
	for id, v := range doc.Embeddings {
		batch.Queue(`INSERT INTO symstate_embeddings (id, embedding) VALUES ($1, $2)`, id, pgvector.NewVector(v))
	}
	for _, snap := range doc.Snapshots {
		if int64(snap.Seq) <= stored {
			continue
		}
		body, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode snapshot %d: %w", snap.Seq, err)
		}
		batch.Queue(`INSERT INTO symstate_snapshots (seq, session_id, taken_at, body) VALUES ($1, $2, $3, $4) ON CONFLICT (seq) DO NOTHING`,
			int64(snap.Seq), snap.SessionID, snap.Timestamp, body)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit graph: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadGoals(ctx context.Context) (*domain.GoalDocument, error) {
	doc := &domain.GoalDocument{}
	if err := s.loadDocument(ctx, docGoals, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) SaveGoals(ctx context.Context, doc *domain.GoalDocument) error {
	return s.saveDocument(ctx, docGoals, doc)
}

func (s *PostgresStore) LoadProofs(ctx context.Context) (*domain.ProofDocument, error) {
	doc := &domain.ProofDocument{}
	if err := s.loadDocument(ctx, docProofs, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) SaveProofs(ctx context.Context, doc *domain.ProofDocument) error {
	return s.saveDocument(ctx, docProofs, doc)
}

func (s *PostgresStore) loadDocument(ctx context.Context, name string, out any) error {
	var body []byte
	err := s.db.QueryRow(ctx, `SELECT body FROM symstate_documents WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(name)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return corrupt(name, err)
	}
	return nil
}

func (s *PostgresStore) saveDocument(ctx context.Context, name string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO symstate_documents (name, body, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		name, body,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

var _ domain.StateStore = (*PostgresStore)(nil)
