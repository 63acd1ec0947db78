package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/diligence-engine/internal/model"
)

// SQLiteStore implements NodeStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS estimate_nodes (
	id         TEXT PRIMARY KEY,
	workstream TEXT NOT NULL,
	kind       TEXT NOT NULL,
	parent_id  TEXT,
	level      INTEGER NOT NULL DEFAULT 1,
	version    INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_estimate_nodes_workstream ON estimate_nodes(workstream);
CREATE INDEX IF NOT EXISTS idx_estimate_nodes_parent_id ON estimate_nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_estimate_nodes_kind ON estimate_nodes(kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveNode(ctx context.Context, node *model.EstimateNode, expectedVersion int) (int, error) {
	if node == nil {
		return 0, eris.New("sqlite: nil node")
	}
	if err := node.Validate(); err != nil {
		return 0, err
	}

	newVersion := expectedVersion + 1
	prevVersion := node.Version
	node.Version = newVersion
	node.Touch()
	// The caller's node only keeps the new version if the write lands.
	restore := func() { node.Version = prevVersion }

	payload, err := model.EncodeNode(node)
	if err != nil {
		restore()
		return 0, err
	}
	now := time.Now().UTC()

	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO estimate_nodes (id, workstream, kind, parent_id, level, version, payload, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			node.ID, node.Workstream, string(node.Kind), nullable(node.ParentID), node.Level,
			newVersion, string(payload), now, now,
		)
		if err != nil {
			restore()
			// A duplicate id means someone created it first; report the
			// stored version so the caller can reload.
			if current, ok := s.currentVersion(ctx, node.ID); ok {
				return 0, &ConflictError{ID: node.ID, Expected: expectedVersion, Current: current}
			}
			return 0, eris.Wrapf(err, "sqlite: insert node %s", node.ID)
		}
		return newVersion, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE estimate_nodes
		 SET workstream = ?, kind = ?, parent_id = ?, level = ?, version = ?, payload = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		node.Workstream, string(node.Kind), nullable(node.ParentID), node.Level,
		newVersion, string(payload), now,
		node.ID, expectedVersion,
	)
	if err != nil {
		restore()
		return 0, eris.Wrapf(err, "sqlite: update node %s", node.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		restore()
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		restore()
		current, ok := s.currentVersion(ctx, node.ID)
		if !ok {
			return 0, eris.Errorf("sqlite: node not found: %s", node.ID)
		}
		return 0, &ConflictError{ID: node.ID, Expected: expectedVersion, Current: current}
	}
	return newVersion, nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*model.EstimateNode, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM estimate_nodes WHERE id = ?`, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get node %s", id)
	}

	node, ok := model.DecodeStored([]byte(payload))
	if !ok {
		// Corrupt historical record: absent, not fatal.
		return nil, nil
	}
	return node, nil
}

func (s *SQLiteStore) ListNodes(ctx context.Context, filter NodeFilter) ([]*model.EstimateNode, error) {
	query := `SELECT id, payload FROM estimate_nodes WHERE 1=1`
	var args []any

	if filter.Workstream != "" {
		query += ` AND workstream = ?`
		args = append(args, filter.Workstream)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.ParentID != "" {
		query += ` AND parent_id = ?`
		args = append(args, filter.ParentID)
	}
	if filter.RootsOnly {
		query += ` AND parent_id IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list nodes")
	}
	defer rows.Close()

	var nodes []*model.EstimateNode
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan node row")
		}
		node, ok := model.DecodeStored([]byte(payload))
		if !ok {
			zap.L().Warn("sqlite: skipping corrupt node row", zap.String("id", id))
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, eris.Wrap(rows.Err(), "sqlite: list nodes iterate")
}

func (s *SQLiteStore) currentVersion(ctx context.Context, id string) (int, bool) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM estimate_nodes WHERE id = ?`, id,
	).Scan(&v)
	if err != nil {
		return 0, false
	}
	return v, true
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
