package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-engine/internal/db"
	"github.com/sells-group/diligence-engine/internal/model"
)

// PostgresStore implements NodeStore using pgxpool, for teams sharing one
// estimate database.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_node": `INSERT INTO estimate_nodes (id, workstream, kind, parent_id, level, version, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"update_node": `UPDATE estimate_nodes
		SET workstream = $1, kind = $2, parent_id = $3, level = $4, version = $5, payload = $6, updated_at = $7
		WHERE id = $8 AND version = $9`,
	"get_node":     `SELECT payload FROM estimate_nodes WHERE id = $1`,
	"node_version": `SELECT version FROM estimate_nodes WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS estimate_nodes (
	id         TEXT PRIMARY KEY,
	workstream TEXT NOT NULL,
	kind       TEXT NOT NULL,
	parent_id  TEXT,
	level      INTEGER NOT NULL DEFAULT 1,
	version    INTEGER NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_estimate_nodes_workstream ON estimate_nodes(workstream);
CREATE INDEX IF NOT EXISTS idx_estimate_nodes_parent_id ON estimate_nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_estimate_nodes_kind ON estimate_nodes(kind);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

func (s *PostgresStore) SaveNode(ctx context.Context, node *model.EstimateNode, expectedVersion int) (int, error) {
	if node == nil {
		return 0, eris.New("postgres: nil node")
	}
	if err := node.Validate(); err != nil {
		return 0, err
	}

	newVersion := expectedVersion + 1
	prevVersion := node.Version
	node.Version = newVersion
	node.Touch()
	restore := func() { node.Version = prevVersion }

	payload, err := model.EncodeNode(node)
	if err != nil {
		restore()
		return 0, err
	}
	now := time.Now().UTC()

	if expectedVersion == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO estimate_nodes (id, workstream, kind, parent_id, level, version, payload, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			node.ID, node.Workstream, string(node.Kind), nullable(node.ParentID), node.Level,
			newVersion, payload, now, now,
		)
		if err != nil {
			restore()
			if current, ok := s.currentVersion(ctx, node.ID); ok {
				return 0, &ConflictError{ID: node.ID, Expected: expectedVersion, Current: current}
			}
			return 0, eris.Wrapf(err, "postgres: insert node %s", node.ID)
		}
		return newVersion, nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE estimate_nodes
		 SET workstream = $1, kind = $2, parent_id = $3, level = $4, version = $5, payload = $6, updated_at = $7
		 WHERE id = $8 AND version = $9`,
		node.Workstream, string(node.Kind), nullable(node.ParentID), node.Level,
		newVersion, payload, now,
		node.ID, expectedVersion,
	)
	if err != nil {
		restore()
		return 0, eris.Wrapf(err, "postgres: update node %s", node.ID)
	}
	if tag.RowsAffected() == 0 {
		restore()
		current, ok := s.currentVersion(ctx, node.ID)
		if !ok {
			return 0, eris.Errorf("postgres: node not found: %s", node.ID)
		}
		return 0, &ConflictError{ID: node.ID, Expected: expectedVersion, Current: current}
	}
	return newVersion, nil
}

func (s *PostgresStore) GetNode(ctx context.Context, id string) (*model.EstimateNode, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM estimate_nodes WHERE id = $1`, id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get node %s", id)
	}

	node, ok := model.DecodeStored(payload)
	if !ok {
		return nil, nil
	}
	return node, nil
}

func (s *PostgresStore) ListNodes(ctx context.Context, filter NodeFilter) ([]*model.EstimateNode, error) {
	query := `SELECT id, payload FROM estimate_nodes WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Workstream != "" {
		query += ` AND workstream = ` + arg(filter.Workstream)
	}
	if filter.Kind != "" {
		query += ` AND kind = ` + arg(string(filter.Kind))
	}
	if filter.ParentID != "" {
		query += ` AND parent_id = ` + arg(filter.ParentID)
	}
	if filter.RootsOnly {
		query += ` AND parent_id IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list nodes")
	}
	defer rows.Close()

	var nodes []*model.EstimateNode
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan node row")
		}
		node, ok := model.DecodeStored(payload)
		if !ok {
			zap.L().Warn("postgres: skipping corrupt node row", zap.String("id", id))
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, eris.Wrap(rows.Err(), "postgres: list nodes iterate")
}

func (s *PostgresStore) currentVersion(ctx context.Context, id string) (int, bool) {
	var v int
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM estimate_nodes WHERE id = $1`, id,
	).Scan(&v)
	if err != nil {
		return 0, false
	}
	return v, true
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
