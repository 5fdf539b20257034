package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"repograph/internal/graph"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS repositories (
			id TEXT PRIMARY KEY,
			name TEXT,
			url TEXT,
			branch TEXT,
			analyzed_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			repository_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			node_type TEXT NOT NULL,
			name TEXT NOT NULL,
			properties JSON
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			repository_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			properties JSON
		);`,
		`CREATE TABLE IF NOT EXISTS findings (
			repository_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			payload JSON,
			PRIMARY KEY (repository_id, domain)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_repo ON nodes(repository_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_edges_repo ON edges(repository_id, seq);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- GraphStore Implementation ---

// SaveGraph deletes the previous graph of repoID and inserts g in one transaction.
func (s *SQLiteStore) SaveGraph(ctx context.Context, repoID string, g *graph.Graph) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceGraph(ctx, tx, repoID, g)
	})
}

func replaceGraph(ctx context.Context, tx *sql.Tx, repoID string, g *graph.Graph) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE repository_id = ?", repoID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE repository_id = ?", repoID); err != nil {
		return err
	}
	if g == nil {
		return nil
	}

	// 1. Save Nodes
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, repository_id, seq, node_type, name, properties)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, n := range g.Nodes {
		props, err := json.Marshal(n.Properties)
		if err != nil {
			return fmt.Errorf("node %s properties: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, n.ID, repoID, i, string(n.Type), n.Name, props); err != nil {
			return err
		}
	}

	// 2. Save Edges
	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (id, repository_id, seq, source_id, target_id, edge_type, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()

	for i, e := range g.Edges {
		props, err := json.Marshal(e.Properties)
		if err != nil {
			return fmt.Errorf("edge %s properties: %w", e.ID, err)
		}
		if _, err := edgeStmt.ExecContext(ctx, e.ID, repoID, i, e.Source, e.Target, string(e.Type), props); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) LoadGraph(ctx context.Context, repoID string) (*graph.Graph, error) {
	// 1. Load Nodes
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, node_type, name, properties FROM nodes WHERE repository_id = ? ORDER BY seq", repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*graph.Node
	for rows.Next() {
		n := &graph.Node{RepositoryID: repoID}
		var typ string
		var props []byte
		if err := rows.Scan(&n.ID, &typ, &n.Name, &props); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Type = graph.NodeType(typ)
		if err := decodeProps(props, &n.Properties); err != nil {
			return nil, fmt.Errorf("node %s properties: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("graph of repository %s: %w", repoID, ErrNotFound)
	}

	// 2. Load Edges
	edgeRows, err := s.db.QueryContext(ctx,
		"SELECT id, source_id, target_id, edge_type, properties FROM edges WHERE repository_id = ? ORDER BY seq", repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []*graph.Edge
	for edgeRows.Next() {
		e := &graph.Edge{}
		var typ string
		var props []byte
		if err := edgeRows.Scan(&e.ID, &e.Source, &e.Target, &typ, &props); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Type = graph.EdgeType(typ)
		if err := decodeProps(props, &e.Properties); err != nil {
			return nil, fmt.Errorf("edge %s properties: %w", e.ID, err)
		}
		edges = append(edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	return graph.FromParts(nodes, edges)
}

func decodeProps(raw []byte, out *map[string]any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// --- FindingStore Implementation ---

// SaveFindings replaces the findings of one domain for repoID.
func (s *SQLiteStore) SaveFindings(ctx context.Context, repoID, domain string, v any) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceFindings(ctx, tx, repoID, domain, v)
	})
}

func replaceFindings(ctx context.Context, tx *sql.Tx, repoID, domain string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s findings: %w", domain, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE repository_id = ? AND domain = ?", repoID, domain); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "INSERT INTO findings (repository_id, domain, payload) VALUES (?, ?, ?)", repoID, domain, payload)
	return err
}

func (s *SQLiteStore) LoadFindings(ctx context.Context, repoID, domain string, out any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM findings WHERE repository_id = ? AND domain = ?", repoID, domain).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s findings of repository %s: %w", domain, repoID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}

// --- Snapshots ---

// SaveSnapshot replaces the repository row, graph and every finding domain of
// one repository in a single transaction. Domains absent from the snapshot
// are removed.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	repoID := snap.Repository.ID
	if repoID == "" {
		return errors.New("snapshot repository has no id")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO repositories (id, name, url, branch, analyzed_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name=excluded.name,
				url=excluded.url,
				branch=excluded.branch,
				analyzed_at=excluded.analyzed_at
		`, repoID, snap.Repository.Name, snap.Repository.URL, snap.Repository.Branch, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		if err := replaceGraph(ctx, tx, repoID, snap.Graph); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE repository_id = ?", repoID); err != nil {
			return err
		}
		domains := make([]string, 0, len(snap.Findings))
		for d := range snap.Findings {
			domains = append(domains, d)
		}
		sort.Strings(domains)
		for _, d := range domains {
			if err := replaceFindings(ctx, tx, repoID, d, snap.Findings[d]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Repositories lists the stored repositories by name.
func (s *SQLiteStore) Repositories(ctx context.Context) ([]graph.Repository, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, url, branch FROM repositories ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.Repository
	for rows.Next() {
		var r graph.Repository
		var url, branch sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &url, &branch); err != nil {
			return nil, err
		}
		r.URL, r.Branch = url.String, branch.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
