package outline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
)

// SQLiteGraph is the persistent outline host used by the CLI. Blocks live
// in a single table ordered by (parent, sort_order); the active page and
// focused node are kept in a small state table so they survive restarts.
type SQLiteGraph struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteGraph opens (and if needed creates) the outline database.
func NewSQLiteGraph(path string) (*SQLiteGraph, error) {
	timer := logging.StartTimer(logging.CategoryOutline, "NewSQLiteGraph")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.OutlineDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.OutlineDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.OutlineDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	g := &SQLiteGraph{db: db, dbPath: path}
	if err := g.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Outline("opened outline database at %s", path)
	return g, nil
}

func (g *SQLiteGraph) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocks (
		uuid       TEXT PRIMARY KEY,
		page       TEXT NOT NULL,
		parent     TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		properties TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_parent ON blocks(parent, sort_order);
	CREATE INDEX IF NOT EXISTS idx_blocks_page ON blocks(page, parent, sort_order);
	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := g.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (g *SQLiteGraph) Close() error {
	return g.db.Close()
}

// Node returns one node by UUID, or false if it does not exist.
func (g *SQLiteGraph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodeLocked(id)
}

func (g *SQLiteGraph) nodeLocked(id string) (*Node, bool) {
	row := g.db.QueryRow(
		`SELECT uuid, page, parent, content, properties FROM blocks WHERE uuid = ?`, id)

	var n Node
	var propsJSON string
	if err := row.Scan(&n.UUID, &n.Page, &n.Parent, &n.Content, &propsJSON); err != nil {
		if err != sql.ErrNoRows {
			logging.Get(logging.CategoryOutline).Error("node read failed for %s: %v", id, err)
		}
		return nil, false
	}

	if err := json.Unmarshal([]byte(propsJSON), &n.Properties); err != nil {
		logging.OutlineDebug("bad properties JSON on %s, treating as empty: %v", id, err)
		n.Properties = map[string]string{}
	}

	rows, err := g.db.Query(
		`SELECT uuid FROM blocks WHERE parent = ? ORDER BY sort_order`, id)
	if err != nil {
		return &n, true
	}
	defer rows.Close()
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err == nil {
			n.Children = append(n.Children, child)
		}
	}
	return &n, true
}

// PageTree returns the root nodes of a page in document order.
func (g *SQLiteGraph) PageTree(name string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rows, err := g.db.Query(
		`SELECT uuid FROM blocks WHERE page = ? AND parent = '' ORDER BY sort_order`, name)
	if err != nil {
		logging.Get(logging.CategoryOutline).Error("page read failed for %q: %v", name, err)
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.nodeLocked(id); ok {
			out = append(out, n)
		}
	}
	return out
}

// CurrentPage returns the active page name recorded in the state table.
func (g *SQLiteGraph) CurrentPage() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stateLocked("current_page")
}

// CurrentNode returns the focused node, if any.
func (g *SQLiteGraph) CurrentNode() (*Node, bool) {
	g.mu.RLock()
	id := g.stateLocked("current_node")
	g.mu.RUnlock()
	if id == "" {
		return nil, false
	}
	return g.Node(id)
}

// SetCurrent marks the active page and focused node. Either may be empty.
func (g *SQLiteGraph) SetCurrent(page, node string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.setStateLocked("current_page", page); err != nil {
		return err
	}
	return g.setStateLocked("current_node", node)
}

func (g *SQLiteGraph) stateLocked(key string) string {
	var v string
	err := g.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

func (g *SQLiteGraph) setStateLocked(key, value string) error {
	_, err := g.db.Exec(
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Create inserts a new node at the target and returns its UUID.
func (g *SQLiteGraph) Create(target CreateTarget, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.NewString()
	page := target.Page
	parent := target.ParentUUID

	if parent != "" {
		p, ok := g.nodeLocked(parent)
		if !ok {
			return "", fmt.Errorf("parent node %s not found", parent)
		}
		page = p.Page
	} else {
		if page == "" {
			page = g.stateLocked("current_page")
		}
		if page == "" {
			return "", fmt.Errorf("no target page for new node")
		}
	}

	var next int
	err := g.db.QueryRow(
		`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM blocks WHERE page = ? AND parent = ?`,
		page, parent).Scan(&next)
	if err != nil {
		return "", fmt.Errorf("failed to compute sort order: %w", err)
	}

	_, err = g.db.Exec(
		`INSERT INTO blocks (uuid, page, parent, sort_order, content, properties)
		 VALUES (?, ?, ?, ?, ?, '{}')`, id, page, parent, next, text)
	if err != nil {
		return "", fmt.Errorf("failed to insert node: %w", err)
	}

	logging.OutlineDebug("created node %s under parent=%q page=%q", id, parent, page)
	return id, nil
}

// SetContent overwrites the text of an existing node.
func (g *SQLiteGraph) SetContent(id, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, err := g.db.Exec(`UPDATE blocks SET content = ? WHERE uuid = ?`, text, id)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s not found", id)
	}
	return nil
}

// SetProperty sets a property on an existing node.
func (g *SQLiteGraph) SetProperty(id, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodeLocked(id)
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	if n.Properties == nil {
		n.Properties = map[string]string{}
	}
	n.Properties[key] = value
	data, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	_, err = g.db.Exec(`UPDATE blocks SET properties = ? WHERE uuid = ?`, string(data), id)
	return err
}

// Remove deletes a node and its whole subtree.
func (g *SQLiteGraph) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodeLocked(id); !ok {
		return fmt.Errorf("node %s not found", id)
	}
	return g.removeSubtreeLocked(id)
}

func (g *SQLiteGraph) removeSubtreeLocked(id string) error {
	rows, err := g.db.Query(`SELECT uuid FROM blocks WHERE parent = ?`, id)
	if err != nil {
		return err
	}
	var children []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err == nil {
			children = append(children, child)
		}
	}
	rows.Close()

	for _, child := range children {
		if err := g.removeSubtreeLocked(child); err != nil {
			return err
		}
	}
	_, err = g.db.Exec(`DELETE FROM blocks WHERE uuid = ?`, id)
	return err
}
