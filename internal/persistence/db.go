// Package persistence provides SQLite-based storage for agents and shops.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		state TEXT NOT NULL,
		wallet REAL NOT NULL,
		hunger REAL NOT NULL,
		fatigue REAL NOT NULL,
		target_x REAL,
		target_y REAL,
		target_shop_id TEXT
	);

	CREATE TABLE IF NOT EXISTS shops (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		balance REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shop_items (
		shop_id TEXT NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		PRIMARY KEY (shop_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type agentRow struct {
	ID           string          `db:"id"`
	Role         string          `db:"role"`
	X            float64         `db:"x"`
	Y            float64         `db:"y"`
	State        string          `db:"state"`
	Wallet       float64         `db:"wallet"`
	Hunger       float64         `db:"hunger"`
	Fatigue      float64         `db:"fatigue"`
	TargetX      sql.NullFloat64 `db:"target_x"`
	TargetY      sql.NullFloat64 `db:"target_y"`
	TargetShopID sql.NullString  `db:"target_shop_id"`
}

func (r agentRow) agent() *agents.Agent {
	a := &agents.Agent{
		ID:     r.ID,
		Role:   agents.Role(r.Role),
		X:      r.X,
		Y:      r.Y,
		State:  agents.State(r.State),
		Wallet: r.Wallet,
		Needs:  agents.Needs{Hunger: r.Hunger, Fatigue: r.Fatigue},
	}
	if r.TargetX.Valid && r.TargetY.Valid {
		a.SetTarget(r.TargetX.Float64, r.TargetY.Float64)
	}
	a.TargetShopID = r.TargetShopID.String
	return a
}

type shopRow struct {
	ID      string  `db:"id"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	X       float64 `db:"x"`
	Y       float64 `db:"y"`
	Balance float64 `db:"balance"`
}

type itemRow struct {
	ShopID   string  `db:"shop_id"`
	ItemID   string  `db:"item_id"`
	Quantity int     `db:"quantity"`
	Price    float64 `db:"price"`
}

// ListAgents returns every persisted agent in insertion order.
func (db *DB) ListAgents(ctx context.Context) ([]*agents.Agent, error) {
	var rows []agentRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM agents ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	out := make([]*agents.Agent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.agent())
	}
	return out, nil
}

// ListShops returns every persisted shop with its inventory, in
// insertion order.
func (db *DB) ListShops(ctx context.Context) ([]*economy.Shop, error) {
	var rows []shopRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM shops ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	var items []itemRow
	if err := db.conn.SelectContext(ctx, &items, "SELECT * FROM shop_items ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("list shop items: %w", err)
	}

	byShop := make(map[string][]economy.Item, len(rows))
	for _, it := range items {
		byShop[it.ShopID] = append(byShop[it.ShopID], economy.Item{ItemID: it.ItemID, Quantity: it.Quantity, Price: it.Price})
	}

	out := make([]*economy.Shop, 0, len(rows))
	for _, r := range rows {
		out = append(out, &economy.Shop{
			ID: r.ID, Name: r.Name, Type: r.Type, X: r.X, Y: r.Y, Balance: r.Balance,
			Inventory: byShop[r.ID],
		})
	}
	return out, nil
}

// GetShop returns one shop with its inventory.
func (db *DB) GetShop(ctx context.Context, id string) (*economy.Shop, error) {
	var r shopRow
	err := db.conn.GetContext(ctx, &r, "SELECT * FROM shops WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shop %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get shop %s: %w", id, err)
	}

	var items []itemRow
	if err := db.conn.SelectContext(ctx, &items, "SELECT * FROM shop_items WHERE shop_id = ? ORDER BY rowid", id); err != nil {
		return nil, fmt.Errorf("get shop %s items: %w", id, err)
	}
	shop := &economy.Shop{ID: r.ID, Name: r.Name, Type: r.Type, X: r.X, Y: r.Y, Balance: r.Balance}
	for _, it := range items {
		shop.Inventory = append(shop.Inventory, economy.Item{ItemID: it.ItemID, Quantity: it.Quantity, Price: it.Price})
	}
	return shop, nil
}

// CreateShop inserts a shop and its inventory in one transaction.
func (db *DB) CreateShop(ctx context.Context, shop *economy.Shop) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertShop(ctx, tx, shop); err != nil {
		return err
	}
	return tx.Commit()
}

func insertShop(ctx context.Context, tx *sqlx.Tx, s *economy.Shop) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO shops (id, name, type, x, y, balance)
		VALUES (:id, :name, :type, :x, :y, :balance)`,
		shopRow{ID: s.ID, Name: s.Name, Type: s.Type, X: s.X, Y: s.Y, Balance: s.Balance})
	if err != nil {
		return fmt.Errorf("insert shop %s: %w", s.ID, err)
	}
	for _, it := range s.Inventory {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO shop_items (shop_id, item_id, quantity, price)
			VALUES (:shop_id, :item_id, :quantity, :price)`,
			itemRow{ShopID: s.ID, ItemID: it.ItemID, Quantity: it.Quantity, Price: it.Price})
		if err != nil {
			return fmt.Errorf("insert shop %s item %s: %w", s.ID, it.ItemID, err)
		}
	}
	return nil
}

// SaveAgents writes all agents to the database (full replace).
func (db *DB) SaveAgents(ctx context.Context, agentList []*agents.Agent) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := replaceAgents(ctx, tx, agentList); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceAgents(ctx context.Context, tx *sqlx.Tx, agentList []*agents.Agent) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO agents
		(id, role, x, y, state, wallet, hunger, fatigue, target_x, target_y, target_shop_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range agentList {
		var targetX, targetY sql.NullFloat64
		if x, y, ok := a.Target(); ok {
			targetX = sql.NullFloat64{Float64: x, Valid: true}
			targetY = sql.NullFloat64{Float64: y, Valid: true}
		}
		shopID := sql.NullString{String: a.TargetShopID, Valid: a.TargetShopID != ""}

		_, err := stmt.ExecContext(ctx,
			a.ID, string(a.Role), a.X, a.Y, string(a.State), a.Wallet,
			a.Needs.Hunger, a.Needs.Fatigue, targetX, targetY, shopID,
		)
		if err != nil {
			return fmt.Errorf("insert agent %s: %w", a.ID, err)
		}
	}
	return nil
}

// SaveShops writes all shops and their inventories (full replace).
func (db *DB) SaveShops(ctx context.Context, shops []*economy.Shop) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := replaceShops(ctx, tx, shops); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceShops(ctx context.Context, tx *sqlx.Tx, shops []*economy.Shop) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM shop_items"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM shops"); err != nil {
		return err
	}
	for _, s := range shops {
		if err := insertShop(ctx, tx, s); err != nil {
			return err
		}
	}
	return nil
}

// SaveWorld replaces agents and shops and records the tick they were
// taken at, all in one transaction.
func (db *DB) SaveWorld(ctx context.Context, agentList []*agents.Agent, shops []*economy.Shop, tick uint64) error {
	slog.Info("saving world state", "agents", len(agentList), "shops", len(shops), "tick", tick)

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := replaceAgents(ctx, tx, agentList); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := replaceShops(ctx, tx, shops); err != nil {
		return fmt.Errorf("save shops: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES ('last_tick', ?)",
		strconv.FormatUint(tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved")
	return nil
}

// Reset deletes every agent, shop, and metadata row.
func (db *DB) Reset(ctx context.Context) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"shop_items", "shops", "agents", "world_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	return value, err
}
