// Package storage is the SQLite persistence backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/repository"

	_ "modernc.org/sqlite"
)

// ErrInUse is returned when a category still has entries.
var ErrInUse = errors.New("resource is referenced by other records")

type DB struct {
	db     *sql.DB
	logger *log.Logger
}

// Open creates the database file if needed, applies migrations and enables
// foreign key enforcement on every connection.
func Open(dbPath string, logger *log.Logger) (*DB, error) {
	if logger == nil {
		logger = log.Default(log.ComponentStorage)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("SQLite database ready", "path", dbPath)
	return &DB{db: db, logger: logger}, nil
}

func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Categories() *CategoryStore { return &CategoryStore{db: d.db, logger: d.logger} }
func (d *DB) Entries() *EntryStore       { return &EntryStore{db: d.db, logger: d.logger} }

type rowScanner interface {
	Scan(dest ...any) error
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// affected maps a zero row count onto ErrNotFound.
func affected(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, repository.ErrNotFound)
	}
	return nil
}

type CategoryStore struct {
	db     *sql.DB
	logger *log.Logger
}

var _ repository.Store[core.Category] = (*CategoryStore)(nil)

const categoryColumns = `id, name, description`

func scanCategory(row rowScanner) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description)
	return c, err
}

func (s *CategoryStore) List(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CategoryStore) Get(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

func (s *CategoryStore) Create(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories (name, description) VALUES (?, ?)`, c.Name, c.Description)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: last insert id: %w", err)
	}
	s.logger.DebugContext(ctx, "Category saved to SQLite", log.FieldID, id)
	return c.WithID(id), nil
}

func (s *CategoryStore) Update(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		c.Name, c.Description, c.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	if err := affected(res, "update category", c.ID); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (s *CategoryStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete category %d: %w", id, ErrInUse)
	}
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return affected(res, "delete category", id)
}

type EntryStore struct {
	db     *sql.DB
	logger *log.Logger
}

var _ repository.Store[core.Entry] = (*EntryStore)(nil)

const entryColumns = `id, name, description, type, amount_cents, date, paid, category_id`

func scanEntry(row rowScanner) (core.Entry, error) {
	var (
		e    core.Entry
		kind string
		date string
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &kind, &e.Amount.Cents, &date, &e.Paid, &e.CategoryID); err != nil {
		return core.Entry{}, err
	}
	e.Type = core.EntryType(kind)
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Date = d
	return e, nil
}

func (s *EntryStore) List(ctx context.Context) ([]core.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EntryStore) Get(ctx context.Context, id int64) (core.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, fmt.Errorf("get entry %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

func (s *EntryStore) Create(ctx context.Context, e core.Entry) (core.Entry, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (name, description, type, amount_cents, date, paid, category_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Description, string(e.Type), e.Amount.Cents, e.Date.String(), e.Paid, e.CategoryID)
	if isForeignKeyViolation(err) {
		return core.Entry{}, fmt.Errorf("create entry: category %d: %w", e.CategoryID, core.NewValidationError(core.MsgCategoryNotFound))
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("create entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Entry{}, fmt.Errorf("create entry: last insert id: %w", err)
	}
	s.logger.DebugContext(ctx, "Entry saved to SQLite", log.FieldID, id, "amount_cents", e.Amount.Cents)
	return e.WithID(id), nil
}

func (s *EntryStore) Update(ctx context.Context, e core.Entry) (core.Entry, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET name = ?, description = ?, type = ?, amount_cents = ?, date = ?, paid = ?, category_id = ?,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		e.Name, e.Description, string(e.Type), e.Amount.Cents, e.Date.String(), e.Paid, e.CategoryID, e.ID)
	if isForeignKeyViolation(err) {
		return core.Entry{}, fmt.Errorf("update entry %d: category %d: %w", e.ID, e.CategoryID, core.NewValidationError(core.MsgCategoryNotFound))
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("update entry %d: %w", e.ID, err)
	}
	if err := affected(res, "update entry", e.ID); err != nil {
		return core.Entry{}, err
	}
	return e, nil
}

func (s *EntryStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	return affected(res, "delete entry", id)
}
