package store

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config_docs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant        TEXT    NOT NULL,
	env           TEXT    NOT NULL,
	component_key TEXT    NOT NULL,
	scope_type    TEXT    NOT NULL,
	scope_key     TEXT    NOT NULL,
	version       INTEGER NOT NULL,
	value         TEXT    NOT NULL,
	created_at    REAL    NOT NULL,
	created_by    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS config_docs_identity
	ON config_docs (tenant, env, component_key, scope_type, scope_key, version);
`

// SQLiteStore is a Store backed by a sqlite database file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logrus.Debugf("Initializing sqlite store at %s", path)

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrapf(err, "error opening database %s", path)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "error creating config_docs table")
	}
	return &SQLiteStore{db: db}, nil
}

func whereClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(col, val string) {
		if val != "" {
			conds = append(conds, col+" = ?")
			args = append(args, val)
		}
	}
	add("tenant", f.Tenant)
	add("env", f.Env)
	add("component_key", f.ComponentKey)
	add("scope_type", f.ScopeType)
	add("scope_key", f.ScopeKey)

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List implements Store
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Document, error) {
	where, args := whereClause(f)
	rows, err := s.db.QueryContext(ctx,
		"SELECT tenant, env, component_key, scope_type, scope_key, version, value, created_at, created_by FROM config_docs"+where+" ORDER BY id",
		args...)
	if err != nil {
		return nil, errors.Wrapf(err, "error querying documents")
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var (
			doc   Document
			value string
		)
		if err := rows.Scan(&doc.Tenant, &doc.Env, &doc.ComponentKey, &doc.ScopeType, &doc.ScopeKey,
			&doc.Version, &value, &doc.CreatedAt, &doc.CreatedBy); err != nil {
			return nil, errors.Wrapf(err, "error scanning document")
		}
		if err := json.Unmarshal([]byte(value), &doc.Value); err != nil {
			return nil, errors.Wrapf(err, "error decoding value of %s v%d", doc.ComponentKey, doc.Version)
		}
		out = append(out, doc)
	}
	return out, errors.Wrapf(rows.Err(), "error reading documents")
}

// Append implements Store
func (s *SQLiteStore) Append(ctx context.Context, doc Document) error {
	value, err := json.Marshal(doc.Value)
	if err != nil {
		return errors.Wrapf(err, "error encoding value")
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO config_docs (tenant, env, component_key, scope_type, scope_key, version, value, created_at, created_by) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		doc.Tenant, doc.Env, doc.ComponentKey, doc.ScopeType, doc.ScopeKey, doc.Version, string(value), doc.CreatedAt, doc.CreatedBy)
	return errors.Wrapf(err, "error inserting document")
}

// Delete implements Store
func (s *SQLiteStore) Delete(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	res, err := s.db.ExecContext(ctx, "DELETE FROM config_docs"+where, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "error deleting documents")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "error counting deleted documents")
	}
	return int(n), nil
}

// Clear implements Store
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.Delete(ctx, Filter{})
	return err
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
