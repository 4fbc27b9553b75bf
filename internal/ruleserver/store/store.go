// Package store persists the rule service's collections.
//
// Schema matches the console's data model: a rules table whose rows are
// either plain rules (rule_text) or combinations (rule_combination, a JSON
// id list), plus an attributes table of permitted variable names. Named SQL
// lives in embedded .sql files managed with dotsql; sqlx Rebind keeps the
// queries driver-neutral between SQLite and PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// ErrNotFound indicates a rule or attribute id that does not exist.
var ErrNotFound = errors.New("not found")

// RuleRow is one row of the rules table.
type RuleRow struct {
	ID            int64          `db:"id"`
	Name          string         `db:"rule_name"`
	Text          string         `db:"rule_text"`
	Combination   sql.NullString `db:"rule_combination"`
	IsCombination bool           `db:"is_combination"`
}

// CombinedIDs decodes the member rule ids of a combination row.
func (r RuleRow) CombinedIDs() ([]int64, error) {
	if !r.IsCombination || !r.Combination.Valid {
		return nil, fmt.Errorf("rule %d is not a combination", r.ID)
	}
	var ids []int64
	if err := json.Unmarshal([]byte(r.Combination.String), &ids); err != nil {
		return nil, fmt.Errorf("rule %d has malformed combination: %w", r.ID, err)
	}
	return ids, nil
}

// Store provides typed access to the rule service's tables.
type Store struct {
	db  *sqlx.DB
	dot *dotsql.DotSql
}

// New loads the embedded named queries and wraps the database handle.
func New(db *sqlx.DB) (*Store, error) {
	var combinedSQL string

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		combinedSQL += string(content) + "\n"
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combinedSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Store{db: db, dot: dot}, nil
}

// Attributes returns all attribute names in server order.
func (s *Store) Attributes(ctx context.Context) ([]string, error) {
	query, err := s.dot.Raw("list-attributes")
	if err != nil {
		return nil, fmt.Errorf("query not found: list-attributes")
	}
	names := []string{}
	if err := s.db.SelectContext(ctx, &names, s.db.Rebind(query)); err != nil {
		return nil, err
	}
	return names, nil
}

// HasAttribute reports whether name is a registered attribute.
func (s *Store) HasAttribute(ctx context.Context, name string) (bool, error) {
	query, err := s.dot.Raw("count-attribute")
	if err != nil {
		return false, fmt.Errorf("query not found: count-attribute")
	}
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), name); err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddAttribute registers a new attribute name.
func (s *Store) AddAttribute(ctx context.Context, name string) error {
	_, err := s.exec(ctx, "add-attribute", name)
	return err
}

// DeleteAttribute removes an attribute name. ErrNotFound if absent.
func (s *Store) DeleteAttribute(ctx context.Context, name string) error {
	res, err := s.exec(ctx, "delete-attribute", name)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// Rules returns all rules in id order, combinations included.
func (s *Store) Rules(ctx context.Context) ([]RuleRow, error) {
	query, err := s.dot.Raw("list-rules")
	if err != nil {
		return nil, fmt.Errorf("query not found: list-rules")
	}
	rows := []RuleRow{}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query)); err != nil {
		return nil, err
	}
	return rows, nil
}

// RuleByID fetches a single rule. ErrNotFound if absent.
func (s *Store) RuleByID(ctx context.Context, id int64) (RuleRow, error) {
	query, err := s.dot.Raw("get-rule")
	if err != nil {
		return RuleRow{}, fmt.Errorf("query not found: get-rule")
	}
	var row RuleRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RuleRow{}, ErrNotFound
		}
		return RuleRow{}, err
	}
	return row, nil
}

// CreateRule stores a plain rule.
func (s *Store) CreateRule(ctx context.Context, name, text string) error {
	_, err := s.exec(ctx, "create-rule", name, text, nil, false)
	return err
}

// CreateCombination stores a derived rule referencing the given member ids.
func (s *Store) CreateCombination(ctx context.Context, name, text string, ids []int64) error {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode combination: %w", err)
	}
	_, err = s.exec(ctx, "create-rule", name, text, string(encoded), true)
	return err
}

// UpdateRuleText replaces a rule's text. ErrNotFound if absent.
func (s *Store) UpdateRuleText(ctx context.Context, id int64, text string) error {
	res, err := s.exec(ctx, "update-rule-text", text, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// DeleteRule removes a rule. ErrNotFound if absent.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, "delete-rule", id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// exec runs a named query with placeholder conversion for the driver.
func (s *Store) exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	query, err := s.dot.Raw(name)
	if err != nil {
		return nil, fmt.Errorf("query not found: %s", name)
	}
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
