package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLRepository implements the Repository interface on sqlx.
// It works with SQLite and PostgreSQL; queries are written with "?"
// placeholders and rebound for the active driver.
type SQLRepository struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	tx  *sqlx.Tx
}

// NewSQLRepository creates a new repository on an open database
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{
		db:  db,
		ext: db,
	}
}

// GetDB returns the underlying database connection
func (r *SQLRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *SQLRepository) InTx(ctx context.Context, fn func(repo Repository) error) (err error) {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	err = fn(&SQLRepository{db: r.db, ext: tx, tx: tx})
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLRepository) isPostgres() bool {
	return r.ext.DriverName() == "postgres"
}

func (r *SQLRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, r.ext, dest, r.ext.Rebind(query), args...)
}

func (r *SQLRepository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, r.ext, dest, r.ext.Rebind(query), args...)
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := r.ext.ExecContext(ctx, r.ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLRepository) insertReturningID(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var id int64
	err := r.ext.QueryRowxContext(ctx, r.ext.Rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

// syncSequence moves a PostgreSQL serial past ids written explicitly by a merge.
// SQLite's INTEGER PRIMARY KEY already continues from the max id.
func (r *SQLRepository) syncSequence(ctx context.Context, table string) error {
	if !r.isPostgres() {
		return nil
	}
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT MAX(id) FROM %s), 1))`,
		table, table,
	)
	_, err := r.ext.ExecContext(ctx, query)
	return err
}
