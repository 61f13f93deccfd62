package config

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SetupDatabase initializes the local store connection and creates the schema
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Database.Driver == DriverSQLite {
		// One connection: the ledger has a single writer, and ":memory:"
		// databases only live as long as their connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the ledger and sharing tables if they don't exist.
// There are no foreign keys between ledger tables: merged records may
// reference categories that only exist on the peer's side.
func createTables(db *sqlx.DB) error {
	idColumn := "INTEGER PRIMARY KEY"
	amountColumn := "TEXT NOT NULL"
	if db.DriverName() == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
		amountColumn = "NUMERIC NOT NULL"
	}

	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS categories (
			id %s,
			name VARCHAR(255) NOT NULL
		)`, idColumn),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS budgets (
			id %s,
			category_id BIGINT NOT NULL,
			amount %s,
			month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
			year INTEGER NOT NULL
		)`, idColumn, amountColumn),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS expenses (
			id %s,
			amount %s,
			date VARCHAR(32) NOT NULL,
			time VARCHAR(32) NOT NULL,
			merchant VARCHAR(255) NOT NULL,
			category_id BIGINT,
			installments INTEGER,
			last_card_digits VARCHAR(4),
			description TEXT
		)`, idColumn, amountColumn),
		`
		CREATE TABLE IF NOT EXISTS shared_peers (
			peer_id VARCHAR(255) PRIMARY KEY,
			role_given_by_me VARCHAR(10),
			their_remote_snapshot_ref TEXT,
			my_role_for_their_data VARCHAR(10),
			last_sync_timestamp TIMESTAMP
		)`,
		`
		CREATE TABLE IF NOT EXISTS sharing_invitations (
			invitation_id VARCHAR(36) PRIMARY KEY,
			invited_email VARCHAR(255) NOT NULL,
			inviter_email VARCHAR(255) NOT NULL,
			requested_role VARCHAR(10) NOT NULL,
			status VARCHAR(10) NOT NULL,
			inviter_snapshot_ref TEXT NOT NULL,
			direction VARCHAR(10) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_invitations_invited ON sharing_invitations(invited_email, direction)",
		"CREATE INDEX IF NOT EXISTS idx_invitations_inviter ON sharing_invitations(inviter_email, direction)",
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
