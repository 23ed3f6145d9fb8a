package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"stackbot-deployment/internal/logger"
)

const createDeliveries = `
CREATE TABLE IF NOT EXISTS deliveries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	delivery_id TEXT UNIQUE NOT NULL,
	event TEXT NOT NULL,
	branch TEXT,
	received_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// InitDB opens the sqlite database at path and creates the deliveries table.
func InitDB(path string) (*sql.DB, error) {
	log := logger.WithModule("database").WithField("path", path)
	log.Info("Initializing database connection")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(createDeliveries); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("Database tables initialized")

	return db, nil
}

// RecordDelivery stores a webhook delivery ID. It returns false when the
// delivery was already recorded, so redeliveries can be dropped.
func RecordDelivery(db *sql.DB, deliveryID, event, branch string) (bool, error) {
	stmt, err := db.Prepare("INSERT OR IGNORE INTO deliveries (delivery_id, event, branch) VALUES (?, ?, ?)")
	if err != nil {
		return false, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(deliveryID, event, branch)
	if err != nil {
		return false, fmt.Errorf("failed to insert delivery: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PruneDeliveries deletes deliveries received more than days ago.
func PruneDeliveries(db *sql.DB, days int) (int64, error) {
	res, err := db.Exec("DELETE FROM deliveries WHERE received_at < datetime('now', ?)", fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	return res.RowsAffected()
}
