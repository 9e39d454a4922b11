// Package sqlitedb is the receipts store's SQLite backend (component
// C4): one database file per peer, WAL journaling, embedded schema
// migrations, and hand-written database/sql repositories.
package sqlitedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenDb opens dbFile with the durability settings the spec requires:
// write-ahead logging and synchronous=NORMAL (one fsync per checkpoint
// rather than per transaction).
func OpenDb(dbFile string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbFile)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
