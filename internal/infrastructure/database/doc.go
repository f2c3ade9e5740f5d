// Package database provides SQLite connectivity for the TP-Link bridge.
//
// The bridge keeps two things on disk: the endpoints it has materialized
// and a history of plug power-state changes. Everything else lives in the
// in-memory dataset and is rebuilt by polling.
//
// This package manages:
//   - Connection with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
