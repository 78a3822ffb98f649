// Package database provides the SQLite connection behind the decision
// journal.
//
// This package manages:
//   - Opening the database with WAL mode, busy timeout and foreign keys
//   - Versioned schema migrations read from an fs.FS (see package migrations)
//   - Health checks and lifecycle
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
