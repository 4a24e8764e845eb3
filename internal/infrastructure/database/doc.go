// Package database provides SQLite connectivity for Gray Logic Hub.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Additive schema migrations from an embedded filesystem
//   - Connection lifecycle and health checks
//
// The hub's in-memory device store remains authoritative; the database
// holds the durable event log, state snapshots, principals, and the
// audit trail.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Fingerprint secrets are stored only as argon2id hashes
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
