// Package database handles database connections and schema inspection.
//
// It wraps GORM to open either MySQL (through go-sql-driver/mysql) or SQLite
// based on the application's configuration. SQLite is mainly used for local
// runs and tests.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns let the mirror datastore verify that the
// users table carries every column its profile expects before the first pass.
//
// # Errors
//
// IsDuplicateKey recognizes unique constraint violations from both drivers.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	missing, err := database.MissingColumns(db, "users", []string{"email", "department"})
package database
