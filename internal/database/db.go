// Package database opens the pure-Go SQLite store behind the
// SQLite-backed DMR ID lookup (database.enabled in config.go), synced
// from radioid.net by internal/radioid.Syncer and read through
// lookup.DMRDatabaseAdapter.
package database

import (
	"database/sql"
	stdlog "log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// sqlitePragmas tune the pure-Go driver for a single-writer,
// many-reader workload: one syncer goroutine writing, many call/slot
// machines reading concurrently.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA cache_size=10000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=memory",
}

// Config holds the on-disk path of the SQLite database.
type Config struct {
	Path string
}

// DB wraps the GORM handle opened against the pure-Go modernc.org/sqlite
// driver.
type DB struct {
	db *gorm.DB
}

// NewDB opens config.Path, applies sqlitePragmas, and auto-migrates the
// DMRUser schema. log receives GORM's own warning/error output; a nil
// log silences it entirely. GORM's logger.New wants the stdlib
// *log.Logger shape (a Printf method), so that's what this takes rather
// than the zap logger used everywhere else in this codebase.
func NewDB(config Config, log *stdlog.Logger) (*DB, error) {
	gormLog := logger.Default.LogMode(logger.Silent)
	if log != nil {
		gormLog = logger.New(log, logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})
	}

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&DMRUser{}); err != nil {
		return nil, err
	}

	if log != nil {
		log.Printf("database initialized: %s", config.Path)
	}

	return &DB{db: db}, nil
}

func applyPragmas(sqlDB *sql.DB) error {
	for _, pragma := range sqlitePragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}

// GetDB exposes the underlying *gorm.DB for building repositories.
func (db *DB) GetDB() *gorm.DB { return db.db }

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health pings the database to confirm the connection is still usable.
func (db *DB) Health() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Stats reports connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	sqlDB, _ := db.db.DB()
	return sqlDB.Stats()
}