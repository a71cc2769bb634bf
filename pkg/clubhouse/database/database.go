package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	// sqliteBusyTimeout is how long, in milliseconds, a sqlite connection
	// waits for another writer before failing with "database is locked".
	sqliteBusyTimeout = 5000
)

// Connect opens a database connection for the given driver.
// SQLite is the default; MySQL is used for shared deployments.
func Connect(driver, dsn string, log logger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	singleConn := false
	switch driver {
	case "", DriverSQLite:
		dialector = sqlite.Open(SQLiteDSN(dsn))
		singleConn = true
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = log
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if singleConn {
		// sqlite has a single writer; one connection queues writes in the
		// pool instead of failing them
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", driver, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLiteDSN adds a busy timeout to a file DSN unless one is already set.
// In-memory databases are returned unchanged.
func SQLiteDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", dsn, sep, sqliteBusyTimeout)
}
