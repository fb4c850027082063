package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/internal/config"
	"github.com/RealZimboGuy/approvalflow/internal/migrations"

	_ "github.com/go-sql-driver/mysql"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DatabaseSettings selects the dialect and location of the store.
type DatabaseSettings struct {
	Type       string
	URL        string
	SqliteFile string
}

func DatabaseSettingsFromConfig() DatabaseSettings {
	return DatabaseSettings{
		Type:       strings.ToUpper(config.GetSystemSettingString(config.DATABASE_TYPE)),
		URL:        config.GetSystemSettingString(config.DATABASE_URL),
		SqliteFile: config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME),
	}
}

// Open runs the embedded migrations for the configured dialect and returns a
// ready connection pool.
func Open(s DatabaseSettings) (*sqlx.DB, error) {
	switch s.Type {
	case config.DATABASE_TYPE_POSTGRES:
		return setupPostgresDatabase(s)
	case config.DATABASE_TYPE_MYSQL:
		return setupMysqlDatabase(s)
	case config.DATABASE_TYPE_SQLLITE:
		return setupSqlLiteDatabase(s)
	}
	return nil, fmt.Errorf("database type must be one of %s, %s, %s; got %q",
		config.DATABASE_TYPE_POSTGRES, config.DATABASE_TYPE_MYSQL, config.DATABASE_TYPE_SQLLITE, s.Type)
}

func setupPostgresDatabase(s DatabaseSettings) (*sqlx.DB, error) {
	if s.URL == "" {
		return nil, errors.New("database url must be set when using the POSTGRES database type")
	}
	slog.Info("Running migrations", "dialect", "postgres")
	if err := runMigrationsFromEmbed("postgres", s.URL); err != nil {
		return nil, fmt.Errorf("postgres migration: %w", err)
	}
	db, err := sqlx.Open(driverPostgres, s.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)
	return db, ping(db)
}

func setupMysqlDatabase(s DatabaseSettings) (*sqlx.DB, error) {
	if s.URL == "" {
		return nil, errors.New("database url must be set when using the MYSQL database type")
	}
	if !strings.HasPrefix(s.URL, "mysql://") {
		return nil, errors.New("database url must start with 'mysql://' for MySQL")
	}
	if !strings.Contains(s.URL, "parseTime=true") {
		return nil, errors.New("database url must contain 'parseTime=true' for MySQL")
	}
	migrationURL := s.URL
	if !strings.Contains(migrationURL, "multiStatements=true") {
		migrationURL += "&multiStatements=true"
	}
	slog.Info("Running migrations", "dialect", "mysql")
	if err := runMigrationsFromEmbed("mysql", migrationURL); err != nil {
		return nil, fmt.Errorf("mysql migration: %w", err)
	}
	db, err := sqlx.Open(driverMysql, strings.TrimPrefix(s.URL, "mysql://"))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, ping(db)
}

// sqliteDSN serialises writers on BEGIN and lets them wait on the lock
// instead of failing with SQLITE_BUSY.
func sqliteDSN(file string) string {
	return "file:" + file + "?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL&_foreign_keys=on"
}

func setupSqlLiteDatabase(s DatabaseSettings) (*sqlx.DB, error) {
	if s.SqliteFile == "" {
		return nil, errors.New("sqlite file name must be set")
	}
	slog.Info("Running migrations", "dialect", "sqlite3", "file", s.SqliteFile)
	if err := runMigrationsFromEmbed("sqllite3", "sqlite3://"+s.SqliteFile); err != nil {
		return nil, fmt.Errorf("sqlite migration: %w", err)
	}
	db, err := sqlx.Open(driverSqlite, sqliteDSN(s.SqliteFile))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	return db, ping(db)
}

func ping(db *sqlx.DB) error {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return classify(err)
	}
	return nil
}

func runMigrationsFromEmbed(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Migrate only applies migrations, used by the migrate command.
func Migrate(s DatabaseSettings) error {
	db, err := Open(s)
	if err != nil {
		return err
	}
	return db.Close()
}
