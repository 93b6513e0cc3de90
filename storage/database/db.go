package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/maendeleo/core"
)

// Engines
const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

func postgresURL(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// sqliteDSN takes the write lock when a transaction begins and waits on a busy database,
// so concurrent writers queue up instead of failing.
func sqliteDSN(path string) string {
	q := make(url.Values)
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	if path == ":memory:" {
		return "file::memory:?cache=shared&" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case EnginePostgres:
		return sqlx.Open(EnginePostgres, postgresURL(dbName, admin, conf))
	case EngineSQLite:
		db, err := sqlx.Open(EngineSQLite, sqliteDSN(conf.Database.Path))
		if err != nil {
			return nil, err
		}
		// a single connection serializes writers without SQLITE_BUSY churn
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
}

// Open connects to the app database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Database.Engine == EnginePostgres && conf.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.Database.MaxOpenConns)
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query string, args ...interface{}) (bool, error) {
	var found bool
	err := db.Get(&found, query, args...)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user & database on Postgres. SQLite files are created on open.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine != EnginePostgres {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	if err = createDB(appDB, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// MigrationsDir returns the embedded migrations directory of engine.
func MigrationsDir(engine string) string {
	return "migrations/" + engine
}

// Migrations returns the embedded migration files.
func Migrations() embed.FS {
	return migrations
}

// RunMigrations runs a goose command against the embedded migrations of engine.
func RunMigrations(command string, db *sql.DB, engine string, args ...string) error {
	if err := goose.SetDialect(engine); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	if err := goose.RunFS(command, db, migrations, MigrationsDir(engine), args...); err != nil {
		return errors.Wrapf(err, "running migration command %q", command)
	}
	return nil
}

func Migrate(db *sql.DB, engine string) error {
	if err := RunMigrations("up", db, engine); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
