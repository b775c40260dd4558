// Package host provides the host application instance that authentication
// engines are bound to.
//
// An [App] owns the application database and its logger. It is handed to the
// database adapter untouched and is otherwise only used as an identity key:
// two adapters built for the same *App share the same collections.
package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	// DefaultDriver is the database/sql driver used when Config.Driver is empty.
	DefaultDriver = "sqlite"
	// DefaultDSN opens a private in-memory database.
	DefaultDSN = ":memory:"
)

// DefaultCollections are the collections an authentication engine expects.
var DefaultCollections = []string{"user", "session", "account", "verification"}

// UniqueFields lists the document fields that must be unique within a
// collection. Each gets a unique index over the JSON value.
var UniqueFields = map[string][]string{
	"user": {"email"},
}

var (
	// ErrNilDB is returned by New when no database handle is supplied.
	ErrNilDB = errors.New("host: nil database")
	// ErrInvalidCollection is returned for collection slugs that cannot be used as table names.
	ErrInvalidCollection = errors.New("host: invalid collection slug")
)

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Config controls how a host application opens its database.
type Config struct {
	Driver      string
	DSN         string
	Collections []string
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// App is a host application instance.
type App struct {
	db          *sql.DB
	logger      zerolog.Logger
	collections map[string]struct{}
	ownsDB      bool
}

// Open opens the configured database and migrates one table per collection.
func Open(ctx context.Context, cfg Config) (*App, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	dsn := cfg.DSN
	if dsn == "" {
		dsn = DefaultDSN
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps :memory:
	// databases alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	app, err := New(ctx, db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.ownsDB = true
	return app, nil
}

// New binds an already opened database. The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, cfg Config) (*App, error) {
	if db == nil {
		return nil, ErrNilDB
	}

	slugs := cfg.Collections
	if len(slugs) == 0 {
		slugs = DefaultCollections
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	app := &App{
		db:          db,
		logger:      logger,
		collections: make(map[string]struct{}, len(slugs)),
	}

	for _, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if !slugPattern.MatchString(slug) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, slug)
		}
		if err := app.migrate(ctx, slug); err != nil {
			return nil, fmt.Errorf("migrate collection %s: %w", slug, err)
		}
		app.collections[slug] = struct{}{}
	}

	app.logger.Debug().Strs("collections", app.Collections()).Msg("host application ready")
	return app, nil
}

func (a *App) migrate(ctx context.Context, slug string) error {
	table := TableName(slug)
	_, err := a.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE,
    data TEXT NOT NULL
)`)
	if err != nil {
		return err
	}
	for _, field := range UniqueFields[slug] {
		_, err := a.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS `+table+`_`+field+`_unique ON `+table+
			` (json_extract(data, '$.`+field+`'))`)
		if err != nil {
			return fmt.Errorf("unique index on %s: %w", field, err)
		}
	}
	return nil
}

// TableName returns the table backing a collection slug.
func TableName(slug string) string {
	return "collection_" + slug
}

// DB returns the application database.
func (a *App) DB() *sql.DB {
	return a.db
}

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// HasCollection reports whether slug was migrated by this application.
func (a *App) HasCollection(slug string) bool {
	_, ok := a.collections[slug]
	return ok
}

// Collections returns the migrated collection slugs in sorted order.
func (a *App) Collections() []string {
	out := make([]string, 0, len(a.collections))
	for slug := range a.collections {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Close releases the database when it was opened by [Open].
func (a *App) Close() error {
	if a == nil || !a.ownsDB {
		return nil
	}
	return a.db.Close()
}
