// Package adapter implements the database adapter an authentication engine
// uses to persist users, sessions, and accounts inside a host application's
// collections.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/hostauth/host"
)

// IDType selects how record identifiers are generated and surfaced.
type IDType string

const (
	// IDTypeNumber surfaces ids as int64 sequence values.
	IDTypeNumber IDType = "number"
	// IDTypeText surfaces ids as UUIDv4 strings.
	IDTypeText IDType = "text"
)

// Valid reports whether t is a known id type.
func (t IDType) Valid() bool {
	return t == IDTypeNumber || t == IDTypeText
}

// Config is the adapter configuration. It is a plain value and is never
// mutated after being passed to [New].
type Config struct {
	EnableDebugLogs bool   `yaml:"enableDebugLogs"`
	IDType          IDType `yaml:"idType"`
}

var (
	// ErrNilHost is returned when an adapter is requested without a host application.
	ErrNilHost = errors.New("adapter: nil host application")
	// ErrInvalidIDType is returned for id types other than number or text.
	ErrInvalidIDType = errors.New("adapter: invalid id type")
	// ErrUnknownModel is returned for models the host has no collection for.
	ErrUnknownModel = errors.New("adapter: unknown model")
	// ErrNotFound is returned by FindOne and Update when nothing matches.
	ErrNotFound = errors.New("adapter: record not found")
	// ErrInvalidWhere is returned for malformed where clauses.
	ErrInvalidWhere = errors.New("adapter: invalid where clause")
	// ErrConflict is returned when a write would break a unique field.
	ErrConflict = errors.New("adapter: unique constraint violated")
)

// Record is a single document. The "id" key holds the record identifier.
type Record map[string]any

// Operator is a where-clause comparison.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpIn         Operator = "in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

// Connector joins a clause to the clauses before it.
type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

// Where is one filter clause. An empty Operator means OpEq and an empty
// Connector means And.
type Where struct {
	Field     string
	Operator  Operator
	Value     any
	Connector Connector
}

// Eq is shorthand for an equality clause.
func Eq(field string, value any) Where {
	return Where{Field: field, Operator: OpEq, Value: value}
}

// SortBy orders FindMany results.
type SortBy struct {
	Field     string
	Direction string // "asc" (default) or "desc"
}

// FindOptions bounds FindMany.
type FindOptions struct {
	Limit  int
	Offset int
	SortBy *SortBy
}

// Adapter is the storage contract an engine is built against.
type Adapter interface {
	Create(ctx context.Context, model string, data Record) (Record, error)
	FindOne(ctx context.Context, model string, where []Where) (Record, error)
	FindMany(ctx context.Context, model string, where []Where, opts FindOptions) ([]Record, error)
	Count(ctx context.Context, model string, where []Where) (int64, error)
	Update(ctx context.Context, model string, where []Where, patch Record) (Record, error)
	UpdateMany(ctx context.Context, model string, where []Where, patch Record) (int64, error)
	Delete(ctx context.Context, model string, where []Where) (int64, error)
	Config() Config
}

// New builds an adapter over app's collections.
func New(app *host.App, cfg Config) (Adapter, error) {
	if app == nil {
		return nil, ErrNilHost
	}
	if !cfg.IDType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIDType, cfg.IDType)
	}
	return &sqlAdapter{
		app:    app,
		db:     app.DB(),
		config: cfg,
		logger: app.Logger().With().Str("component", "adapter").Str("id_type", string(cfg.IDType)).Logger(),
	}, nil
}

// IDString renders an identifier returned by an adapter as a string.
func IDString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
