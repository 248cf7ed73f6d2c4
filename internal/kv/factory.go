package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Driver names a [Store] backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverRedis    Driver = "redis"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

var (
	// ErrInvalidDriver is returned by [NewStore] for an unknown driver.
	ErrInvalidDriver = errors.New("kv: invalid driver")

	// ErrInvalidConfig is returned by [NewStore] when a driver's required
	// option is missing.
	ErrInvalidConfig = errors.New("kv: invalid config")
)

// Option configures [NewStore].
type Option func(*options)

type options struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	postgresDSN string
	postgresDB  DB
	sqlitePath  string
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithRedisTTL sets the key expiry used by the redis driver. Zero means 24h.
func WithRedisTTL(ttl time.Duration) Option {
	return func(o *options) { o.redisTTL = ttl }
}

// WithPostgresDSN makes the postgres driver open and own a connection pool.
func WithPostgresDSN(dsn string) Option {
	return func(o *options) { o.postgresDSN = dsn }
}

// WithPostgresDB makes the postgres driver use an existing connection or
// pool. The caller keeps ownership of db.
func WithPostgresDB(db DB) Option {
	return func(o *options) { o.postgresDB = db }
}

// WithSQLitePath sets the database file used by the sqlite driver.
func WithSQLitePath(path string) Option {
	return func(o *options) { o.sqlitePath = path }
}

// NewStore creates a [Store] for driver. An empty driver selects memory.
// The postgres and sqlite drivers create their schema before returning.
func NewStore(ctx context.Context, driver Driver, opts ...Option) (Store, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil

	case DriverRedis:
		if o.redisClient == nil {
			return nil, fmt.Errorf("%w: redis driver needs a client", ErrInvalidConfig)
		}
		return NewRedisStore(o.redisClient, o.redisTTL), nil

	case DriverPostgres:
		var (
			s   *PostgresStore
			err error
		)
		switch {
		case o.postgresDB != nil:
			s = NewPostgresStore(o.postgresDB)
		case o.postgresDSN != "":
			s, err = OpenPostgres(ctx, o.postgresDSN)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: postgres driver needs a dsn or db", ErrInvalidConfig)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	case DriverSQLite:
		if o.sqlitePath == "" {
			return nil, fmt.Errorf("%w: sqlite driver needs a path", ErrInvalidConfig)
		}
		return OpenSQLite(ctx, o.sqlitePath)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
	}
}
