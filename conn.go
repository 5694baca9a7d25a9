package colstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/gocql/gocql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

type PGConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"sslmode"`
}

func ConnectPostgresql(config PGConfig) (*sqlx.DB, error) {
	port := config.Port
	if port == "" {
		port = "5432"
	}

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", config.User, config.Password, config.Host, port, config.Database, sslMode)
	return sqlx.Open("pgx", connStr)
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

func ConnectMongo(ctx context.Context, config MongoConfig) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, mongoOptions.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	return client.Database(config.Database), nil
}

type CassandraConfig struct {
	ContactPoints     []string      `yaml:"contact_points"`
	Port              int           `yaml:"port"`
	Keyspace          string        `yaml:"keyspace"`
	Consistency       string        `yaml:"consistency"`
	Timeout           time.Duration `yaml:"timeout"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	ReplicationFactor int           `yaml:"replication_factor"`
}

const (
	defaultCassandraConsistency = "LOCAL_QUORUM"
	defaultCassandraTimeout     = 1000 * time.Millisecond
	defaultCassandraPort        = 9042
	defaultCassandraPageSize    = 1000
)

func newCluster(config CassandraConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(config.ContactPoints...)

	consistency := config.Consistency
	if consistency == "" {
		consistency = defaultCassandraConsistency
	}
	cluster.Consistency = gocql.ParseConsistency(consistency)

	cluster.Timeout = config.Timeout
	if cluster.Timeout == 0 {
		cluster.Timeout = defaultCassandraTimeout
	}

	cluster.Port = config.Port
	if cluster.Port == 0 {
		cluster.Port = defaultCassandraPort
	}

	cluster.PageSize = defaultCassandraPageSize
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}

	if len(config.Username) != 0 {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	return cluster
}

// ConnectCassandra creates the keyspace when needed and returns a session
// bound to it.
func ConnectCassandra(config CassandraConfig) (*gocql.Session, error) {
	cluster := newCluster(config)

	admin, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cassandra session")
	}

	rf := config.ReplicationFactor
	if rf == 0 {
		rf = 1
	}

	qry := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %q WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		config.Keyspace, rf)
	err = admin.Query(qry).Exec()
	admin.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create keyspace %s", config.Keyspace)
	}

	cluster.Keyspace = config.Keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cassandra session")
	}

	log.WithFields(log.Fields{
		"keyspace":       config.Keyspace,
		"contact_points": config.ContactPoints,
		"cassandra_port": cluster.Port,
	}).Info("cassandra session created")
	return session, nil
}

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg *Config) (CellStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendPebble:
		opts := &pebble.Options{}
		if cfg.Pebble.InMemory {
			opts.FS = vfs.NewMem()
		}
		return NewPebbleStore(cfg.Pebble.Dir, opts)

	case BackendPostgres:
		db, err := ConnectPostgresql(cfg.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open postgres connection")
		}
		return openPostgres(ctx, db, cfg.Postgres.Schema)

	case BackendMongo:
		db, err := ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return NewMongoStore(db), nil

	case BackendCassandra:
		session, err := ConnectCassandra(cfg.Cassandra)
		if err != nil {
			return nil, err
		}
		return NewCassandraStore(session, cfg.Cassandra.Keyspace), nil

	case BackendSqlite:
		db, err := ConnectSqlite(cfg.Sqlite)
		if err != nil {
			return nil, err
		}
		return NewSqliteStore(db), nil
	}

	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

// openPostgres pings db and opens the cell store of schema on it. db is closed
// when either step fails.
func openPostgres(ctx context.Context, db *sqlx.DB, schema string) (CellStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	store, err := NewPostgresStore(ctx, db, schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}
