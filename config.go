package colstore

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory    = "memory"
	BackendPebble    = "pebble"
	BackendPostgres  = "postgres"
	BackendMongo     = "mongo"
	BackendCassandra = "cassandra"
	BackendSqlite    = "sqlite"
)

// Config selects and configures the backing store and the mapping defaults.
type Config struct {
	Backend   string    `yaml:"backend" validate:"nonzero"`
	KeyPolicy KeyPolicy `yaml:"key_policy"`
	// KeyColumn writes the key property as a column too. Nil means true.
	KeyColumn *bool           `yaml:"key_column"`
	Family    string          `yaml:"family"`
	Snowflake SnowflakeConfig `yaml:"snowflake"`
	Pebble    PebbleConfig    `yaml:"pebble"`
	Postgres  PGConfig        `yaml:"postgres"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Cassandra CassandraConfig `yaml:"cassandra"`
	Sqlite    SqliteConfig    `yaml:"sqlite"`
}

type SnowflakeConfig struct {
	DatacenterID int64 `yaml:"datacenter_id" validate:"min=0,max=31"`
	WorkerID     int64 `yaml:"worker_id" validate:"min=0,max=31"`
}

type PebbleConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// ValidationError is returned when a configuration fails to pass validation.
type ValidationError struct {
	errorMap validator.ErrorMap
}

// ErrForField returns the validation error for the given field.
func (e ValidationError) ErrForField(name string) error {
	return e.errorMap[name]
}

func (e ValidationError) Error() string {
	var w bytes.Buffer

	fields := make([]string, 0, len(e.errorMap))
	for f := range e.errorMap {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	fmt.Fprintf(&w, "validation failed")
	for _, f := range fields {
		fmt.Fprintf(&w, "\n   %s: %v", f, e.errorMap[f])
	}

	return w.String()
}

// ParseConfig loads configFiles in order, merges them and validates the
// result.
func ParseConfig(configFiles ...string) (*Config, error) {
	if len(configFiles) == 0 {
		return nil, errors.New("no files to load")
	}

	cfg := &Config{}
	for _, fname := range configFiles {
		data, err := os.ReadFile(fname)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", fname)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and the backend specific settings.
func (c *Config) Validate() error {
	if err := validator.Validate(c); err != nil {
		errMap, ok := err.(validator.ErrorMap)
		if !ok {
			return err
		}
		return ValidationError{errorMap: errMap}
	}

	if c.KeyPolicy != "" {
		if _, err := ParseKeyPolicy(string(c.KeyPolicy)); err != nil {
			return err
		}
	}

	switch c.Backend {
	case BackendMemory:
	case BackendPebble:
		if c.Pebble.Dir == "" && !c.Pebble.InMemory {
			return errors.New("pebble backend needs a dir or in_memory")
		}
	case BackendPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return errors.New("postgres backend needs a host and a database")
		}
	case BackendMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("mongo backend needs a uri and a database")
		}
	case BackendCassandra:
		if len(c.Cassandra.ContactPoints) == 0 || c.Cassandra.Keyspace == "" {
			return errors.New("cassandra backend needs contact points and a keyspace")
		}
	case BackendSqlite:
		if c.Sqlite.Path == "" {
			return errors.New("sqlite backend needs a path")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	return nil
}

// MappingOptions turns the mapping defaults of c into registry options.
func (c *Config) MappingOptions() []MappingOption {
	var opts []MappingOption
	if c.KeyPolicy != "" {
		opts = append(opts, WithDefaultKeyPolicy(c.KeyPolicy))
	}
	if c.Family != "" {
		opts = append(opts, WithDefaultFamily(c.Family))
	}
	if c.KeyColumn != nil {
		opts = append(opts, WithKeyColumn(*c.KeyColumn))
	}
	return opts
}

// KeyGenerators returns the key generator registry, with the assign_id
// policy backed by a snowflake using the configured datacenter and worker.
func (c *Config) KeyGenerators(extra ...RowKeyGenerator) (*KeyGeneratorRegistry, error) {
	sf, err := NewSnowflake(c.Snowflake.DatacenterID, c.Snowflake.WorkerID)
	if err != nil {
		return nil, err
	}

	return NewKeyGeneratorRegistry(sf, extra...), nil
}

// Registry returns an empty metadata registry using the mapping defaults
// of c.
func (c *Config) Registry() *MetadataRegistry {
	return NewMetadataRegistry(c.MappingOptions()...)
}
