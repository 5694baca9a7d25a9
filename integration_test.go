//go:build integration

package colstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startContainer runs image until t ends and returns the host and mapped
// port of exposedPort.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, exposedPort string) (string, string) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, exposedPort)
	require.NoError(t, err)

	return host, port.Port()
}

func TestPostgresStore(t *testing.T) {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "colstore",
			"POSTGRES_PASSWORD": "colstore",
			"POSTGRES_DB":       "colstore",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	cfg := &Config{
		Backend: BackendPostgres,
		Postgres: PGConfig{
			Host:     host,
			Port:     port,
			Database: "colstore",
			User:     "colstore",
			Password: "colstore",
		},
	}

	suite.Run(t, &CellStoreTestSuite{
		newStore: func() (CellStore, error) {
			return Open(context.Background(), cfg)
		},
	})
}

func TestMongoStore(t *testing.T) {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:6",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}, "27017")

	cfg := &Config{
		Backend: BackendMongo,
		Mongo: MongoConfig{
			URI:      fmt.Sprintf("mongodb://%s:%s", host, port),
			Database: "colstore",
		},
	}

	suite.Run(t, &CellStoreTestSuite{
		newStore: func() (CellStore, error) {
			return Open(context.Background(), cfg)
		},
	})
}

func TestCassandraStore(t *testing.T) {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cassandra:4.1",
		ExposedPorts: []string{"9042/tcp"},
		Env: map[string]string{
			"MAX_HEAP_SIZE": "512M",
			"HEAP_NEWSIZE":  "128M",
		},
		WaitingFor: wait.ForLog("Starting listening for CQL clients").WithStartupTimeout(3 * time.Minute),
	}, "9042")

	var p int
	_, err := fmt.Sscan(port, &p)
	require.NoError(t, err)

	cfg := &Config{
		Backend: BackendCassandra,
		Cassandra: CassandraConfig{
			ContactPoints: []string{host},
			Port:          p,
			Keyspace:      "colstore",
			Consistency:   "ONE",
			Timeout:       10 * time.Second,
		},
	}

	suite.Run(t, &CellStoreTestSuite{
		newStore: func() (CellStore, error) {
			return Open(context.Background(), cfg)
		},
	})
}
