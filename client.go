package colstore

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Client bundles what repositories share: the opened store, the metadata
// registry with the configured mapping defaults and the key generators.
type Client struct {
	Store    CellStore
	Registry *MetadataRegistry
	Keys     *KeyGeneratorRegistry
}

// Connect opens the store of cfg and builds the registries from it.
func Connect(ctx context.Context, cfg *Config, extra ...RowKeyGenerator) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	keys, err := cfg.KeyGenerators(extra...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid snowflake configuration")
	}

	store, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"backend":       cfg.Backend,
		"datacenter_id": cfg.Snowflake.DatacenterID,
		"worker_id":     cfg.Snowflake.WorkerID,
	}).Debug("client connected")

	return &Client{
		Store:    store,
		Registry: cfg.Registry(),
		Keys:     keys,
	}, nil
}

func (c *Client) Close() error {
	return c.Store.Close()
}

// RepositoryOf returns a repository of T over the store of c.
func RepositoryOf[K comparable, T any](ctx context.Context, c *Client, options ...RepositoryOption) (Repository[K, T], error) {
	return CreateRepository[K, T](ctx, c.Store, c.Registry, c.Keys, options...)
}
