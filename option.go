package colstore

import (
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

const defaultFindConcurrency = 8

type RepositoryOption func(o *option)

type option struct {
	initValues  interface{}
	name        string
	createTable bool
	logger      log.FieldLogger
	scope       tally.Scope
	concurrency int
}

func defaultOption() *option {
	return &option{
		logger:      log.StandardLogger(),
		scope:       tally.NoopScope,
		concurrency: defaultFindConcurrency,
	}
}

// InitWith saves values, a []T or []*T, when the repository is created.
// Entities whose key is already taken are overwritten.
func InitWith(values interface{}) RepositoryOption {
	return func(o *option) {
		o.initValues = values
	}
}

// WithName overrides the table name of the entity descriptor.
func WithName(name string) RepositoryOption {
	return func(o *option) {
		o.name = name
	}
}

// WithCreateTable creates the table when it does not exist yet.
func WithCreateTable() RepositoryOption {
	return func(o *option) {
		o.createTable = true
	}
}

func WithLogger(logger log.FieldLogger) RepositoryOption {
	return func(o *option) {
		o.logger = logger
	}
}

// WithScope sets the tally scope the repository reports to.
func WithScope(scope tally.Scope) RepositoryOption {
	return func(o *option) {
		o.scope = scope
	}
}

// WithConcurrency caps the parallel reads of FindAllByID.
func WithConcurrency(n int) RepositoryOption {
	return func(o *option) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

type QueryOption func(o *queryOption)

type queryOption struct {
	timestamp int64
	readOpts  []ReadOption
}

func newQueryOption(options []QueryOption) *queryOption {
	opt := &queryOption{}
	for _, op := range options {
		op(opt)
	}
	return opt
}

// WithTimestamp writes the cells of a save with ts, in milliseconds, instead
// of the current time.
func WithTimestamp(ts int64) QueryOption {
	return func(o *queryOption) {
		o.timestamp = ts
	}
}

// WithReadOptions passes store read options, such as WithStartRow or
// WithLimit, to FindAll.
func WithReadOptions(options ...ReadOption) QueryOption {
	return func(o *queryOption) {
		o.readOpts = append(o.readOpts, options...)
	}
}
