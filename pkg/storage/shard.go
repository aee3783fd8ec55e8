package storage

import "github.com/kesh-dev/tabula/pkg/types"

// ShardResolver is a pluggable hook an external router can supply to map a
// row to a shard identifier. The database never calls it internally; it
// exists solely so a caller building a multi-process routing layer on top
// of this package has a stable extension point instead of reaching into
// Database internals.
type ShardResolver interface {
	ResolveShard(table string, row types.Row) (string, error)
}

// ShardResolverFunc adapts a plain function to ShardResolver.
type ShardResolverFunc func(table string, row types.Row) (string, error)

func (f ShardResolverFunc) ResolveShard(table string, row types.Row) (string, error) {
	return f(table, row)
}
