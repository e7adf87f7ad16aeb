package handlers

import (
	"context"
	"fmt"
	"maps"

	"github.com/redis/go-redis/v9"
)

// DefaultRecordPrefix namespaces the hashes read by RedisFetch.
const DefaultRecordPrefix = "escalate:data:"

// RedisFetch reads the hash <prefix><collection>:<query>. Its fields are
// merged into the variables, or stored as one map under result_variable.
type RedisFetch struct {
	client redis.Cmdable
	prefix string
}

func NewRedisFetch(client redis.Cmdable, prefix string) *RedisFetch {
	if prefix == "" {
		prefix = DefaultRecordPrefix
	}

	return &RedisFetch{client: client, prefix: prefix}
}

func (f *RedisFetch) Handle(ctx context.Context, params map[string]string, _ map[string]any) (any, map[string]any, error) {
	collection, err := required(params, "collection")
	if err != nil {
		return nil, nil, err
	}

	query, err := required(params, "query")
	if err != nil {
		return nil, nil, err
	}

	key := f.prefix + collection + ":" + query

	fields, err := f.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}

	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, collection, query)
	}

	record := make(map[string]any, len(fields))
	for name, value := range fields {
		record[name] = value
	}

	if name := params["result_variable"]; name != "" {
		return record, map[string]any{name: record}, nil
	}

	return record, maps.Clone(record), nil
}
